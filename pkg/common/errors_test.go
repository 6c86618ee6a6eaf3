package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTimeoutError(t *testing.T) {
	assert.False(t, IsTimeoutError(nil))
	assert.True(t, IsTimeoutError(context.DeadlineExceeded))
	assert.True(t, IsTimeoutError(fmt.Errorf("fetch: %w", context.DeadlineExceeded)))
	assert.True(t, IsTimeoutError(&net.OpError{Op: "read", Err: timeoutErr{}}))
	assert.False(t, IsTimeoutError(errors.New("boom")))
	assert.False(t, IsTimeoutError(context.Canceled))
}

func TestIsCancelled(t *testing.T) {
	assert.True(t, IsCancelled(fmt.Errorf("wrapped: %w", context.Canceled)))
	assert.False(t, IsCancelled(context.DeadlineExceeded))
	assert.False(t, IsCancelled(nil))
}

func TestIsConnectionClosedErr(t *testing.T) {
	assert.False(t, IsConnectionClosedErr(nil))
	assert.True(t, IsConnectionClosedErr(io.EOF))
	assert.True(t, IsConnectionClosedErr(fmt.Errorf("read: %w", net.ErrClosed)))
	assert.True(t, IsConnectionClosedErr(errors.New("write unix @->/tmp/x.sock: broken pipe")))
	assert.False(t, IsConnectionClosedErr(errors.New("permission denied")))
}
