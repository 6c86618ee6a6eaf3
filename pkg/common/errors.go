package common

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// IsTimeoutError reports whether err is a network or context timeout.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return strings.Contains(err.Error(), "context deadline exceeded")
}

// IsCancelled reports whether err stems from a cancelled context.
func IsCancelled(err error) bool {
	return err != nil && errors.Is(err, context.Canceled)
}

// IsConnectionClosedErr reports whether err means the peer or the local side
// closed the connection.
func IsConnectionClosedErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "use of closed network connection") ||
		strings.Contains(errMsg, "broken pipe") ||
		strings.Contains(errMsg, "connection reset by peer") ||
		strings.Contains(errMsg, "forcibly closed by the remote host")
}
