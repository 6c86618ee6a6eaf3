package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/yolkispalkis/hostproxy/pkg/common"
	"github.com/yolkispalkis/hostproxy/pkg/proxy"
)

// RemoteError is an error response returned by the service.
type RemoteError struct {
	Command string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("service rejected %s: %s", e.Command, e.Message)
}

// Client sends commands to the resolve service over a unix socket. Calls are
// serialized on the single connection.
type Client struct {
	conn    net.Conn
	enc     *json.Encoder
	dec     *json.Decoder
	mu      sync.Mutex
	timeout time.Duration
}

// Dial connects to the service at socketPath. timeout bounds each call.
func Dial(ctx context.Context, socketPath string, timeout time.Duration) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to resolve service at %s: %w", socketPath, err)
	}
	return &Client{
		conn:    conn,
		enc:     json.NewEncoder(conn),
		dec:     json.NewDecoder(conn),
		timeout: timeout,
	}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call sends command with data and decodes the response payload into out,
// which may be nil.
func (c *Client) Call(ctx context.Context, command string, data, out interface{}) error {
	cmd, err := NewCommand(command, data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timeout > 0 {
		deadline := time.Now().Add(c.timeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		c.conn.SetDeadline(deadline)
		defer c.conn.SetDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() { c.conn.SetDeadline(time.Now()) })
	defer stop()

	if err := c.enc.Encode(cmd); err != nil {
		if common.IsConnectionClosedErr(err) {
			return fmt.Errorf("IPC connection closed while sending command %s: %w", command, err)
		}
		return fmt.Errorf("failed to send command %s: %w", command, err)
	}

	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("failed to read response to %s: %w", command, err)
	}
	if resp.Status != StatusOK {
		return &RemoteError{Command: command, Message: resp.Error}
	}
	return DecodeData(resp.Data, out)
}

// Resolve asks the service for the proxy settings of rawURL.
func (c *Client) Resolve(ctx context.Context, rawURL string) (proxy.Settings, error) {
	var result ResolveResultData
	if err := c.Call(ctx, CommandResolve, ResolveData{URL: rawURL}, &result); err != nil {
		return proxy.Disabled, err
	}
	return result.Settings(), nil
}

// Status returns the service status.
func (c *Client) Status(ctx context.Context) (GetStatusData, error) {
	var status GetStatusData
	err := c.Call(ctx, CommandGetStatus, nil, &status)
	return status, err
}

// InvalidatePAC drops the service's cached copy of scriptURL.
func (c *Client) InvalidatePAC(ctx context.Context, scriptURL string) error {
	if scriptURL == "" {
		return errors.New("empty script URL")
	}
	return c.Call(ctx, CommandInvalidatePAC, InvalidatePACData{ScriptURL: scriptURL}, nil)
}
