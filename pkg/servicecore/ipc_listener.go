package servicecore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"
)

type IpcListener struct {
	socketPath   string
	listener     net.Listener
	handler      *IpcHandler
	stateManager *StateManager
}

// NewIpcListener listens on a unix socket at socketPath, replacing a stale
// socket file. The socket is only accessible to the owner since responses
// carry proxy passwords.
func NewIpcListener(socketPath string, handler *IpcHandler, stateMgr *StateManager) (*IpcListener, error) {
	if socketPath == "" {
		return nil, errors.New("IPC socket path is not configured")
	}

	dir := filepath.Dir(socketPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create IPC directory %s: %w", dir, err)
	}

	if _, err := os.Stat(socketPath); err == nil {
		slog.Info("Removing existing IPC socket file", "path", socketPath)
		if err := os.Remove(socketPath); err != nil {
			slog.Warn("Failed to remove existing IPC socket, continuing...", "path", socketPath, "error", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat IPC socket path %s: %w", socketPath, err)
	}

	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on IPC socket %s: %w", socketPath, err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		l.Close()
		os.Remove(socketPath)
		return nil, fmt.Errorf("failed to chmod IPC socket %s to 0600: %w", socketPath, err)
	}

	slog.Info("IPC listener started", "path", socketPath)
	return &IpcListener{
		socketPath:   socketPath,
		listener:     l,
		handler:      handler,
		stateManager: stateMgr,
	}, nil
}

// Run accepts connections until ctx ends. Goroutines are tracked by the
// state manager's wait group.
func (il *IpcListener) Run(ctx context.Context) {
	sm := il.stateManager
	l := il.listener

	sm.AddWaitGroup(1)
	go func() {
		defer sm.WaitGroupDone()
		<-ctx.Done()
		slog.Info("Closing IPC listener due to context cancellation...")
		il.Close()
	}()

	sm.AddWaitGroup(1)
	go func() {
		defer sm.WaitGroupDone()
		for {
			conn, err := l.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					slog.Debug("IPC listener closed, stopping accept loop.")
					return
				}
				slog.Error("IPC accept failed", "error", err)
				select {
				case <-time.After(100 * time.Millisecond):
					continue
				case <-ctx.Done():
					return
				}
			}
			sm.AddWaitGroup(1)
			go func(c net.Conn) {
				defer sm.WaitGroupDone()
				il.handler.HandleConnection(ctx, c)
			}(conn)
		}
	}()
}

// Close stops accepting connections and removes the socket file.
func (il *IpcListener) Close() error {
	err := il.listener.Close()
	if err != nil && errors.Is(err, net.ErrClosed) {
		return nil
	}
	if rmErr := os.Remove(il.socketPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		slog.Debug("Failed to remove IPC socket file", "path", il.socketPath, "error", rmErr)
	}
	return err
}
