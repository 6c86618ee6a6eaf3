package servicecore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/yolkispalkis/hostproxy/pkg/common"
	"github.com/yolkispalkis/hostproxy/pkg/ipc"
	"github.com/yolkispalkis/hostproxy/pkg/proxy"
)

const (
	ipcWriteTimeout    = 2 * time.Second
	ipcReadIdleTimeout = 90 * time.Second
)

type IpcHandler struct {
	stateManager *StateManager
}

func NewIpcHandler(stateMgr *StateManager) *IpcHandler {
	return &IpcHandler{stateManager: stateMgr}
}

// HandleConnection serves newline-delimited JSON commands on conn until the
// client disconnects or ctx ends.
func (h *IpcHandler) HandleConnection(ctx context.Context, conn net.Conn) {
	clientAddrStr := "unknown"
	if addr := conn.RemoteAddr(); addr != nil && addr.String() != "" {
		clientAddrStr = addr.String()
	}
	logCtx := slog.With("client_addr", clientAddrStr)
	logCtx.Debug("Handling new IPC connection")

	h.stateManager.activeConns.Add(1)
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		cancel()
		conn.Close()
		h.stateManager.activeConns.Add(-1)
		logCtx.Debug("Finished handling IPC connection")
	}()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	for {
		var cmd ipc.Command
		conn.SetReadDeadline(time.Now().Add(ipcReadIdleTimeout))
		err := decoder.Decode(&cmd)
		conn.SetReadDeadline(time.Time{})

		if err != nil {
			switch {
			case ctx.Err() != nil:
				logCtx.Debug("Closing IPC connection due to service shutdown")
			case common.IsConnectionClosedErr(err):
				logCtx.Debug("IPC connection closed by client")
			case common.IsTimeoutError(err):
				logCtx.Info("IPC connection idle, closing", "timeout", ipcReadIdleTimeout)
			default:
				logCtx.Warn("Failed to decode IPC command", "error", err)
			}
			return
		}

		logCtxCmd := logCtx.With("command", cmd.Command)
		logCtxCmd.Debug("Received IPC command")

		resp, procErr := h.processIPCCommand(ctx, &cmd)
		if procErr != nil {
			logCtxCmd.Warn("Error processing IPC command", "error", procErr)
			resp = ipc.NewErrorResponse(procErr.Error())
		}

		conn.SetWriteDeadline(time.Now().Add(ipcWriteTimeout))
		encodeErr := encoder.Encode(resp)
		conn.SetWriteDeadline(time.Time{})
		if encodeErr != nil {
			logCtxCmd.Warn("Failed to send IPC response", "error", encodeErr)
			return
		}
		logCtxCmd.Debug("Sent IPC response", "status", resp.Status)
	}
}

func (h *IpcHandler) processIPCCommand(ctx context.Context, cmd *ipc.Command) (*ipc.Response, error) {
	switch cmd.Command {
	case ipc.CommandResolve:
		var data ipc.ResolveData
		if err := ipc.DecodeData(cmd.Data, &data); err != nil {
			return nil, fmt.Errorf("invalid resolve data: %w", err)
		}
		if data.URL == "" {
			return nil, errors.New("resolve requires a url")
		}
		settings := h.stateManager.Resolve(ctx, data.URL)
		return ipc.NewOKResponse(ipc.NewResolveResult(data.URL, settings))

	case ipc.CommandInvalidatePAC:
		var data ipc.InvalidatePACData
		if err := ipc.DecodeData(cmd.Data, &data); err != nil {
			return nil, fmt.Errorf("invalid invalidate_pac data: %w", err)
		}
		u, err := proxy.ParseScriptURL(data.ScriptURL)
		if err != nil {
			return nil, fmt.Errorf("invalid script_url: %w", err)
		}
		if !h.stateManager.InvalidateScript(u) {
			return nil, errors.New("service has no PAC script cache")
		}
		return ipc.NewOKResponse(nil)

	case ipc.CommandGetStatus:
		return ipc.NewOKResponse(h.stateManager.Status())

	case ipc.CommandPing:
		return ipc.NewOKResponse(nil)

	default:
		return nil, fmt.Errorf("unknown command: %s", cmd.Command)
	}
}
