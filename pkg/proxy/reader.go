package proxy

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/yolkispalkis/hostproxy/pkg/sysconf"
)

// ReadConfiguration takes one snapshot from src and reports the proxy mode.
// Precedence is static over PAC over auto-discovery. An unavailable or
// malformed snapshot reads as ModeOff.
func ReadConfiguration(ctx context.Context, src NetworkConfigSource) Mode {
	if src == nil {
		note(ctx, reasonConfigUnavailable, "error", "no source")
		return Mode{Kind: ModeOff}
	}
	snap, err := src.Copy(ctx)
	if err != nil {
		note(ctx, reasonConfigUnavailable, "error", err)
		return Mode{Kind: ModeOff}
	}
	mode := ModeFromSnapshot(snap)
	slog.Debug("Read proxy configuration", "mode", mode.Kind, "host", mode.Host, "port", mode.Port, "script", mode.ScriptURL)
	return mode
}

// ModeFromSnapshot interprets a snapshot. A mode whose enable flag is set but
// whose parameters are missing or invalid yields ModeOff; lower precedence
// modes are not consulted in that case.
func ModeFromSnapshot(snap sysconf.Snapshot) Mode {
	if enabled, ok := snap.Bool(sysconf.KeyHTTPEnable); ok && enabled {
		host, okHost := snap.String(sysconf.KeyHTTPProxy)
		port, okPort := snap.Int(sysconf.KeyHTTPPort)
		host = strings.TrimSpace(host)
		if !okHost || !okPort || host == "" || port <= 0 || port > math.MaxUint16 {
			slog.Warn("Static proxy enabled without a usable host and port", "host", host, "port", port)
			return Mode{Kind: ModeOff}
		}
		exceptions, _ := snap.Strings(sysconf.KeyExceptionsList)
		return Mode{Kind: ModeStatic, Host: host, Port: uint32(port), Exceptions: exceptions}
	}

	if enabled, ok := snap.Bool(sysconf.KeyProxyAutoConfigEnable); ok && enabled {
		script, ok := snap.String(sysconf.KeyProxyAutoConfigURLString)
		script = strings.TrimSpace(script)
		if !ok || script == "" {
			slog.Warn("Proxy auto-config enabled without a script URL")
			return Mode{Kind: ModeOff}
		}
		return Mode{Kind: ModeAutoConfig, ScriptURL: script}
	}

	if enabled, ok := snap.Bool(sysconf.KeyProxyAutoDiscoveryEnable); ok && enabled {
		return Mode{Kind: ModeAutoDiscovery}
	}

	return Mode{Kind: ModeOff}
}
