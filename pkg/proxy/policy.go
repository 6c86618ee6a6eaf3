package proxy

import (
	"context"
	"log/slog"
)

// reason names a path on which resolution degrades instead of failing.
type reason string

const (
	reasonLocalhost          reason = "localhost target is never proxied"
	reasonConfigUnavailable  reason = "network configuration unavailable"
	reasonModeOff            reason = "no proxy configured"
	reasonBypassed           reason = "target matches a proxy exception"
	reasonAutoDiscovery      reason = "auto-discovery is not resolved"
	reasonNoExecutor         reason = "no PAC executor available"
	reasonScriptURLInvalid   reason = "invalid PAC script URL"
	reasonTargetURLInvalid   reason = "invalid target URL"
	reasonPACFailed          reason = "PAC evaluation failed"
	reasonPACTimeout         reason = "PAC evaluation timed out"
	reasonPACCancelled       reason = "PAC evaluation cancelled"
	reasonNoHTTPCandidate    reason = "PAC returned no HTTP proxy"
	reasonCredentialQuery    reason = "credential store query failed"
	reasonCredentialItem     reason = "credential item unreadable"
	reasonCredentialNotFound reason = "no stored credentials"
)

// degradePolicy is the log level for every degrade path. Nothing on these
// paths is returned to the caller: disabled settings or settings without
// credentials are.
var degradePolicy = map[reason]slog.Level{
	reasonLocalhost:          slog.LevelDebug,
	reasonConfigUnavailable:  slog.LevelWarn,
	reasonModeOff:            slog.LevelDebug,
	reasonBypassed:           slog.LevelDebug,
	reasonAutoDiscovery:      slog.LevelDebug,
	reasonNoExecutor:         slog.LevelWarn,
	reasonScriptURLInvalid:   slog.LevelError,
	reasonTargetURLInvalid:   slog.LevelError,
	reasonPACFailed:          slog.LevelError,
	reasonPACTimeout:         slog.LevelError,
	reasonPACCancelled:       slog.LevelWarn,
	reasonNoHTTPCandidate:    slog.LevelDebug,
	reasonCredentialQuery:    slog.LevelWarn,
	reasonCredentialItem:     slog.LevelWarn,
	reasonCredentialNotFound: slog.LevelDebug,
}

func note(ctx context.Context, r reason, attrs ...any) {
	level, ok := degradePolicy[r]
	if !ok {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, string(r), attrs...)
}

// disable logs r and returns disabled settings.
func disable(ctx context.Context, r reason, attrs ...any) Settings {
	note(ctx, r, attrs...)
	return Disabled
}
