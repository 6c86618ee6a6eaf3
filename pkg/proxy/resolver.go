package proxy

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	DefaultPacTimeout      = 5 * time.Second
	DefaultPacPollInterval = 100 * time.Millisecond
)

// Resolver answers "which HTTP proxy for this URL" from the host's network
// configuration. It holds no per-call state and is safe for concurrent use.
type Resolver struct {
	source       NetworkConfigSource
	store        CredentialStore
	executor     PacExecutor
	timeout      time.Duration
	pollInterval time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTimeout bounds how long EvaluatePAC waits for the executor.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithPollInterval sets how often a pending PAC evaluation is reported at
// debug level.
func WithPollInterval(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// NewResolver returns a Resolver. Any service may be nil: a nil source reads
// as no proxy, a nil store yields settings without credentials and a nil
// executor disables PAC configurations.
func NewResolver(source NetworkConfigSource, store CredentialStore, executor PacExecutor, opts ...Option) *Resolver {
	r := &Resolver{
		source:       source,
		store:        store,
		executor:     executor,
		timeout:      DefaultPacTimeout,
		pollInterval: DefaultPacPollInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the proxy settings to use for rawURL.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) Settings {
	if IsLocalhost(rawURL) {
		return disable(ctx, reasonLocalhost, "url", rawURL)
	}

	mode := ReadConfiguration(ctx, r.source)
	var settings Settings
	switch mode.Kind {
	case ModeStatic:
		if Bypasses(mode.Exceptions, rawURL) {
			return disable(ctx, reasonBypassed, "url", rawURL)
		}
		settings = r.ResolveCredentials(ctx, mode.Host, mode.Port)
	case ModeAutoConfig:
		settings = r.EvaluatePAC(ctx, mode.ScriptURL, rawURL)
	case ModeAutoDiscovery:
		return disable(ctx, reasonAutoDiscovery, "url", rawURL)
	default:
		return disable(ctx, reasonModeOff, "url", rawURL)
	}
	slog.Debug("Resolved proxy", "url", rawURL, "mode", mode.Kind, "settings", settings)
	return settings
}

// ProxyFunc adapts the resolver to http.Transport.Proxy. Resolution never
// fails; a nil URL means a direct connection.
func (r *Resolver) ProxyFunc() func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		return r.Resolve(req.Context(), req.URL.String()).URL(), nil
	}
}
