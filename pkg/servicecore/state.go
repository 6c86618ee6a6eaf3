package servicecore

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yolkispalkis/hostproxy/pkg/ipc"
	"github.com/yolkispalkis/hostproxy/pkg/proxy"
)

// Resolver is the part of *proxy.Resolver the service needs.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) proxy.Settings
}

// ScriptCache drops downloaded PAC scripts. *pac.Fetcher implements it.
type ScriptCache interface {
	Invalidate(u *url.URL)
}

// Info describes the service for get_status.
type Info struct {
	Version         string
	Source          string
	CredentialStore string
}

// StateManager holds the shared state of a running resolve service.
type StateManager struct {
	resolver  Resolver
	scripts   ScriptCache
	info      Info
	startTime time.Time
	wg        sync.WaitGroup

	resolutions atomic.Uint64
	proxied     atomic.Uint64
	activeConns atomic.Int64
}

// NewStateManager returns a StateManager. scripts may be nil.
func NewStateManager(resolver Resolver, scripts ScriptCache, info Info) (*StateManager, error) {
	if resolver == nil {
		return nil, errors.New("resolver cannot be nil")
	}
	return &StateManager{
		resolver:  resolver,
		scripts:   scripts,
		info:      info,
		startTime: time.Now(),
	}, nil
}

// Resolve resolves rawURL and updates the counters.
func (sm *StateManager) Resolve(ctx context.Context, rawURL string) proxy.Settings {
	settings := sm.resolver.Resolve(ctx, rawURL)
	sm.resolutions.Add(1)
	if settings.Enabled {
		sm.proxied.Add(1)
	}
	return settings
}

// InvalidateScript drops a cached PAC script. It reports false when the
// service has no script cache.
func (sm *StateManager) InvalidateScript(u *url.URL) bool {
	if sm.scripts == nil {
		return false
	}
	sm.scripts.Invalidate(u)
	slog.Info("PAC script invalidated", "uri", u.String())
	return true
}

// Status returns a snapshot of the service counters.
func (sm *StateManager) Status() ipc.GetStatusData {
	return ipc.GetStatusData{
		Status:            "running",
		ServiceVersion:    sm.info.Version,
		UptimeSeconds:     int64(time.Since(sm.GetStartTime()).Seconds()),
		Source:            sm.info.Source,
		CredentialStore:   sm.info.CredentialStore,
		Resolutions:       sm.resolutions.Load(),
		Proxied:           sm.proxied.Load(),
		ActiveConnections: sm.activeConns.Load(),
	}
}

func (sm *StateManager) GetStartTime() time.Time { return sm.startTime }

func (sm *StateManager) AddWaitGroup(delta int) { sm.wg.Add(delta) }

func (sm *StateManager) WaitGroupDone() { sm.wg.Done() }

// Wait blocks until every goroutine started by the service has returned.
func (sm *StateManager) Wait() { sm.wg.Wait() }
