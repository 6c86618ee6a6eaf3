package pac

import (
	"context"
	"log/slog"
	"net/url"
	"sync"

	"github.com/yolkispalkis/hostproxy/pkg/common"
	"github.com/yolkispalkis/hostproxy/pkg/proxy"
)

// Executor fetches and evaluates PAC scripts off the caller's goroutine. It
// implements proxy.PacExecutor.
type Executor struct {
	fetcher *Fetcher
	engine  *Engine
}

// NewExecutor returns an Executor using fetcher and engine.
func NewExecutor(fetcher *Fetcher, engine *Engine) *Executor {
	return &Executor{fetcher: fetcher, engine: engine}
}

// Close releases the fetcher's connections and the engine's caches.
func (x *Executor) Close() {
	x.fetcher.Close()
	x.engine.Close()
}

// Execute starts evaluating FindProxyForURL for targetURL with the script at
// scriptURL. callback runs at most once, on a separate goroutine, and never
// after cancel has returned.
func (x *Executor) Execute(ctx context.Context, scriptURL, targetURL *url.URL, callback proxy.PacCallback) func() {
	ctx, stop := context.WithCancel(ctx)

	var (
		mu       sync.Mutex
		finished bool
	)
	deliver := func(list []proxy.Descriptor, err error) {
		mu.Lock()
		defer mu.Unlock()
		if finished {
			slog.Debug("Dropping PAC result after teardown", "url", targetURL.String())
			return
		}
		finished = true
		callback(list, err)
	}

	go func() {
		script, err := x.fetcher.Fetch(ctx, scriptURL)
		if err != nil {
			switch {
			case common.IsTimeoutError(err):
				slog.Warn("Timed out fetching PAC script", "uri", scriptURL.String(), "error", err)
			case common.IsCancelled(err):
				slog.Debug("PAC script fetch abandoned", "uri", scriptURL.String())
			}
			deliver(nil, err)
			return
		}

		result, err := x.engine.FindProxyForURL(ctx, script, targetURL.String(), targetURL.Hostname())
		if err != nil {
			deliver(nil, err)
			return
		}
		list := ParseResult(result)
		slog.Debug("PAC evaluation result", "url", targetURL.String(), "result", result, "candidates", len(list))
		deliver(list, nil)
	}()

	return func() {
		mu.Lock()
		finished = true
		mu.Unlock()
		stop()
	}
}
