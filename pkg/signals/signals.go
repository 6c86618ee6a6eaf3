package signals

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SetupHandler cancels via TriggerShutdown on SIGINT or SIGTERM. The listener
// stops once ctx is done.
func SetupHandler(ctx context.Context, cancel context.CancelFunc, shutdownOnce *sync.Once) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go watch(ctx, sigCh, cancel, shutdownOnce)
}

func watch(ctx context.Context, sigCh chan os.Signal, cancel context.CancelFunc, shutdownOnce *sync.Once) {
	select {
	case sig := <-sigCh:
		slog.Info("Received signal, cancelling pending resolutions", "signal", sig)
		TriggerShutdown(shutdownOnce, cancel)
	case <-ctx.Done():
		slog.Debug("Signal handler context done, stopping listener.")
	}
	signal.Stop(sigCh)
}

// TriggerShutdown calls cancel at most once.
func TriggerShutdown(shutdownOnce *sync.Once, cancel context.CancelFunc) {
	shutdownOnce.Do(func() {
		slog.Debug("Triggering shutdown")
		if cancel != nil {
			cancel()
		}
	})
}
