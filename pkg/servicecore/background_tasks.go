package servicecore

import (
	"context"
	"log/slog"
	"time"
)

const statsLogIntervalDefault = 5 * time.Minute

type BackgroundTasks struct {
	stateManager *StateManager
}

func NewBackgroundTasks(stateMgr *StateManager) *BackgroundTasks {
	return &BackgroundTasks{stateManager: stateMgr}
}

// RunStatsLogger logs the service counters every interval until ctx ends.
// A non-positive interval uses the default.
func (bt *BackgroundTasks) RunStatsLogger(ctx context.Context, interval time.Duration) {
	sm := bt.stateManager
	if interval <= 0 {
		interval = statsLogIntervalDefault
	}

	sm.AddWaitGroup(1)
	go func() {
		defer sm.WaitGroupDone()

		slog.Debug("Starting periodic service stats logger", "interval", interval)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Debug("Stopping periodic service stats logger")
				return
			case <-ticker.C:
				bt.logPeriodicStats()
			}
		}
	}()
}

func (bt *BackgroundTasks) logPeriodicStats() {
	status := bt.stateManager.Status()
	slog.Info("Service Status",
		"uptime", (time.Duration(status.UptimeSeconds) * time.Second).String(),
		"resolutions_total", status.Resolutions,
		"proxied_total", status.Proxied,
		"active_connections", status.ActiveConnections,
	)
}
