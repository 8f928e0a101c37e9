package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/leadpipe/pkg/storage"
)

// MonitorConfig tunes the Heartbeat Monitor process.
type MonitorConfig struct {
	// MonitorInterval is how often the monitor scans for dead workers.
	MonitorInterval time.Duration
	// DeadThreshold is how long a heartbeat may go stale before its owner is
	// considered dead and its leases released.
	DeadThreshold time.Duration
	// StoppedRetention is how long a stopped heartbeat row is kept before purge.
	StoppedRetention time.Duration
}

// DefaultMonitorConfig is a 60s monitor interval with a 5 minute
// dead-worker threshold.
var DefaultMonitorConfig = MonitorConfig{
	MonitorInterval:  60 * time.Second,
	DeadThreshold:    5 * time.Minute,
	StoppedRetention: 24 * time.Hour,
}

// Monitor is the standalone process that detects dead workers and releases
// their leases so other workers can reclaim the abandoned work.
type Monitor struct {
	store  *storage.Store
	config MonitorConfig
}

// NewMonitor constructs a Monitor against store.
func NewMonitor(store *storage.Store, config MonitorConfig) *Monitor {
	return &Monitor{store: store, config: config}
}

// Run loops until ctx is cancelled, running one sweep per MonitorInterval.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.config.MonitorInterval)
	defer ticker.Stop()

	if err := m.sweep(ctx); err != nil {
		slog.Error("heartbeat monitor sweep failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.sweep(ctx); err != nil {
				slog.Error("heartbeat monitor sweep failed", "error", err)
			}
		}
	}
}

// sweep performs one monitor cycle: find dead workers, release their leases,
// then purge old stopped heartbeats. All pods may run this independently;
// every operation here is idempotent.
func (m *Monitor) sweep(ctx context.Context) error {
	dead, err := m.store.ListDeadHeartbeats(ctx, m.config.DeadThreshold)
	if err != nil {
		return err
	}

	if len(dead) > 0 {
		slog.Warn("detected dead workers", "count", len(dead))
	}

	for _, w := range dead {
		released, err := m.store.ReleaseLeasesFor(ctx, w.WorkerID)
		if err != nil {
			slog.Error("failed to release leases for dead worker", "worker_id", w.WorkerID, "error", err)
			continue
		}
		if err := m.store.StopWorker(ctx, w.WorkerID); err != nil {
			slog.Error("failed to mark dead worker stopped", "worker_id", w.WorkerID, "error", err)
			continue
		}
		slog.Info("recovered dead worker", "worker_id", w.WorkerID, "worker_type", w.WorkerType, "leases_released", released)
	}

	purged, err := m.store.PurgeStoppedHeartbeats(ctx, m.config.StoppedRetention)
	if err != nil {
		return err
	}
	if purged > 0 {
		slog.Info("purged stopped heartbeats", "count", purged)
	}
	return nil
}
