// Package heartbeat provides the per-worker liveness ticker every worker
// process embeds, and the Heartbeat Monitor that detects and recovers from
// dead workers. Dead-worker detection is the sole recovery mechanism for
// crashed workers: there is no separate lease-expiry sweeper. Heartbeats do
// not extend leases: a claim's lease lasts lease_seconds from the claim, and
// the Beater only upserts the worker's heartbeat row.
package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/leadpipe/pkg/model"
	"github.com/codeready-toolchain/leadpipe/pkg/storage"
)

// Beater runs a background ticker that upserts one worker's heartbeat row.
// Each worker process owns exactly one Beater for its own worker_id.
type Beater struct {
	store      *storage.Store
	workerID   string
	workerType string
	interval   time.Duration

	mu      sync.Mutex
	status  model.HeartbeatStatus
	runID   string
	task    string
	leaseAt *time.Time
}

// NewBeater creates a heartbeater for a worker process. Call Start once the
// process is ready to accept work, and Stop on graceful shutdown.
func NewBeater(store *storage.Store, workerID, workerType string, interval time.Duration) *Beater {
	return &Beater{
		store:      store,
		workerID:   workerID,
		workerType: workerType,
		interval:   interval,
		status:     model.HeartbeatIdle,
	}
}

// SetState updates the in-memory state the next tick will upsert. Safe for
// concurrent use; the worker's main loop calls this as it claims/releases work.
func (b *Beater) SetState(status model.HeartbeatStatus, runID, task string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
	b.runID = runID
	b.task = task
}

// Start writes an initial heartbeat and begins ticking every interval until
// ctx is cancelled. Intended to run in its own goroutine.
func (b *Beater) Start(ctx context.Context) {
	log := slog.With("worker_id", b.workerID, "worker_type", b.workerType)

	if err := b.beat(ctx); err != nil {
		log.Error("initial heartbeat failed", "error", err)
	}

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.beat(ctx); err != nil {
				log.Error("heartbeat failed", "error", err)
			}
		}
	}
}

func (b *Beater) beat(ctx context.Context) error {
	b.mu.Lock()
	in := storage.UpsertHeartbeatInput{
		WorkerID:     b.workerID,
		WorkerType:   b.workerType,
		Status:       b.status,
		CurrentRunID: b.runID,
		CurrentTask:  b.task,
	}
	b.mu.Unlock()
	return b.store.UpsertHeartbeat(ctx, in)
}

// Stop marks the worker's heartbeat row as stopped. Call on graceful shutdown
// only; a SIGKILL leaves the row to expire and the Monitor to release leases.
func (b *Beater) Stop(ctx context.Context) {
	if err := b.store.StopWorker(ctx, b.workerID); err != nil {
		slog.Error("failed to mark worker stopped", "worker_id", b.workerID, "error", err)
	}
}
