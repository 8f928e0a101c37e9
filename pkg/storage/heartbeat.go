package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/codeready-toolchain/leadpipe/pkg/model"
)

// UpsertHeartbeatInput is the caller-supplied shape for a liveness update.
type UpsertHeartbeatInput struct {
	WorkerID       string
	WorkerType     string
	Status         model.HeartbeatStatus
	CurrentRunID   string
	CurrentTask    string
	LeaseExpiresAt *time.Time
	Metadata       any
}

// UpsertHeartbeat records a worker's liveness. Called on startup and on every
// heartbeat tick thereafter.
func (s *Store) UpsertHeartbeat(ctx context.Context, in UpsertHeartbeatInput) error {
	metadataJSON, err := marshalEvidence(in.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO worker_heartbeats (worker_id, worker_type, last_heartbeat_at, status, current_run_id, current_task, lease_expires_at, started_at, metadata)
		VALUES ($1, $2, now(), $3, $4, $5, $6, now(), $7)
		ON CONFLICT (worker_id) DO UPDATE SET
			last_heartbeat_at = now(),
			status = EXCLUDED.status,
			current_run_id = EXCLUDED.current_run_id,
			current_task = EXCLUDED.current_task,
			lease_expires_at = EXCLUDED.lease_expires_at,
			metadata = EXCLUDED.metadata`,
		in.WorkerID, in.WorkerType, string(in.Status), nullIfEmpty(in.CurrentRunID), nullIfEmpty(in.CurrentTask),
		in.LeaseExpiresAt, metadataJSON)
	if err != nil {
		return fmt.Errorf("upserting heartbeat: %w", err)
	}
	return nil
}

// StopWorker marks a worker's heartbeat row as stopped, on graceful shutdown.
func (s *Store) StopWorker(ctx context.Context, workerID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE worker_heartbeats SET status = 'stopped', last_heartbeat_at = now() WHERE worker_id = $1`, workerID)
	if err != nil {
		return fmt.Errorf("stopping worker: %w", err)
	}
	return nil
}

// ListActiveHeartbeats returns workers whose heartbeat is within the liveness window.
func (s *Store) ListActiveHeartbeats(ctx context.Context, livenessWindow time.Duration) ([]*model.WorkerHeartbeat, error) {
	return s.listHeartbeats(ctx, `WHERE status != 'stopped' AND last_heartbeat_at >= $1`, time.Now().Add(-livenessWindow))
}

// ListDeadHeartbeats returns workers whose heartbeat predates the dead-worker threshold.
func (s *Store) ListDeadHeartbeats(ctx context.Context, deadThreshold time.Duration) ([]*model.WorkerHeartbeat, error) {
	return s.listHeartbeats(ctx, `WHERE status != 'stopped' AND last_heartbeat_at < $1`, time.Now().Add(-deadThreshold))
}

func (s *Store) listHeartbeats(ctx context.Context, where string, arg any) ([]*model.WorkerHeartbeat, error) {
	var rows []heartbeatRow
	query := `SELECT worker_id, worker_type, last_heartbeat_at, status, current_run_id, current_task, lease_expires_at, started_at, metadata
		FROM worker_heartbeats ` + where
	if err := s.db.SelectContext(ctx, &rows, query, arg); err != nil {
		return nil, fmt.Errorf("listing heartbeats: %w", err)
	}
	out := make([]*model.WorkerHeartbeat, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

// ReleaseLeasesFor clears worker_id/lease_until on every candidate/contact row
// owned by workerID whose lease is (or was) in the future. Returns the number
// of rows released across both tables. This is the Heartbeat Monitor's sole
// recovery mechanism for a crashed worker.
func (s *Store) ReleaseLeasesFor(ctx context.Context, workerID string) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning release transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var released int
	for _, table := range []string{"company_candidates", "contact_candidates"} {
		res, err := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET worker_id = NULL, lease_until = NULL WHERE worker_id = $1`, table),
			workerID)
		if err != nil {
			return 0, fmt.Errorf("releasing leases in %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("checking rows affected in %s: %w", table, err)
		}
		released += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing lease release: %w", err)
	}
	return released, nil
}

// PurgeStoppedHeartbeats deletes stopped heartbeat rows older than retention.
func (s *Store) PurgeStoppedHeartbeats(ctx context.Context, retention time.Duration) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM worker_heartbeats WHERE status = 'stopped' AND last_heartbeat_at < $1`,
		time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purging stopped heartbeats: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return int(n), nil
}

// GetHeartbeat fetches a single worker's heartbeat row.
func (s *Store) GetHeartbeat(ctx context.Context, workerID string) (*model.WorkerHeartbeat, error) {
	var row heartbeatRow
	err := s.db.GetContext(ctx, &row, `
		SELECT worker_id, worker_type, last_heartbeat_at, status, current_run_id, current_task, lease_expires_at, started_at, metadata
		FROM worker_heartbeats WHERE worker_id = $1`, workerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying heartbeat: %w", err)
	}
	return row.toModel(), nil
}

type heartbeatRow struct {
	WorkerID        string     `db:"worker_id"`
	WorkerType      string     `db:"worker_type"`
	LastHeartbeatAt time.Time  `db:"last_heartbeat_at"`
	Status          string     `db:"status"`
	CurrentRunID    *string    `db:"current_run_id"`
	CurrentTask     *string    `db:"current_task"`
	LeaseExpiresAt  *time.Time `db:"lease_expires_at"`
	StartedAt       time.Time  `db:"started_at"`
	Metadata        []byte     `db:"metadata"`
}

func (r heartbeatRow) toModel() *model.WorkerHeartbeat {
	return &model.WorkerHeartbeat{
		WorkerID:        r.WorkerID,
		WorkerType:      r.WorkerType,
		LastHeartbeatAt: r.LastHeartbeatAt,
		Status:          model.HeartbeatStatus(r.Status),
		CurrentRunID:    r.CurrentRunID,
		CurrentTask:     r.CurrentTask,
		LeaseExpiresAt:  r.LeaseExpiresAt,
		StartedAt:       r.StartedAt,
		Metadata:        json.RawMessage(r.Metadata),
	}
}
