package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/codeready-toolchain/leadpipe/pkg/model"
)

// runRow mirrors the runs table; criteria is stored as jsonb and needs a
// manual marshal/unmarshal step sqlx does not perform for us.
type runRow struct {
	ID             string    `db:"id"`
	CreatedAt      time.Time `db:"created_at"`
	Criteria       []byte    `db:"criteria"`
	TargetQuantity int       `db:"target_quantity"`
	ContactsMin    int       `db:"contacts_min"`
	ContactsMax    int       `db:"contacts_max"`
	Stage          string    `db:"stage"`
	Status         string    `db:"status"`
	Notes          string    `db:"notes"`
}

func (r runRow) toModel() (*model.Run, error) {
	var criteria model.Criteria
	if len(r.Criteria) > 0 {
		if err := json.Unmarshal(r.Criteria, &criteria); err != nil {
			return nil, fmt.Errorf("unmarshalling criteria: %w", err)
		}
	}
	return &model.Run{
		ID:             r.ID,
		CreatedAt:      r.CreatedAt,
		Criteria:       criteria,
		TargetQuantity: r.TargetQuantity,
		ContactsMin:    r.ContactsMin,
		ContactsMax:    r.ContactsMax,
		Stage:          model.Stage(r.Stage),
		Status:         model.Status(r.Status),
		Notes:          r.Notes,
	}, nil
}

// CreateRun initializes a new run in stage=discovery, status=active.
func (s *Store) CreateRun(ctx context.Context, criteria model.Criteria, targetQuantity, contactsMin, contactsMax int) (string, error) {
	if contactsMin > contactsMax {
		return "", fmt.Errorf("%w: contacts_min %d exceeds contacts_max %d", ErrInvalidTransition, contactsMin, contactsMax)
	}
	if targetQuantity < 1 {
		return "", fmt.Errorf("%w: target_quantity must be >= 1", ErrInvalidTransition)
	}

	criteriaJSON, err := json.Marshal(criteria)
	if err != nil {
		return "", fmt.Errorf("marshalling criteria: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, criteria, target_quantity, contacts_min, contacts_max, stage, status)
		VALUES ($1, $2, $3, $4, $5, 'discovery', 'active')`,
		id, criteriaJSON, targetQuantity, contactsMin, contactsMax)
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}
	return id, nil
}

// GetRun fetches a run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `SELECT id, created_at, criteria, target_quantity, contacts_min, contacts_max, stage, status, notes FROM runs WHERE id = $1`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return row.toModel()
}

// ListActiveRuns lists runs in status active, optionally filtered by stage and/or a single run id.
func (s *Store) ListActiveRuns(ctx context.Context, stageFilter *model.Stage, runIDFilter *string) ([]*model.Run, error) {
	query := `SELECT id, created_at, criteria, target_quantity, contacts_min, contacts_max, stage, status, notes
		FROM runs WHERE status = 'active'`
	args := []any{}
	if stageFilter != nil {
		args = append(args, string(*stageFilter))
		query += fmt.Sprintf(" AND stage = $%d", len(args))
	}
	if runIDFilter != nil {
		args = append(args, *runIDFilter)
		query += fmt.Sprintf(" AND id = $%d", len(args))
	}
	query += " ORDER BY created_at ASC"

	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	runs := make([]*model.Run, 0, len(rows))
	for _, row := range rows {
		m, err := row.toModel()
		if err != nil {
			return nil, err
		}
		runs = append(runs, m)
	}
	return runs, nil
}

// ListRuns lists every run regardless of status, for the orchestrator API.
func (s *Store) ListRuns(ctx context.Context) ([]*model.Run, error) {
	var rows []runRow
	err := s.db.SelectContext(ctx, &rows, `SELECT id, created_at, criteria, target_quantity, contacts_min, contacts_max, stage, status, notes FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	runs := make([]*model.Run, 0, len(rows))
	for _, row := range rows {
		m, err := row.toModel()
		if err != nil {
			return nil, err
		}
		runs = append(runs, m)
	}
	return runs, nil
}

// SetStage advances a run to newStage. Refuses to mutate a run whose status
// is already terminal, and refuses to move stage backward.
func (s *Store) SetStage(ctx context.Context, runID string, newStage model.Stage) error {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return fmt.Errorf("%w: run %s status %s is terminal", ErrInvalidTransition, runID, run.Status)
	}
	if newStage.Before(run.Stage) {
		return fmt.Errorf("%w: run %s cannot move stage %s back to %s", ErrInvalidTransition, runID, run.Stage, newStage)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE runs SET stage = $1 WHERE id = $2`, string(newStage), runID)
	if err != nil {
		return fmt.Errorf("updating stage: %w", err)
	}
	return mustAffectOne(res)
}

// SetStatus transitions a run's status, optionally appending to notes.
// Refuses to leave a terminal status once reached.
func (s *Store) SetStatus(ctx context.Context, runID string, newStatus model.Status, notes string) error {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return fmt.Errorf("%w: run %s status %s is terminal", ErrInvalidTransition, runID, run.Status)
	}

	query := `UPDATE runs SET status = $1 WHERE id = $2`
	args := []any{string(newStatus), runID}
	if notes != "" {
		query = `UPDATE runs SET status = $1, notes = CASE WHEN notes = '' THEN $3 ELSE notes || E'\n' || $3 END WHERE id = $2`
		args = append(args, notes)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	return mustAffectOne(res)
}

// RecordDecisionMarker appends a marker to the notes of a run parked in
// needs_user_decision, for the "expand geography" / "loosen PMS" choices.
// Status is left at needs_user_decision: these choices only record that the
// operator intends to widen criteria externally, they do not resume the run
// themselves. Resumption is a distinct operation, ResumeRun, invoked once
// that external criteria edit has actually happened.
func (s *Store) RecordDecisionMarker(ctx context.Context, runID, marker string) error {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != model.StatusNeedsUserDecision {
		return fmt.Errorf("%w: run %s is not parked in needs_user_decision", ErrInvalidTransition, runID)
	}
	return s.AppendNotes(ctx, runID, marker)
}

// ResumeRun resumes a run parked in needs_user_decision back to active,
// optionally widening target_quantity and/or contacts_min at the same time.
// Zero values leave the corresponding field unchanged. This is the separate,
// external act that follows a "expand geography"/"loosen PMS" decision: the
// operator edits criteria out of band, then calls this to put the run back
// in front of its workers.
func (s *Store) ResumeRun(ctx context.Context, runID string, targetQuantity, contactsMin int) error {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != model.StatusNeedsUserDecision {
		return fmt.Errorf("%w: run %s is not parked in needs_user_decision", ErrInvalidTransition, runID)
	}

	newTarget := run.TargetQuantity
	if targetQuantity > 0 {
		newTarget = targetQuantity
	}
	newContactsMin := run.ContactsMin
	if contactsMin > 0 {
		newContactsMin = contactsMin
	}
	if newContactsMin > run.ContactsMax {
		return fmt.Errorf("%w: contacts_min %d exceeds contacts_max %d", ErrInvalidTransition, newContactsMin, run.ContactsMax)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET target_quantity = $1, contacts_min = $2, status = 'active' WHERE id = $3`,
		newTarget, newContactsMin, runID)
	if err != nil {
		return fmt.Errorf("resuming run: %w", err)
	}
	return mustAffectOne(res)
}

// AppendNotes appends a line to a run's notes without touching stage/status.
func (s *Store) AppendNotes(ctx context.Context, runID, note string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET notes = CASE WHEN notes = '' THEN $2 ELSE notes || E'\n' || $2 END WHERE id = $1`,
		runID, note)
	if err != nil {
		return fmt.Errorf("appending notes: %w", err)
	}
	return mustAffectOne(res)
}

func mustAffectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
