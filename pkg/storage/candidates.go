package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/leadpipe/pkg/model"
)

// InsertCompanyCandidateInput is the caller-supplied shape for a new candidate.
type InsertCompanyCandidateInput struct {
	RunID           string
	Name            string
	Website         string
	Domain          string
	State           string
	Description     string
	DiscoverySource string
	PMSDetected     string
	UnitsEstimate   *int
	Evidence        any
	Status          model.CandidateStatus
	QualityScore    float64
	IdempotencyKey  string
}

// InsertCompanyCandidate idempotently inserts a company candidate. A
// unique-constraint violation on (run_id, domain) or (run_id, idempotency_key)
// is absorbed and reported via ErrAlreadyExists; every other error propagates.
func (s *Store) InsertCompanyCandidate(ctx context.Context, in InsertCompanyCandidateInput) (string, error) {
	evidenceJSON, err := marshalEvidence(in.Evidence)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	status := in.Status
	if status == "" {
		status = model.CandidateStatusCandidate
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO company_candidates
			(id, run_id, name, website, domain, state, description, discovery_source,
			 pms_detected, units_estimate, evidence, status, quality_score, idempotency_key)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		id, in.RunID, in.Name, in.Website, in.Domain, in.State, nullIfEmpty(in.Description),
		in.DiscoverySource, nullIfEmpty(in.PMSDetected), in.UnitsEstimate, evidenceJSON,
		string(status), in.QualityScore, in.IdempotencyKey)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrAlreadyExists
		}
		return "", fmt.Errorf("inserting company candidate: %w", err)
	}
	return id, nil
}

// GetCompanyCandidate fetches one candidate by id.
func (s *Store) GetCompanyCandidate(ctx context.Context, id string) (*model.CompanyCandidate, error) {
	var row companyCandidateRow
	if err := s.db.GetContext(ctx, &row, companyCandidateSelect+` WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("querying company candidate: %w", err)
	}
	return row.toModel(), nil
}

// ListCompanyCandidates lists all candidates for a run, optionally filtered by status.
func (s *Store) ListCompanyCandidates(ctx context.Context, runID string, statuses ...model.CandidateStatus) ([]*model.CompanyCandidate, error) {
	query := companyCandidateSelect + ` WHERE run_id = $1`
	args := []any{runID}
	if len(statuses) > 0 {
		placeholders, extra := inPlaceholders(statuses, len(args)+1)
		query += fmt.Sprintf(" AND status IN (%s)", placeholders)
		args = append(args, extra...)
	}
	query += " ORDER BY quality_score DESC, domain ASC"

	var rows []companyCandidateRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing company candidates: %w", err)
	}
	out := make([]*model.CompanyCandidate, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

// ClaimCompanyForResearch atomically selects one validated company in runID
// that has no research row and whose lease is expired or null, stamps
// worker_id/lease_until, and returns it. Returns ErrNoClaimableWork if none.
func (s *Store) ClaimCompanyForResearch(ctx context.Context, runID, workerID string, leaseSeconds int) (*model.CompanyCandidate, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row companyCandidateRow
	err = tx.GetContext(ctx, &row, `
		SELECT cc.id, cc.run_id, cc.name, cc.website, cc.domain, cc.state, cc.description,
		       cc.discovery_source, cc.pms_detected, cc.units_estimate, cc.evidence, cc.status,
		       cc.meets_all_requirements, cc.rejected_reasons, cc.quality_score, cc.idempotency_key,
		       cc.worker_id, cc.lease_until, cc.created_at
		FROM company_candidates cc
		LEFT JOIN company_research cr ON cr.run_id = cc.run_id AND cr.company_id = cc.id
		WHERE cc.run_id = $1
		  AND cc.status = 'validated'
		  AND cr.id IS NULL
		  AND (cc.lease_until IS NULL OR cc.lease_until < now())
		ORDER BY cc.quality_score DESC, cc.domain ASC
		LIMIT 1
		FOR UPDATE OF cc SKIP LOCKED`, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoClaimableWork
		}
		return nil, fmt.Errorf("selecting research candidate: %w", err)
	}

	leaseUntil := time.Now().Add(time.Duration(leaseSeconds) * time.Second)
	if _, err := tx.ExecContext(ctx, `UPDATE company_candidates SET worker_id = $1, lease_until = $2 WHERE id = $3`,
		workerID, leaseUntil, row.ID); err != nil {
		return nil, fmt.Errorf("claiming research candidate: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	row.WorkerID = &workerID
	row.LeaseUntil = &leaseUntil
	return row.toModel(), nil
}

// HasUnresearchedCompanies reports whether runID still has any validated
// company with no research row, ignoring lease state entirely. Used to tell
// a genuinely empty research queue apart from one where every remaining
// company is simply leased by a concurrent worker right now.
func (s *Store) HasUnresearchedCompanies(ctx context.Context, runID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1
			FROM company_candidates cc
			LEFT JOIN company_research cr ON cr.run_id = cc.run_id AND cr.company_id = cc.id
			WHERE cc.run_id = $1 AND cc.status = 'validated' AND cr.id IS NULL
		)`, runID)
	if err != nil {
		return false, fmt.Errorf("checking remaining research queue: %w", err)
	}
	return exists, nil
}

// ClaimResult is the outcome of ClaimCompanyForContacts: the claimed company
// plus how many contacts are still needed for it.
type ClaimResult struct {
	Company *model.CompanyCandidate
	Needed  int
}

// ClaimCompanyForContacts atomically selects one company with contacts_min_gap > 0,
// stamps a lease, and returns it with the gap size. Returns ErrNoClaimableWork if none.
func (s *Store) ClaimCompanyForContacts(ctx context.Context, runID, workerID string, leaseSeconds int) (*ClaimResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row struct {
		companyCandidateRow
		ContactsMinGap int `db:"contacts_min_gap"`
	}
	err = tx.GetContext(ctx, &row, `
		SELECT cc.id, cc.run_id, cc.name, cc.website, cc.domain, cc.state, cc.description,
		       cc.discovery_source, cc.pms_detected, cc.units_estimate, cc.evidence, cc.status,
		       cc.meets_all_requirements, cc.rejected_reasons, cc.quality_score, cc.idempotency_key,
		       cc.worker_id, cc.lease_until, cc.created_at,
		       GREATEST(r.contacts_min - COALESCE(ready.ready_count, 0), 0) AS contacts_min_gap
		FROM company_candidates cc
		JOIN runs r ON r.id = cc.run_id
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS ready_count FROM contact_candidates k
			WHERE k.run_id = cc.run_id AND k.company_id = cc.id AND k.status IN ('validated','promoted')
		) ready ON true
		WHERE cc.run_id = $1
		  AND cc.status IN ('validated','promoted')
		  AND (cc.lease_until IS NULL OR cc.lease_until < now())
		  AND GREATEST(r.contacts_min - COALESCE(ready.ready_count, 0), 0) > 0
		ORDER BY cc.quality_score DESC, cc.domain ASC
		LIMIT 1
		FOR UPDATE OF cc SKIP LOCKED`, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoClaimableWork
		}
		return nil, fmt.Errorf("selecting contact candidate: %w", err)
	}

	leaseUntil := time.Now().Add(time.Duration(leaseSeconds) * time.Second)
	if _, err := tx.ExecContext(ctx, `UPDATE company_candidates SET worker_id = $1, lease_until = $2 WHERE id = $3`,
		workerID, leaseUntil, row.ID); err != nil {
		return nil, fmt.Errorf("claiming contact candidate: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	row.WorkerID = &workerID
	row.LeaseUntil = &leaseUntil
	return &ClaimResult{Company: row.toModel(), Needed: row.ContactsMinGap}, nil
}

// ReleaseCompanyLease clears worker_id/lease_until regardless of outcome.
func (s *Store) ReleaseCompanyLease(ctx context.Context, companyID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE company_candidates SET worker_id = NULL, lease_until = NULL WHERE id = $1`, companyID)
	if err != nil {
		return fmt.Errorf("releasing company lease: %w", err)
	}
	return nil
}

// RejectCompanyCandidate marks a candidate rejected with a reason, used when
// research explicitly finds meets_all_requirements=false.
func (s *Store) RejectCompanyCandidate(ctx context.Context, companyID, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE company_candidates SET status = 'rejected', meets_all_requirements = false, rejected_reasons = $2 WHERE id = $1`,
		companyID, reason)
	if err != nil {
		return fmt.Errorf("rejecting company candidate: %w", err)
	}
	return nil
}

const companyCandidateSelect = `SELECT id, run_id, name, website, domain, state, description,
	discovery_source, pms_detected, units_estimate, evidence, status, meets_all_requirements,
	rejected_reasons, quality_score, idempotency_key, worker_id, lease_until, created_at
	FROM company_candidates`

type companyCandidateRow struct {
	ID                   string     `db:"id"`
	RunID                string     `db:"run_id"`
	Name                 string     `db:"name"`
	Website              string     `db:"website"`
	Domain               string     `db:"domain"`
	State                string     `db:"state"`
	Description          *string    `db:"description"`
	DiscoverySource      string     `db:"discovery_source"`
	PMSDetected          *string    `db:"pms_detected"`
	UnitsEstimate        *int       `db:"units_estimate"`
	Evidence             []byte     `db:"evidence"`
	Status               string     `db:"status"`
	MeetsAllRequirements bool       `db:"meets_all_requirements"`
	RejectedReasons      *string    `db:"rejected_reasons"`
	QualityScore         float64    `db:"quality_score"`
	IdempotencyKey       string     `db:"idempotency_key"`
	WorkerID             *string    `db:"worker_id"`
	LeaseUntil           *time.Time `db:"lease_until"`
	CreatedAt            time.Time  `db:"created_at"`
}

func (r companyCandidateRow) toModel() *model.CompanyCandidate {
	return &model.CompanyCandidate{
		ID:                   r.ID,
		RunID:                r.RunID,
		Name:                 r.Name,
		Website:              r.Website,
		Domain:               r.Domain,
		State:                r.State,
		Description:          r.Description,
		DiscoverySource:      r.DiscoverySource,
		PMSDetected:          r.PMSDetected,
		UnitsEstimate:        r.UnitsEstimate,
		Evidence:             json.RawMessage(r.Evidence),
		Status:               model.CandidateStatus(r.Status),
		MeetsAllRequirements: r.MeetsAllRequirements,
		RejectedReasons:      r.RejectedReasons,
		QualityScore:         r.QualityScore,
		IdempotencyKey:       r.IdempotencyKey,
		WorkerID:             r.WorkerID,
		LeaseUntil:           r.LeaseUntil,
		CreatedAt:            r.CreatedAt,
	}
}

func marshalEvidence(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshalling evidence: %w", err)
	}
	return b, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func inPlaceholders[T any](items []T, startAt int) (string, []any) {
	out := make([]any, len(items))
	ph := ""
	for i, it := range items {
		if i > 0 {
			ph += ","
		}
		ph += fmt.Sprintf("$%d", startAt+i)
		out[i] = it
	}
	return ph, out
}
