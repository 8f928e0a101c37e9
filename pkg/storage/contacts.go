package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/leadpipe/pkg/model"
)

// InsertContactCandidateInput is the caller-supplied shape for a new contact.
type InsertContactCandidateInput struct {
	RunID          string
	CompanyID      string
	FullName       string
	Title          string
	Email          string
	LinkedInURL    string
	Department     string
	Seniority      string
	QualityScore   float64
	Signals        any
	Evidence       model.ContactEvidence
	Status         model.CandidateStatus
	IdempotencyKey string
}

// InsertContactCandidate idempotently inserts a contact. A unique-constraint
// violation on (run_id, company_id, email), (run_id, company_id, linkedin_url),
// or (run_id, company_id, idempotency_key) is absorbed as ErrAlreadyExists.
func (s *Store) InsertContactCandidate(ctx context.Context, in InsertContactCandidateInput) (string, error) {
	signalsJSON, err := marshalEvidence(in.Signals)
	if err != nil {
		return "", err
	}
	evidenceJSON, err := json.Marshal(in.Evidence)
	if err != nil {
		return "", fmt.Errorf("marshalling contact evidence: %w", err)
	}

	status := in.Status
	if status == "" {
		status = model.CandidateStatusValidated
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contact_candidates
			(id, run_id, company_id, full_name, title, email, linkedin_url, department,
			 seniority, quality_score, signals, evidence, status, idempotency_key)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		id, in.RunID, in.CompanyID, in.FullName, nullIfEmpty(in.Title), nullIfEmpty(in.Email),
		nullIfEmpty(in.LinkedInURL), nullIfEmpty(in.Department), nullIfEmpty(in.Seniority),
		in.QualityScore, signalsJSON, evidenceJSON, string(status), in.IdempotencyKey)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrAlreadyExists
		}
		return "", fmt.Errorf("inserting contact candidate: %w", err)
	}
	return id, nil
}

// ListContactCandidates lists contacts for a company within a run.
func (s *Store) ListContactCandidates(ctx context.Context, runID, companyID string) ([]*model.ContactCandidate, error) {
	var rows []contactCandidateRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, run_id, company_id, full_name, title, email, linkedin_url, department, seniority,
		       quality_score, signals, evidence, status, idempotency_key, worker_id, lease_until, created_at
		FROM contact_candidates WHERE run_id = $1 AND company_id = $2
		ORDER BY quality_score DESC`, runID, companyID)
	if err != nil {
		return nil, fmt.Errorf("listing contact candidates: %w", err)
	}
	out := make([]*model.ContactCandidate, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

// ListContactCandidatesForRun lists every contact for a run, for export.
func (s *Store) ListContactCandidatesForRun(ctx context.Context, runID string) ([]*model.ContactCandidate, error) {
	var rows []contactCandidateRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, run_id, company_id, full_name, title, email, linkedin_url, department, seniority,
		       quality_score, signals, evidence, status, idempotency_key, worker_id, lease_until, created_at
		FROM contact_candidates WHERE run_id = $1
		ORDER BY company_id, quality_score DESC`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing contact candidates for run: %w", err)
	}
	out := make([]*model.ContactCandidate, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

type contactCandidateRow struct {
	ID             string     `db:"id"`
	RunID          string     `db:"run_id"`
	CompanyID      string     `db:"company_id"`
	FullName       string     `db:"full_name"`
	Title          *string    `db:"title"`
	Email          *string    `db:"email"`
	LinkedInURL    *string    `db:"linkedin_url"`
	Department     *string    `db:"department"`
	Seniority      *string    `db:"seniority"`
	QualityScore   float64    `db:"quality_score"`
	Signals        []byte     `db:"signals"`
	Evidence       []byte     `db:"evidence"`
	Status         string     `db:"status"`
	IdempotencyKey string     `db:"idempotency_key"`
	WorkerID       *string    `db:"worker_id"`
	LeaseUntil     *time.Time `db:"lease_until"`
	CreatedAt      time.Time  `db:"created_at"`
}

func (r contactCandidateRow) toModel() *model.ContactCandidate {
	return &model.ContactCandidate{
		ID:             r.ID,
		RunID:          r.RunID,
		CompanyID:      r.CompanyID,
		FullName:       r.FullName,
		Title:          r.Title,
		Email:          r.Email,
		LinkedInURL:    r.LinkedInURL,
		Department:     r.Department,
		Seniority:      r.Seniority,
		QualityScore:   r.QualityScore,
		Signals:        json.RawMessage(r.Signals),
		Evidence:       json.RawMessage(r.Evidence),
		Status:         model.CandidateStatus(r.Status),
		IdempotencyKey: r.IdempotencyKey,
		WorkerID:       r.WorkerID,
		LeaseUntil:     r.LeaseUntil,
		CreatedAt:      r.CreatedAt,
	}
}
