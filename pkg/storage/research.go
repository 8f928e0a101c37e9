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

// UpsertCompanyResearchInput is the caller-supplied shape for a research result.
type UpsertCompanyResearchInput struct {
	RunID      string
	CompanyID  string
	Facts      model.ResearchFacts
	Signals    model.ResearchSignals
	Confidence float64
	Status     model.ResearchStatus
}

// UpsertCompanyResearch creates or replaces the single CompanyResearch row for
// (run_id, company_id). One research attempt per validated company per run.
func (s *Store) UpsertCompanyResearch(ctx context.Context, in UpsertCompanyResearchInput) error {
	factsJSON, err := json.Marshal(in.Facts)
	if err != nil {
		return fmt.Errorf("marshalling facts: %w", err)
	}
	signalsJSON, err := json.Marshal(in.Signals)
	if err != nil {
		return fmt.Errorf("marshalling signals: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO company_research (id, run_id, company_id, facts, signals, confidence, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (run_id, company_id) DO UPDATE SET
			facts = EXCLUDED.facts,
			signals = EXCLUDED.signals,
			confidence = EXCLUDED.confidence,
			status = EXCLUDED.status,
			updated_at = now()`,
		uuid.NewString(), in.RunID, in.CompanyID, factsJSON, signalsJSON, in.Confidence, string(in.Status))
	if err != nil {
		return fmt.Errorf("upserting company research: %w", err)
	}
	return nil
}

// GetCompanyResearch fetches the research row for (run_id, company_id), if any.
func (s *Store) GetCompanyResearch(ctx context.Context, runID, companyID string) (*model.CompanyResearch, error) {
	var row companyResearchRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, run_id, company_id, facts, signals, confidence, status, created_at, updated_at
		FROM company_research WHERE run_id = $1 AND company_id = $2`, runID, companyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying company research: %w", err)
	}
	return row.toModel(), nil
}

// ListCompanyResearch lists every research row for a run, for export and for
// detecting stuck ("failed") companies to surface in notes.
func (s *Store) ListCompanyResearch(ctx context.Context, runID string) ([]*model.CompanyResearch, error) {
	var rows []companyResearchRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, run_id, company_id, facts, signals, confidence, status, created_at, updated_at
		FROM company_research WHERE run_id = $1`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing company research: %w", err)
	}
	out := make([]*model.CompanyResearch, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

type companyResearchRow struct {
	ID         string    `db:"id"`
	RunID      string    `db:"run_id"`
	CompanyID  string    `db:"company_id"`
	Facts      []byte    `db:"facts"`
	Signals    []byte    `db:"signals"`
	Confidence float64   `db:"confidence"`
	Status     string    `db:"status"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r companyResearchRow) toModel() *model.CompanyResearch {
	return &model.CompanyResearch{
		ID:         r.ID,
		RunID:      r.RunID,
		CompanyID:  r.CompanyID,
		Facts:      json.RawMessage(r.Facts),
		Signals:    json.RawMessage(r.Signals),
		Confidence: r.Confidence,
		Status:     model.ResearchStatus(r.Status),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}
