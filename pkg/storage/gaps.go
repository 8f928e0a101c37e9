package storage

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/leadpipe/pkg/model"
)

// CompanyGap computes the run-wide company_gap derived view: how many more
// ready (validated or promoted) companies the run still needs.
func (s *Store) CompanyGap(ctx context.Context, runID string) (*model.CompanyGap, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	var ready int
	err = s.db.GetContext(ctx, &ready, `
		SELECT COUNT(*) FROM company_candidates
		WHERE run_id = $1 AND status IN ('validated','promoted')`, runID)
	if err != nil {
		return nil, fmt.Errorf("counting ready companies: %w", err)
	}

	gap := run.TargetQuantity - ready
	if gap < 0 {
		gap = 0
	}
	return &model.CompanyGap{
		TargetQuantity: run.TargetQuantity,
		CompaniesReady: ready,
		CompaniesGap:   gap,
	}, nil
}

// ContactGapPerCompany computes, for every ready company in the run, how many
// contacts it still needs to reach contacts_min and how much headroom remains
// before contacts_max.
func (s *Store) ContactGapPerCompany(ctx context.Context, runID string) ([]*model.ContactGapPerCompany, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		CompanyID     string `db:"company_id"`
		ContactsReady int    `db:"contacts_ready"`
	}
	err = s.db.SelectContext(ctx, &rows, `
		SELECT cc.id AS company_id, COALESCE(k.ready_count, 0) AS contacts_ready
		FROM company_candidates cc
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS ready_count FROM contact_candidates c
			WHERE c.run_id = cc.run_id AND c.company_id = cc.id AND c.status IN ('validated','promoted')
		) k ON true
		WHERE cc.run_id = $1 AND cc.status IN ('validated','promoted')
		ORDER BY cc.quality_score DESC, cc.domain ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing per-company contact readiness: %w", err)
	}

	out := make([]*model.ContactGapPerCompany, 0, len(rows))
	for _, r := range rows {
		minGap := run.ContactsMin - r.ContactsReady
		if minGap < 0 {
			minGap = 0
		}
		capacity := run.ContactsMax - r.ContactsReady
		if capacity < 0 {
			capacity = 0
		}
		out = append(out, &model.ContactGapPerCompany{
			CompanyID:        r.CompanyID,
			ContactsReady:    r.ContactsReady,
			ContactsMinGap:   minGap,
			ContactsCapacity: capacity,
		})
	}
	return out, nil
}

// ContactGap aggregates ContactGapPerCompany across the whole run: the total
// remaining shortfall against contacts_min, and the total remaining headroom
// against contacts_max. Used to decide whether a run can advance to done.
func (s *Store) ContactGap(ctx context.Context, runID string) (*model.ContactGap, error) {
	perCompany, err := s.ContactGapPerCompany(ctx, runID)
	if err != nil {
		return nil, err
	}

	var gap model.ContactGap
	for _, c := range perCompany {
		gap.ContactsMinGapTotal += c.ContactsMinGap
		gap.ContactsCapacityTotal += c.ContactsCapacity
	}
	return &gap, nil
}

// ResumePlan assembles the minimal state a worker needs to decide what to do
// next for a run, without re-deriving company/contact gaps from scratch on
// every poll.
func (s *Store) ResumePlan(ctx context.Context, runID string) (*model.ResumePlan, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	companyGap, err := s.CompanyGap(ctx, runID)
	if err != nil {
		return nil, err
	}
	contactGap, err := s.ContactGap(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &model.ResumePlan{
		RunID:      run.ID,
		Stage:      run.Stage,
		Status:     run.Status,
		CompanyGap: *companyGap,
		ContactGap: *contactGap,
	}, nil
}
