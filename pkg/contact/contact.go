// Package contact implements the Contact Worker: for runs in stage
// contact_discovery it claims one company with a remaining contact gap,
// invokes the Agent for up to that many decision-makers, persists them
// idempotently, completes the run once the aggregate gap closes, and parks it
// in needs_user_decision once the per-run loop budget is exhausted with the
// gap still open.
package contact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/leadpipe/pkg/agentgateway"
	"github.com/codeready-toolchain/leadpipe/pkg/config"
	"github.com/codeready-toolchain/leadpipe/pkg/delivery"
	"github.com/codeready-toolchain/leadpipe/pkg/heartbeat"
	"github.com/codeready-toolchain/leadpipe/pkg/model"
	"github.com/codeready-toolchain/leadpipe/pkg/retry"
	"github.com/codeready-toolchain/leadpipe/pkg/storage"
)

// Worker runs the contact-discovery loop for one worker process.
type Worker struct {
	store    *storage.Store
	agent    agentgateway.Agent
	cfg      config.WorkerConfig
	notify   config.NotificationConfig
	beater   *heartbeat.Beater
	workerID string

	mu         sync.Mutex
	loopsByRun map[string]int
}

// NewWorker constructs a Contact Worker.
func NewWorker(store *storage.Store, agent agentgateway.Agent, cfg config.WorkerConfig, notify config.NotificationConfig, beater *heartbeat.Beater, workerID string) *Worker {
	return &Worker{
		store:      store,
		agent:      agent,
		cfg:        cfg,
		notify:     notify,
		beater:     beater,
		workerID:   workerID,
		loopsByRun: make(map[string]int),
	}
}

// Run polls for contact-discovery-stage work until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	log := slog.With("worker_id", w.workerID, "worker_type", "contact")
	log.Info("contact worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("contact worker shutting down")
			return
		default:
			didWork, err := w.pollAndProcess(ctx)
			if err != nil {
				log.Error("contact iteration failed", "error", err)
				w.sleep(ctx, time.Second)
				continue
			}
			if !didWork {
				w.sleep(ctx, w.cfg.PollInterval)
			}
		}
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (w *Worker) pollAndProcess(ctx context.Context) (bool, error) {
	stage := model.StageContactDiscovery
	var runIDFilter *string
	if w.cfg.RunFilterID != "" {
		runIDFilter = &w.cfg.RunFilterID
	}

	runs, err := w.store.ListActiveRuns(ctx, &stage, runIDFilter)
	if err != nil {
		return false, fmt.Errorf("listing contact-discovery runs: %w", err)
	}
	if len(runs) == 0 {
		if runIDFilter != nil {
			run, err := w.store.GetRun(ctx, *runIDFilter)
			if err == nil && run.Status.Terminal() {
				return false, fmt.Errorf("run %s reached terminal status; contact worker exiting its filtered loop", *runIDFilter)
			}
		}
		return false, nil
	}

	run := runs[0]
	w.beater.SetState(model.HeartbeatProcessing, run.ID, "contact_discovery")
	defer w.beater.SetState(model.HeartbeatIdle, "", "")

	return true, w.processRun(ctx, run)
}

func (w *Worker) processRun(ctx context.Context, run *model.Run) error {
	log := slog.With("run_id", run.ID, "worker_id", w.workerID)

	claim, err := w.store.ClaimCompanyForContacts(ctx, run.ID, w.workerID, w.cfg.LeaseSeconds)
	if err != nil {
		if errors.Is(err, storage.ErrNoClaimableWork) {
			// No company is claimable right now. That can mean every company
			// already meets contacts_min (the run can complete), or that the
			// remaining gap-positive companies are all leased by concurrent
			// contact workers at this instant - a transient state, not a
			// stall. Route through the same loop-budget accounting as a
			// normal attempt rather than parking on the first miss.
			return w.afterAttempt(ctx, run)
		}
		return fmt.Errorf("claiming company for contacts: %w", err)
	}

	company := claim.Company
	log = log.With("company_id", company.ID, "domain", company.Domain, "needed", claim.Needed)
	log.Info("claimed company for contact discovery")

	defer func() {
		if err := w.store.ReleaseCompanyLease(ctx, company.ID); err != nil {
			log.Error("failed to release contact lease", "error", err)
		}
	}()

	req := agentgateway.ContactAgentPrompt(company, claim.Needed)
	result, err := retry.DoValue(ctx, retry.AgentConfig, "contact_company:"+company.Domain, func(ctx context.Context) (*agentgateway.Result, error) {
		return w.agent.Invoke(ctx, req)
	})
	if err != nil {
		log.Error("contact agent call exhausted retries", "error", err)
		return w.afterAttempt(ctx, run)
	}

	var payload agentgateway.ContactsPayload
	if err := agentgateway.Unmarshal(result, &payload); err != nil {
		log.Error("failed to decode contacts payload", "error", err)
		return w.afterAttempt(ctx, run)
	}

	inserted := 0
	for _, c := range payload.Contacts {
		if c.FullName == "" {
			continue
		}
		_, err := w.store.InsertContactCandidate(ctx, storage.InsertContactCandidateInput{
			RunID:        run.ID,
			CompanyID:    company.ID,
			FullName:     c.FullName,
			Title:        c.Title,
			Email:        c.Email,
			LinkedInURL:  c.LinkedInURL,
			Department:   c.Department,
			Seniority:    c.Seniority,
			QualityScore: c.QualityScore,
			Evidence: model.ContactEvidence{
				AgentOutput:           c.MarkdownReport,
				ProfessionalSummary:   c.ProfessionalSummary,
				PersonalAnecdotes:     c.PersonalAnecdotes,
				ProfessionalAnecdotes: c.ProfessionalAnecdotes,
				Sources:               c.Sources,
				Gaps:                  c.Gaps,
			},
			Status:         model.CandidateStatusValidated,
			IdempotencyKey: contactIdempotencyKey(run.ID, company.ID, c),
		})
		if err != nil {
			if err == storage.ErrAlreadyExists {
				continue
			}
			log.Error("failed to insert contact candidate", "error", err)
			continue
		}
		inserted++
	}
	log.Info("contact discovery ingested", "inserted", inserted, "returned", len(payload.Contacts))

	return w.afterAttempt(ctx, run)
}

// afterAttempt re-checks the aggregate contact gap after an iteration -
// either a company's worth of contact discovery was attempted, or no
// company was currently claimable at all - and decides whether the run can
// advance. A persistently unreachable gap only parks the run once the loop
// budget is exhausted (checkLoopBudget), never on a single miss: under
// concurrent contact workers, one poll finding nothing claimable commonly
// just means a peer holds the only ready lease right now.
func (w *Worker) afterAttempt(ctx context.Context, run *model.Run) error {
	gap, err := w.store.ContactGap(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("recomputing contact gap: %w", err)
	}
	if gap.ContactsMinGapTotal <= 0 {
		return w.completeRun(ctx, run)
	}
	return w.checkLoopBudget(ctx, run, gap)
}

func (w *Worker) checkLoopBudget(ctx context.Context, run *model.Run, gap *model.ContactGap) error {
	max := w.cfg.MaxLoopsPerInvocation
	if max <= 0 {
		return nil // unbounded: keep claiming companies until the queue drains
	}

	w.mu.Lock()
	w.loopsByRun[run.ID]++
	loops := w.loopsByRun[run.ID]
	w.mu.Unlock()

	if loops < max {
		return nil
	}
	return w.needsUserDecision(ctx, run, gap)
}

func (w *Worker) completeRun(ctx context.Context, run *model.Run) error {
	if err := w.store.SetStage(ctx, run.ID, model.StageDone); err != nil {
		return fmt.Errorf("setting run stage done: %w", err)
	}
	if err := w.store.SetStatus(ctx, run.ID, model.StatusCompleted, "contact discovery: contacts_min satisfied for every company"); err != nil {
		return err
	}
	delivery.Deliver(ctx, w.store, w.notify, run)
	return nil
}

// needsUserDecision parks the run with notes enumerating the gap and the
// three resolution options the decision endpoint accepts: accept partial
// (accept_partial), expand geography (expand), or loosen PMS (loosen_pms).
func (w *Worker) needsUserDecision(ctx context.Context, run *model.Run, gap *model.ContactGap) error {
	notes := fmt.Sprintf(
		"contact discovery stalled: %d contact(s) still short of contacts_min across the run. "+
			"Options: (1) accept partial: complete the run with the contacts found so far (accept_partial), "+
			"(2) expand geography (expand), (3) loosen PMS (loosen_pms).",
		gap.ContactsMinGapTotal)
	return w.store.SetStatus(ctx, run.ID, model.StatusNeedsUserDecision, notes)
}

func contactIdempotencyKey(runID, companyID string, c agentgateway.AgentContact) string {
	key := c.Email
	if key == "" {
		key = c.LinkedInURL
	}
	if key == "" {
		key = c.FullName
	}
	return fmt.Sprintf("agent:%s:%s:%s", runID, companyID, key)
}
