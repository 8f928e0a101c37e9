// Package research implements the Research Worker: for runs in stage
// research it claims one un-researched validated company at a time, invokes
// the Agent for facts/signals/confidence, persists the result, and advances
// the run to contact_discovery once the research queue drains.
package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/leadpipe/pkg/agentgateway"
	"github.com/codeready-toolchain/leadpipe/pkg/config"
	"github.com/codeready-toolchain/leadpipe/pkg/heartbeat"
	"github.com/codeready-toolchain/leadpipe/pkg/model"
	"github.com/codeready-toolchain/leadpipe/pkg/retry"
	"github.com/codeready-toolchain/leadpipe/pkg/storage"
)

// Worker runs the research loop for one worker process.
type Worker struct {
	store    *storage.Store
	agent    agentgateway.Agent
	cfg      config.WorkerConfig
	beater   *heartbeat.Beater
	workerID string
}

// NewWorker constructs a Research Worker.
func NewWorker(store *storage.Store, agent agentgateway.Agent, cfg config.WorkerConfig, beater *heartbeat.Beater, workerID string) *Worker {
	return &Worker{store: store, agent: agent, cfg: cfg, beater: beater, workerID: workerID}
}

// Run polls for research-stage work until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	log := slog.With("worker_id", w.workerID, "worker_type", "research")
	log.Info("research worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("research worker shutting down")
			return
		default:
			didWork, err := w.pollAndProcess(ctx)
			if err != nil {
				log.Error("research iteration failed", "error", err)
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
	stage := model.StageResearch
	var runIDFilter *string
	if w.cfg.RunFilterID != "" {
		runIDFilter = &w.cfg.RunFilterID
	}

	runs, err := w.store.ListActiveRuns(ctx, &stage, runIDFilter)
	if err != nil {
		return false, fmt.Errorf("listing research runs: %w", err)
	}
	if len(runs) == 0 {
		if runIDFilter != nil {
			run, err := w.store.GetRun(ctx, *runIDFilter)
			if err == nil && run.Status.Terminal() {
				return false, fmt.Errorf("run %s reached terminal status; research worker exiting its filtered loop", *runIDFilter)
			}
		}
		return false, nil
	}

	run := runs[0]
	w.beater.SetState(model.HeartbeatProcessing, run.ID, "research")
	defer w.beater.SetState(model.HeartbeatIdle, "", "")

	return true, w.processRun(ctx, run)
}

func (w *Worker) processRun(ctx context.Context, run *model.Run) error {
	log := slog.With("run_id", run.ID, "worker_id", w.workerID)

	company, err := w.store.ClaimCompanyForResearch(ctx, run.ID, w.workerID, w.cfg.LeaseSeconds)
	if err != nil {
		if errors.Is(err, storage.ErrNoClaimableWork) {
			return w.onQueueDrained(ctx, run)
		}
		return fmt.Errorf("claiming company for research: %w", err)
	}

	log = log.With("company_id", company.ID, "domain", company.Domain)
	log.Info("claimed company for research")

	defer func() {
		if err := w.store.ReleaseCompanyLease(ctx, company.ID); err != nil {
			log.Error("failed to release research lease", "error", err)
		}
	}()

	req := agentgateway.ResearchAgentPrompt(run.Criteria, company)
	result, err := retry.DoValue(ctx, retry.AgentConfig, "research_company:"+company.Domain, func(ctx context.Context) (*agentgateway.Result, error) {
		return w.agent.Invoke(ctx, req)
	})
	if err != nil {
		log.Error("research agent call exhausted retries", "error", err)
		return w.store.UpsertCompanyResearch(ctx, storage.UpsertCompanyResearchInput{
			RunID:     run.ID,
			CompanyID: company.ID,
			Status:    model.ResearchStatusFailed,
		})
	}

	var payload agentgateway.ResearchPayload
	if err := agentgateway.Unmarshal(result, &payload); err != nil {
		log.Error("failed to decode research payload", "error", err)
		return w.store.UpsertCompanyResearch(ctx, storage.UpsertCompanyResearchInput{
			RunID:     run.ID,
			CompanyID: company.ID,
			Status:    model.ResearchStatusFailed,
		})
	}

	facts := model.ResearchFacts{
		AnalysisMarkdown:  payload.Facts.AnalysisMarkdown,
		PMSConfirmed:      payload.Facts.PMSConfirmed,
		UnitsEstimate:     payload.Facts.UnitsEstimate,
		PropertyMix:       payload.Facts.PropertyMix,
		StatesOfOperation: payload.Facts.StatesOfOperation,
	}
	signals := model.ResearchSignals{
		ICPFit:               payload.Signals.ICPFit,
		Tier:                 payload.Signals.Tier,
		MeetsAllRequirements: payload.Signals.MeetsAllRequirements,
		Disqualifiers:        payload.Signals.Disqualifiers,
	}

	if err := w.store.UpsertCompanyResearch(ctx, storage.UpsertCompanyResearchInput{
		RunID:      run.ID,
		CompanyID:  company.ID,
		Facts:      facts,
		Signals:    signals,
		Confidence: payload.Confidence,
		Status:     model.ResearchStatusComplete,
	}); err != nil {
		return fmt.Errorf("upserting company research: %w", err)
	}

	if !signals.MeetsAllRequirements && len(signals.Disqualifiers) > 0 {
		reason := fmt.Sprintf("disqualified by research: %v", signals.Disqualifiers)
		if err := w.store.RejectCompanyCandidate(ctx, company.ID, reason); err != nil {
			log.Error("failed to reject disqualified candidate", "error", err)
		}
	}

	return nil
}

// onQueueDrained runs when no company is currently claimable for research.
// That can mean every validated company already has a research row, or it
// can mean every un-researched company is simply under a concurrent worker's
// lease right now - the claim query excludes leased rows the same way it
// excludes already-researched ones. Only the first case means research is
// actually done; the second just means try again on the next poll.
func (w *Worker) onQueueDrained(ctx context.Context, run *model.Run) error {
	remaining, err := w.store.HasUnresearchedCompanies(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("checking for remaining research work: %w", err)
	}
	if remaining {
		return nil
	}
	return w.store.SetStage(ctx, run.ID, model.StageContactDiscovery)
}
