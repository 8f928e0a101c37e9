// Package discovery implements the Discovery Worker: for runs in stage
// discovery it seeds from the internal catalog, fans the Agent out across
// parallel regions, ingests the deduplicated and suppression-filtered
// result, and advances the run to research once its company target is met.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/codeready-toolchain/leadpipe/pkg/agentgateway"
	"github.com/codeready-toolchain/leadpipe/pkg/catalog"
	"github.com/codeready-toolchain/leadpipe/pkg/config"
	"github.com/codeready-toolchain/leadpipe/pkg/heartbeat"
	"github.com/codeready-toolchain/leadpipe/pkg/model"
	"github.com/codeready-toolchain/leadpipe/pkg/retry"
	"github.com/codeready-toolchain/leadpipe/pkg/storage"
)

// regionTimeout bounds a single region's Agent call; on timeout the region
// is failed and retried under the round-based retry protocol below.
const regionTimeout = 15 * time.Minute

// regionRetryBackoffs are the pauses between successive round-based retries
// of regions that failed their initial (already internally-retried) attempt.
var regionRetryBackoffs = []time.Duration{30 * time.Second, 60 * time.Second}

// Worker runs the discovery loop for one worker process.
type Worker struct {
	store   *storage.Store
	agent   agentgateway.Agent
	catalog catalog.Catalog
	cfg     config.WorkerConfig
	beater  *heartbeat.Beater
	workerID string
}

// NewWorker constructs a Discovery Worker.
func NewWorker(store *storage.Store, agent agentgateway.Agent, cat catalog.Catalog, cfg config.WorkerConfig, beater *heartbeat.Beater, workerID string) *Worker {
	return &Worker{store: store, agent: agent, catalog: cat, cfg: cfg, beater: beater, workerID: workerID}
}

// Run polls for discovery-stage runs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	log := slog.With("worker_id", w.workerID, "worker_type", "discovery")
	log.Info("discovery worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("discovery worker shutting down")
			return
		default:
			didWork, err := w.pollAndProcess(ctx)
			if err != nil {
				log.Error("discovery iteration failed", "error", err)
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

// pollAndProcess handles one run's worth of discovery work, if any is
// available. Returns whether it found a run to act on.
func (w *Worker) pollAndProcess(ctx context.Context) (bool, error) {
	stage := model.StageDiscovery
	var runIDFilter *string
	if w.cfg.RunFilterID != "" {
		runIDFilter = &w.cfg.RunFilterID
	}

	runs, err := w.store.ListActiveRuns(ctx, &stage, runIDFilter)
	if err != nil {
		return false, fmt.Errorf("listing discovery runs: %w", err)
	}
	if len(runs) == 0 {
		if runIDFilter != nil {
			if done, err := w.filteredRunTerminal(ctx, *runIDFilter); err == nil && done {
				return false, fmt.Errorf("run %s reached terminal status; discovery worker exiting its filtered loop", *runIDFilter)
			}
		}
		return false, nil
	}

	run := runs[0]
	w.beater.SetState(model.HeartbeatProcessing, run.ID, "discovery")
	defer w.beater.SetState(model.HeartbeatIdle, "", "")

	if err := w.processRun(ctx, run); err != nil {
		return true, err
	}
	return true, nil
}

func (w *Worker) filteredRunTerminal(ctx context.Context, runID string) (bool, error) {
	run, err := w.store.GetRun(ctx, runID)
	if err != nil {
		return false, err
	}
	return run.Status.Terminal(), nil
}

func (w *Worker) processRun(ctx context.Context, run *model.Run) error {
	log := slog.With("run_id", run.ID, "worker_id", w.workerID)

	gap, err := w.store.CompanyGap(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("computing company gap: %w", err)
	}

	discoveryTarget := int(math.Ceil(float64(run.TargetQuantity) * w.cfg.OversampleFactor))
	if gap.CompaniesReady >= discoveryTarget {
		return w.maybeTransition(ctx, run, gap)
	}

	if err := w.seedFromCatalog(ctx, run); err != nil {
		log.Error("seeding from catalog failed", "error", err)
	}

	gap, err = w.store.CompanyGap(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("recomputing company gap after seeding: %w", err)
	}
	if gap.CompaniesReady >= discoveryTarget {
		return w.maybeTransition(ctx, run, gap)
	}

	suppressed, err := w.store.LoadSuppressedDomainSet(ctx, time.Duration(90)*24*time.Hour)
	if err != nil {
		return fmt.Errorf("loading suppression set: %w", err)
	}

	regions := PartitionRegions(run.Criteria, w.cfg.RegionCount)
	perRegionTarget := PerRegionTarget(discoveryTarget-gap.CompaniesReady, len(regions))

	companies, failedRegions := w.runRegions(ctx, run, regions, perRegionTarget, suppressed)
	backoffs := regionRetryBackoffs
	for len(failedRegions) > 0 && len(backoffs) > 0 {
		backoff := backoffs[0]
		backoffs = backoffs[1:]
		log.Warn("retrying failed regions", "count", len(failedRegions), "backoff", backoff)
		w.sleep(ctx, backoff)
		more, stillFailed := w.runRegions(ctx, run, failedRegions, perRegionTarget, suppressed)
		companies = append(companies, more...)
		failedRegions = stillFailed
	}

	if len(failedRegions) > 0 {
		note := fmt.Sprintf("discovery: %d region(s) failed after retries: %s", len(failedRegions), regionNames(failedRegions))
		if err := w.store.AppendNotes(ctx, run.ID, note); err != nil {
			log.Error("failed to append region-failure notes", "error", err)
		}
	}

	inserted, err := w.ingest(ctx, run, companies, suppressed)
	if err != nil {
		return fmt.Errorf("ingesting discovery results: %w", err)
	}

	gap, err = w.store.CompanyGap(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("recomputing company gap after ingest: %w", err)
	}

	if inserted == 0 && gap.CompaniesReady == 0 {
		return w.store.SetStatus(ctx, run.ID, model.StatusError, "discovery: zero companies found across all regions and retries")
	}

	return w.maybeTransition(ctx, run, gap)
}

// maybeTransition advances the run to research once companies_ready meets
// the *final* target quantity (not the oversampled discovery target).
func (w *Worker) maybeTransition(ctx context.Context, run *model.Run, gap *model.CompanyGap) error {
	if gap.CompaniesReady >= run.TargetQuantity {
		return w.store.SetStage(ctx, run.ID, model.StageResearch)
	}
	return nil
}

func (w *Worker) seedFromCatalog(ctx context.Context, run *model.Run) error {
	seeds := w.catalog.MatchSeeds(run.Criteria)
	for _, seed := range seeds {
		_, err := w.store.InsertCompanyCandidate(ctx, storage.InsertCompanyCandidateInput{
			RunID:           run.ID,
			Name:            seed.Name,
			Website:         seed.Website,
			Domain:          seed.Domain,
			State:           seed.State,
			Description:     seed.Description,
			DiscoverySource: "seed:catalog",
			PMSDetected:     seed.PMS,
			UnitsEstimate:   intPtrOrNil(seed.UnitsEstimate),
			Status:          model.CandidateStatusValidated,
			IdempotencyKey:  fmt.Sprintf("seed:%s", strings.ToLower(seed.Domain)),
		})
		if err != nil && err != storage.ErrAlreadyExists {
			return err
		}
	}
	return nil
}

func intPtrOrNil(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

type regionOutcome struct {
	region    Region
	companies []agentgateway.AgentCompany
	err       error
}

// runRegions invokes the Agent for each region up to R in parallel (this is
// a join barrier: interim per-region state is not shared until all regions
// finish or time out).
func (w *Worker) runRegions(ctx context.Context, run *model.Run, regions []Region, perRegionTarget int, suppressed storage.SuppressedDomainSet) ([]agentgateway.AgentCompany, []Region) {
	results := make([]regionOutcome, len(regions))
	var wg sync.WaitGroup
	for i, region := range regions {
		wg.Add(1)
		go func(i int, region Region) {
			defer wg.Done()
			results[i] = w.callRegion(ctx, run, region, perRegionTarget, suppressed)
		}(i, region)
	}
	wg.Wait()

	var companies []agentgateway.AgentCompany
	var failed []Region
	for _, r := range results {
		if r.err != nil {
			slog.Error("region discovery failed", "run_id", run.ID, "region", r.region.Name, "error", r.err)
			failed = append(failed, r.region)
			continue
		}
		companies = append(companies, r.companies...)
	}
	return companies, failed
}

// callRegion drives one region's Agent calls to completion. When
// w.cfg.BatchSize is positive and smaller than perRegionTarget, it invokes
// the Agent repeatedly with a per-call cap of batch_size instead of asking
// for the whole regional target at once: each returned batch is ingestible
// on its own, so a worker that dies mid-region still leaves behind whatever
// batches it completed. BatchSize <= 0 disables batching for one single call.
func (w *Worker) callRegion(ctx context.Context, run *model.Run, region Region, perRegionTarget int, suppressed storage.SuppressedDomainSet) regionOutcome {
	suppressedList := make([]string, 0, len(suppressed))
	for d := range suppressed {
		suppressedList = append(suppressedList, d)
	}

	var companies []agentgateway.AgentCompany
	for found := 0; found < perRegionTarget; {
		batch, err := w.callRegionBatch(ctx, run, region, perRegionTarget, found, suppressedList)
		if err != nil {
			if len(companies) > 0 {
				// Keep whatever batches already succeeded; the caller ingests
				// them as an implicit checkpoint even though this region's
				// sequence stopped short.
				break
			}
			return regionOutcome{region: region, err: err}
		}
		if len(batch) == 0 {
			break
		}
		companies = append(companies, batch...)
		found += len(batch)
		if w.cfg.BatchSize <= 0 {
			break
		}
	}
	return regionOutcome{region: region, companies: companies}
}

func (w *Worker) callRegionBatch(ctx context.Context, run *model.Run, region Region, perRegionTarget, alreadyFound int, suppressedList []string) ([]agentgateway.AgentCompany, error) {
	regionCtx, cancel := context.WithTimeout(ctx, regionTimeout)
	defer cancel()

	req := agentgateway.ListAgentPrompt(run.Criteria, region.Name, region.Focus, perRegionTarget, alreadyFound, w.cfg.BatchSize, suppressedList)

	result, err := retry.DoValue(regionCtx, retry.AgentConfig, "discovery_region:"+region.Name, func(ctx context.Context) (*agentgateway.Result, error) {
		return w.agent.Invoke(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	var payload agentgateway.CompaniesPayload
	if err := agentgateway.Unmarshal(result, &payload); err != nil {
		return nil, err
	}
	for i := range payload.Companies {
		if payload.Companies[i].Description == "" {
			payload.Companies[i].Description = fmt.Sprintf("discovered via region %s", region.Name)
		}
		payload.Companies[i].Region = region.Name
	}
	return payload.Companies, nil
}

// ingest deduplicates by lowercased domain (keeping the highest quality
// score), drops anything in the suppression set, and inserts the rest
// idempotently as validated candidates.
func (w *Worker) ingest(ctx context.Context, run *model.Run, companies []agentgateway.AgentCompany, suppressed storage.SuppressedDomainSet) (int, error) {
	best := make(map[string]agentgateway.AgentCompany)
	for _, c := range companies {
		domain := strings.ToLower(strings.TrimSpace(c.Domain))
		if domain == "" {
			continue
		}
		if suppressed.Contains(domain) {
			continue
		}
		if run.Criteria.PMS != "" && !strings.EqualFold(c.PMSDetected, run.Criteria.PMS) {
			continue
		}
		if existing, ok := best[domain]; !ok || c.QualityScore > existing.QualityScore {
			best[domain] = c
		}
	}

	inserted := 0
	for domain, c := range best {
		discoverySource := "agent:region"
		if c.Region != "" {
			discoverySource = fmt.Sprintf("agent:region:%s", c.Region)
		}
		_, err := w.store.InsertCompanyCandidate(ctx, storage.InsertCompanyCandidateInput{
			RunID:           run.ID,
			Name:            c.Name,
			Website:         c.Website,
			Domain:          domain,
			State:           c.State,
			Description:     c.Description,
			DiscoverySource: discoverySource,
			PMSDetected:     c.PMSDetected,
			UnitsEstimate:   intPtrOrNil(c.UnitsEstimate),
			Evidence:        c.Evidence,
			Status:          model.CandidateStatusValidated,
			QualityScore:    c.QualityScore,
			IdempotencyKey:  fmt.Sprintf("agent:%s:%s", run.ID, domain),
		})
		if err != nil {
			if err == storage.ErrAlreadyExists {
				continue
			}
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

func regionNames(regions []Region) string {
	names := make([]string, len(regions))
	for i, r := range regions {
		names[i] = r.Name
	}
	return strings.Join(names, ", ")
}
