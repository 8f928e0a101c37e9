package research

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/leadpipe/pkg/agentgateway"
	"github.com/codeready-toolchain/leadpipe/pkg/config"
	"github.com/codeready-toolchain/leadpipe/pkg/heartbeat"
	"github.com/codeready-toolchain/leadpipe/pkg/model"
	"github.com/codeready-toolchain/leadpipe/pkg/storage"
	"github.com/codeready-toolchain/leadpipe/test/dbtest"
)

type fakeAgent struct {
	data json.RawMessage
	err  error
}

func (f *fakeAgent) Invoke(ctx context.Context, req agentgateway.Request) (*agentgateway.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &agentgateway.Result{Data: f.data}, nil
}

func testCriteria() model.Criteria {
	return model.Criteria{State: "TX", City: "Austin", NotificationEmail: "ops@example.com"}
}

func newTestRun(t *testing.T, store *storage.Store, targetQuantity, contactsMin, contactsMax int) *model.Run {
	t.Helper()
	id, err := store.CreateRun(context.Background(), testCriteria(), targetQuantity, contactsMin, contactsMax)
	require.NoError(t, err)
	require.NoError(t, store.SetStage(context.Background(), id, model.StageResearch))
	run, err := store.GetRun(context.Background(), id)
	require.NoError(t, err)
	return run
}

func insertValidatedCompany(t *testing.T, store *storage.Store, runID, domain string) string {
	t.Helper()
	id, err := store.InsertCompanyCandidate(context.Background(), storage.InsertCompanyCandidateInput{
		RunID: runID, Name: "Company " + domain, Website: "https://" + domain, Domain: domain, State: "TX",
		DiscoverySource: "seed:catalog", Status: model.CandidateStatusValidated, IdempotencyKey: "seed:" + domain,
	})
	require.NoError(t, err)
	return id
}

func testWorkerConfig() config.WorkerConfig {
	return config.WorkerConfig{PollInterval: time.Millisecond, LeaseSeconds: 600}
}

func TestProcessRunPersistsFactsAndSignalsOnSuccess(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()
	run := newTestRun(t, store, 1, 1, 2)
	insertValidatedCompany(t, store, run.ID, "a.com")

	payload := `{
		"facts": {"analysis_markdown": "summary", "pms_confirmed": "Yardi", "units_estimate": 500},
		"signals": {"icp_fit": 0.9, "tier": "A", "meets_all_requirements": true},
		"confidence": 0.8
	}`
	agent := &fakeAgent{data: json.RawMessage(payload)}
	beater := heartbeat.NewBeater(store, "w1", "research", time.Minute)
	worker := NewWorker(store, agent, testWorkerConfig(), beater, "w1")

	require.NoError(t, worker.processRun(ctx, run))

	research, err := store.ListCompanyResearch(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, research, 1)
	assert.Equal(t, model.ResearchStatusComplete, research[0].Status)
	assert.Equal(t, 0.8, research[0].Confidence)
}

func TestProcessRunRejectsCompanyThatFailsRequirements(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()
	run := newTestRun(t, store, 1, 1, 2)
	id := insertValidatedCompany(t, store, run.ID, "a.com")

	payload := `{
		"facts": {"analysis_markdown": "summary"},
		"signals": {"icp_fit": 0.1, "tier": "C", "meets_all_requirements": false, "disqualifiers": ["too small"]},
		"confidence": 0.6
	}`
	agent := &fakeAgent{data: json.RawMessage(payload)}
	beater := heartbeat.NewBeater(store, "w1", "research", time.Minute)
	worker := NewWorker(store, agent, testWorkerConfig(), beater, "w1")

	require.NoError(t, worker.processRun(ctx, run))

	companies, err := store.ListCompanyCandidates(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, id, companies[0].ID)
	assert.Equal(t, model.CandidateStatusRejected, companies[0].Status)
}

func TestProcessRunRecordsFailedResearchOnAgentError(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()
	run := newTestRun(t, store, 1, 1, 2)
	insertValidatedCompany(t, store, run.ID, "a.com")

	agent := &fakeAgent{err: assertError{}}
	cfg := testWorkerConfig()
	beater := heartbeat.NewBeater(store, "w1", "research", time.Minute)
	worker := NewWorker(store, agent, cfg, beater, "w1")

	require.NoError(t, worker.processRun(ctx, run))

	research, err := store.ListCompanyResearch(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, research, 1)
	assert.Equal(t, model.ResearchStatusFailed, research[0].Status)
}

func TestProcessRunAdvancesToContactDiscoveryWhenQueueDrained(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()
	run := newTestRun(t, store, 1, 1, 2)
	// No companies inserted: the research queue is empty from the start.

	beater := heartbeat.NewBeater(store, "w1", "research", time.Minute)
	worker := NewWorker(store, &fakeAgent{}, testWorkerConfig(), beater, "w1")

	require.NoError(t, worker.processRun(ctx, run))

	updated, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageContactDiscovery, updated.Stage)
}

func TestProcessRunDoesNotAdvanceWhenQueueIsOnlyLeasedElsewhere(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()
	run := newTestRun(t, store, 1, 1, 2)
	insertValidatedCompany(t, store, run.ID, "a.com")

	// Another worker already holds the only un-researched company's lease.
	_, err := store.ClaimCompanyForResearch(ctx, run.ID, "other-worker", 600)
	require.NoError(t, err)

	beater := heartbeat.NewBeater(store, "w1", "research", time.Minute)
	worker := NewWorker(store, &fakeAgent{}, testWorkerConfig(), beater, "w1")

	require.NoError(t, worker.processRun(ctx, run))

	updated, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageResearch, updated.Stage)
}

type assertError struct{}

func (assertError) Error() string { return "agent unavailable" }
