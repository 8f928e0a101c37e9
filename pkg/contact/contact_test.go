package contact

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
	require.NoError(t, store.SetStage(context.Background(), id, model.StageContactDiscovery))
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

func TestProcessRunInsertsContactsAndStaysActiveWhenGapRemains(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()
	run := newTestRun(t, store, 1, 2, 3)
	insertValidatedCompany(t, store, run.ID, "a.com")

	payload := `{"contacts":[{"full_name":"Jane Doe","title":"VP Ops","email":"jane@a.com","quality_score":0.9}]}`
	agent := &fakeAgent{data: json.RawMessage(payload)}
	beater := heartbeat.NewBeater(store, "w1", "contact", time.Minute)
	worker := NewWorker(store, agent, testWorkerConfig(), config.NotificationConfig{}, beater, "w1")

	require.NoError(t, worker.processRun(ctx, run))

	contacts, err := store.ListContactCandidatesForRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Jane Doe", contacts[0].FullName)

	updated, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, updated.Status)
}

func TestProcessRunCompletesAndTriggersDeliveryWhenGapClosed(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()
	run := newTestRun(t, store, 1, 1, 2)
	insertValidatedCompany(t, store, run.ID, "a.com")

	payload := `{"contacts":[{"full_name":"Jane Doe","email":"jane@a.com","quality_score":0.9}]}`
	agent := &fakeAgent{data: json.RawMessage(payload)}
	beater := heartbeat.NewBeater(store, "w1", "contact", time.Minute)
	notify := config.NotificationConfig{SMTPHost: "localhost", SMTPPort: 25, FromAddr: "leadpipe@localhost"}
	worker := NewWorker(store, agent, testWorkerConfig(), notify, beater, "w1")

	require.NoError(t, worker.processRun(ctx, run))

	updated, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, updated.Status)
	assert.Equal(t, model.StageDone, updated.Stage)
}

func TestClaimMissLeavesRunActiveWhenLoopBudgetUnbounded(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()
	run := newTestRun(t, store, 1, 1, 2)
	insertValidatedCompany(t, store, run.ID, "a.com")

	// Another worker already holds the only claimable company under lease.
	// This is a transient condition under concurrent contact workers, not a
	// stall, so a single miss must not park the run.
	_, err := store.ClaimCompanyForContacts(ctx, run.ID, "other-worker", 600)
	require.NoError(t, err)

	beater := heartbeat.NewBeater(store, "w1", "contact", time.Minute)
	worker := NewWorker(store, &fakeAgent{}, testWorkerConfig(), config.NotificationConfig{}, beater, "w1")

	require.NoError(t, worker.processRun(ctx, run))

	updated, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, updated.Status)
}

func TestClaimMissParksRunForDecisionAfterLoopBudgetExhausted(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()
	run := newTestRun(t, store, 1, 1, 2)
	insertValidatedCompany(t, store, run.ID, "a.com")

	// Another worker holds the only claimable company under lease for the
	// entirety of this worker's budget, so the stall is persistent rather
	// than transient.
	_, err := store.ClaimCompanyForContacts(ctx, run.ID, "other-worker", 600)
	require.NoError(t, err)

	beater := heartbeat.NewBeater(store, "w1", "contact", time.Minute)
	cfg := testWorkerConfig()
	cfg.MaxLoopsPerInvocation = 1
	worker := NewWorker(store, &fakeAgent{}, cfg, config.NotificationConfig{}, beater, "w1")

	require.NoError(t, worker.processRun(ctx, run))

	updated, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNeedsUserDecision, updated.Status)
	assert.Contains(t, updated.Notes, "contact discovery stalled")
}

func TestCheckLoopBudgetParksRunAfterMaxLoops(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()
	run := newTestRun(t, store, 1, 5, 5)
	insertValidatedCompany(t, store, run.ID, "a.com")

	payload := `{"contacts":[{"full_name":"Jane Doe","email":"jane@a.com","quality_score":0.9}]}`
	agent := &fakeAgent{data: json.RawMessage(payload)}
	beater := heartbeat.NewBeater(store, "w1", "contact", time.Minute)
	cfg := testWorkerConfig()
	cfg.MaxLoopsPerInvocation = 1
	worker := NewWorker(store, agent, cfg, config.NotificationConfig{}, beater, "w1")

	require.NoError(t, worker.processRun(ctx, run))

	updated, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNeedsUserDecision, updated.Status)
}

func TestContactIdempotencyKeyPrefersEmailThenLinkedInThenName(t *testing.T) {
	email := contactIdempotencyKey("run1", "co1", agentgateway.AgentContact{FullName: "Jane", Email: "jane@a.com", LinkedInURL: "linkedin.com/jane"})
	assert.Equal(t, "agent:run1:co1:jane@a.com", email)

	linkedin := contactIdempotencyKey("run1", "co1", agentgateway.AgentContact{FullName: "Jane", LinkedInURL: "linkedin.com/jane"})
	assert.Equal(t, "agent:run1:co1:linkedin.com/jane", linkedin)

	name := contactIdempotencyKey("run1", "co1", agentgateway.AgentContact{FullName: "Jane"})
	assert.Equal(t, "agent:run1:co1:Jane", name)
}
