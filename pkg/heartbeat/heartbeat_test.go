package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/leadpipe/pkg/model"
	"github.com/codeready-toolchain/leadpipe/pkg/storage"
	"github.com/codeready-toolchain/leadpipe/test/dbtest"
)

func TestBeaterBeatUpsertsHeartbeatRow(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()
	b := NewBeater(store, "worker-1", "discovery", time.Minute)
	b.SetState(model.HeartbeatProcessing, "run-1", "discovery")

	require.NoError(t, b.beat(ctx))

	hb, err := store.GetHeartbeat(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, model.HeartbeatProcessing, hb.Status)
	require.NotNil(t, hb.CurrentRunID)
	assert.Equal(t, "run-1", *hb.CurrentRunID)
}

func TestBeaterStopMarksWorkerStopped(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()
	b := NewBeater(store, "worker-1", "discovery", time.Minute)
	require.NoError(t, b.beat(ctx))

	b.Stop(ctx)

	hb, err := store.GetHeartbeat(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, model.HeartbeatStopped, hb.Status)
}

func TestMonitorSweepReleasesDeadWorkerLeases(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertHeartbeat(ctx, storage.UpsertHeartbeatInput{
		WorkerID: "dead-worker", WorkerType: "research", Status: model.HeartbeatProcessing,
	}))

	runID, err := store.CreateRun(ctx, model.Criteria{State: "TX", NotificationEmail: "ops@example.com"}, 1, 1, 1)
	require.NoError(t, err)
	companyID, err := store.InsertCompanyCandidate(ctx, storage.InsertCompanyCandidateInput{
		RunID: runID, Name: "Acme", Website: "https://acme.com", Domain: "acme.com", State: "TX",
		DiscoverySource: "seed:catalog", Status: model.CandidateStatusValidated, IdempotencyKey: "seed:acme.com",
	})
	require.NoError(t, err)
	_, err = store.ClaimCompanyForResearch(ctx, runID, "dead-worker", 600)
	require.NoError(t, err)

	// A negative threshold makes every heartbeat look arbitrarily stale
	// without needing to sleep past a real deadline.
	monitor := NewMonitor(store, MonitorConfig{DeadThreshold: -time.Hour, StoppedRetention: time.Hour})
	require.NoError(t, monitor.sweep(ctx))

	hb, err := store.GetHeartbeat(ctx, "dead-worker")
	require.NoError(t, err)
	assert.Equal(t, model.HeartbeatStopped, hb.Status)

	companies, err := store.ListCompanyCandidates(ctx, runID)
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, companyID, companies[0].ID)
	assert.Nil(t, companies[0].LeaseUntil)
}

func TestMonitorSweepPurgesOldStoppedHeartbeats(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertHeartbeat(ctx, storage.UpsertHeartbeatInput{
		WorkerID: "old-worker", WorkerType: "research", Status: model.HeartbeatProcessing,
	}))
	require.NoError(t, store.StopWorker(ctx, "old-worker"))

	monitor := NewMonitor(store, MonitorConfig{DeadThreshold: time.Hour, StoppedRetention: -time.Hour})
	require.NoError(t, monitor.sweep(ctx))

	_, err := store.GetHeartbeat(ctx, "old-worker")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
