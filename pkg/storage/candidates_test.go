package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/leadpipe/pkg/model"
	"github.com/codeready-toolchain/leadpipe/pkg/storage"
	"github.com/codeready-toolchain/leadpipe/test/dbtest"
)

func createTestRun(t *testing.T, store *storage.Store, targetQuantity, contactsMin, contactsMax int) string {
	t.Helper()
	id, err := store.CreateRun(context.Background(), testCriteria(), targetQuantity, contactsMin, contactsMax)
	require.NoError(t, err)
	return id
}

func insertValidatedCompany(t *testing.T, store *storage.Store, runID, domain string) string {
	t.Helper()
	id, err := store.InsertCompanyCandidate(context.Background(), storage.InsertCompanyCandidateInput{
		RunID:          runID,
		Name:           "Company " + domain,
		Website:        "https://" + domain,
		Domain:         domain,
		State:          "TX",
		DiscoverySource: "seed:catalog",
		Status:         model.CandidateStatusValidated,
		IdempotencyKey: "seed:" + domain,
	})
	require.NoError(t, err)
	return id
}

func TestInsertCompanyCandidateIdempotent(t *testing.T) {
	store := dbtest.NewStore(t)
	runID := createTestRun(t, store, 5, 1, 3)

	_, err := store.InsertCompanyCandidate(context.Background(), storage.InsertCompanyCandidateInput{
		RunID: runID, Name: "Acme", Website: "https://acme.com", Domain: "acme.com", State: "TX",
		DiscoverySource: "seed:catalog", Status: model.CandidateStatusValidated, IdempotencyKey: "seed:acme.com",
	})
	require.NoError(t, err)

	_, err = store.InsertCompanyCandidate(context.Background(), storage.InsertCompanyCandidateInput{
		RunID: runID, Name: "Acme", Website: "https://acme.com", Domain: "acme.com", State: "TX",
		DiscoverySource: "seed:catalog", Status: model.CandidateStatusValidated, IdempotencyKey: "seed:acme.com",
	})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	companies, err := store.ListCompanyCandidates(context.Background(), runID)
	require.NoError(t, err)
	assert.Len(t, companies, 1)
}

func TestCompanyGapReflectsReadyCount(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()
	runID := createTestRun(t, store, 3, 1, 2)

	insertValidatedCompany(t, store, runID, "a.com")
	insertValidatedCompany(t, store, runID, "b.com")

	gap, err := store.CompanyGap(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 3, gap.TargetQuantity)
	assert.Equal(t, 2, gap.CompaniesReady)
	assert.Equal(t, 1, gap.CompaniesGap)
}

func TestClaimCompanyForResearchSkipsLeasedAndResearchedRows(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()
	runID := createTestRun(t, store, 3, 1, 2)
	insertValidatedCompany(t, store, runID, "a.com")

	claimed, err := store.ClaimCompanyForResearch(ctx, runID, "worker-1", 600)
	require.NoError(t, err)
	assert.Equal(t, "a.com", claimed.Domain)

	_, err = store.ClaimCompanyForResearch(ctx, runID, "worker-2", 600)
	assert.ErrorIs(t, err, storage.ErrNoClaimableWork)

	require.NoError(t, store.ReleaseCompanyLease(ctx, claimed.ID))
	require.NoError(t, store.UpsertCompanyResearch(ctx, storage.UpsertCompanyResearchInput{
		RunID: runID, CompanyID: claimed.ID, Status: model.ResearchStatusComplete,
	}))

	_, err = store.ClaimCompanyForResearch(ctx, runID, "worker-3", 600)
	assert.ErrorIs(t, err, storage.ErrNoClaimableWork)
}

func TestHasUnresearchedCompaniesIgnoresLeaseState(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()
	runID := createTestRun(t, store, 3, 1, 2)
	insertValidatedCompany(t, store, runID, "a.com")

	claimed, err := store.ClaimCompanyForResearch(ctx, runID, "worker-1", 600)
	require.NoError(t, err)

	// The only un-researched row is leased, so a second claim fails, but it
	// is still un-researched: the run is not actually done.
	_, err = store.ClaimCompanyForResearch(ctx, runID, "worker-2", 600)
	require.ErrorIs(t, err, storage.ErrNoClaimableWork)

	has, err := store.HasUnresearchedCompanies(ctx, runID)
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, store.ReleaseCompanyLease(ctx, claimed.ID))
	require.NoError(t, store.UpsertCompanyResearch(ctx, storage.UpsertCompanyResearchInput{
		RunID: runID, CompanyID: claimed.ID, Status: model.ResearchStatusComplete,
	}))

	has, err = store.HasUnresearchedCompanies(ctx, runID)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestClaimCompanyForContactsReportsGap(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()
	runID := createTestRun(t, store, 3, 2, 4)
	insertValidatedCompany(t, store, runID, "a.com")

	claim, err := store.ClaimCompanyForContacts(ctx, runID, "worker-1", 600)
	require.NoError(t, err)
	assert.Equal(t, 2, claim.Needed)

	_, err = store.ClaimCompanyForContacts(ctx, runID, "worker-2", 600)
	assert.ErrorIs(t, err, storage.ErrNoClaimableWork)

	require.NoError(t, store.ReleaseCompanyLease(ctx, claim.Company.ID))
}

func TestRejectCompanyCandidateExcludesFromGap(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()
	runID := createTestRun(t, store, 3, 1, 2)
	id := insertValidatedCompany(t, store, runID, "a.com")

	require.NoError(t, store.RejectCompanyCandidate(ctx, id, "disqualified: no PMS match"))

	gap, err := store.CompanyGap(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 0, gap.CompaniesReady)
}
