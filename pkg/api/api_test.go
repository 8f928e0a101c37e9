package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/leadpipe/pkg/config"
	"github.com/codeready-toolchain/leadpipe/pkg/model"
	"github.com/codeready-toolchain/leadpipe/pkg/storage"
	"github.com/codeready-toolchain/leadpipe/test/dbtest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testCriteria() model.Criteria {
	return model.Criteria{State: "TX", City: "Austin", NotificationEmail: "ops@example.com"}
}

func newTestServer(t *testing.T) (*Server, *storage.Store) {
	store := dbtest.NewStore(t)
	return NewServer(store, config.NotificationConfig{}), store
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthzReturnsOK(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateRunRejectsMissingNotificationEmail(t *testing.T) {
	s, _ := newTestServer(t)
	req := CreateRunRequest{Criteria: model.Criteria{State: "TX"}, TargetQuantity: 5, ContactsMin: 1, ContactsMax: 2}
	rec := doRequest(t, s, http.MethodPost, "/runs", req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRunSucceeds(t *testing.T) {
	s, _ := newTestServer(t)
	req := CreateRunRequest{Criteria: testCriteria(), TargetQuantity: 5, ContactsMin: 1, ContactsMax: 2}
	rec := doRequest(t, s, http.MethodPost, "/runs", req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp CreateRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
}

func TestGetRunNotFoundReturns404(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/runs/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDecideRunConflictsWhenRunNotAwaitingDecision(t *testing.T) {
	s, store := newTestServer(t)
	id, err := store.CreateRun(context.Background(), testCriteria(), 5, 1, 2)
	require.NoError(t, err)

	rec := doRequest(t, s, http.MethodPost, "/runs/"+id+"/decision", DecisionRequest{Decision: "accept_partial"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDecideRunAcceptPartialCompletesRun(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()
	id, err := store.CreateRun(ctx, testCriteria(), 5, 1, 2)
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(ctx, id, model.StatusNeedsUserDecision, "stalled"))

	rec := doRequest(t, s, http.MethodPost, "/runs/"+id+"/decision", DecisionRequest{Decision: "accept_partial"})
	assert.Equal(t, http.StatusOK, rec.Code)

	run, err := store.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, run.Status)
}

func TestDecideRunExpandLeavesRunParkedWithMarker(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()
	id, err := store.CreateRun(ctx, testCriteria(), 5, 1, 2)
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(ctx, id, model.StatusNeedsUserDecision, "stalled"))

	rec := doRequest(t, s, http.MethodPost, "/runs/"+id+"/decision", DecisionRequest{Decision: "expand", TargetQuantity: 10, ContactsMin: 2})
	assert.Equal(t, http.StatusOK, rec.Code)

	run, err := store.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNeedsUserDecision, run.Status)
	assert.Equal(t, 5, run.TargetQuantity)
	assert.Contains(t, run.Notes, "expand")
}

func TestResumeRunReactivatesAfterExpandDecision(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()
	id, err := store.CreateRun(ctx, testCriteria(), 5, 1, 2)
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(ctx, id, model.StatusNeedsUserDecision, "stalled"))
	rec := doRequest(t, s, http.MethodPost, "/runs/"+id+"/decision", DecisionRequest{Decision: "expand", TargetQuantity: 10, ContactsMin: 2})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/runs/"+id+"/resume", ResumeRunRequest{TargetQuantity: 10, ContactsMin: 2})
	assert.Equal(t, http.StatusOK, rec.Code)

	run, err := store.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, run.Status)
	assert.Equal(t, 10, run.TargetQuantity)
	assert.Equal(t, 2, run.ContactsMin)
}

func TestDecideRunRejectsUnknownDecision(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()
	id, err := store.CreateRun(ctx, testCriteria(), 5, 1, 2)
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(ctx, id, model.StatusNeedsUserDecision, "stalled"))

	rec := doRequest(t, s, http.MethodPost, "/runs/"+id+"/decision", DecisionRequest{Decision: "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportCompaniesReturnsCSV(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()
	id, err := store.CreateRun(ctx, testCriteria(), 5, 1, 2)
	require.NoError(t, err)
	_, err = store.InsertCompanyCandidate(ctx, storage.InsertCompanyCandidateInput{
		RunID: id, Name: "Acme", Website: "https://acme.com", Domain: "acme.com", State: "TX",
		DiscoverySource: "seed:catalog", Status: model.CandidateStatusValidated, IdempotencyKey: "seed:acme.com",
	})
	require.NoError(t, err)

	rec := doRequest(t, s, http.MethodGet, "/runs/"+id+"/export/companies.csv", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "acme.com")
}
