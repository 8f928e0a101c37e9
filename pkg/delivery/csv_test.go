package delivery

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/leadpipe/pkg/model"
)

func TestBuildCompanyCSVHeaderAndRow(t *testing.T) {
	units := 500
	desc := "a property manager"
	company := &model.CompanyCandidate{
		ID:            "c1",
		RunID:         "r1",
		Name:          "Acme PM",
		Website:       "https://acme.com",
		Domain:        "acme.com",
		State:         "TX",
		Description:   &desc,
		UnitsEstimate: &units,
		Status:        model.CandidateStatusValidated,
		QualityScore:  0.9,
		CreatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	research := &model.CompanyResearch{
		CompanyID:  "c1",
		Facts:      []byte(`{"analysis_markdown":"summary text"}`),
		Signals:    []byte(`{"tier":"A"}`),
		Confidence: 0.75,
	}

	out, err := BuildCompanyCSV([]*model.CompanyCandidate{company}, map[string]*model.CompanyResearch{"c1": research})
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, companyColumns, rows[0])
	assert.Len(t, rows[1], len(companyColumns))
	assert.Equal(t, "acme.com", rows[1][4])
	assert.Equal(t, "summary text", rows[1][13])
	assert.Equal(t, "A", rows[1][15])
}

func TestBuildContactCSVHeaderAndRow(t *testing.T) {
	email := "jane@acme.com"
	contact := &model.ContactCandidate{
		ID:           "k1",
		RunID:        "r1",
		CompanyID:    "c1",
		FullName:     "Jane Doe",
		Email:        &email,
		QualityScore: 0.8,
		Status:       model.CandidateStatusValidated,
		Evidence: marshalEvidence(t, model.ContactEvidence{
			ProfessionalSummary: "led ops",
			Sources:             "linkedin",
		}),
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	company := &model.CompanyCandidate{ID: "c1", Name: "Acme PM", Domain: "acme.com"}

	out, err := BuildContactCSV([]*model.ContactCandidate{contact}, map[string]*model.CompanyCandidate{"c1": company})
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, contactColumns, rows[0])
	assert.Equal(t, "Acme PM", rows[1][2])
	assert.Equal(t, "led ops", rows[1][13])
	assert.Equal(t, "linkedin", rows[1][16])
}

func marshalEvidence(t *testing.T, e model.ContactEvidence) []byte {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return b
}
