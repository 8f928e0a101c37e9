// Package delivery projects a completed run's companies and contacts into
// tabular CSV exports and emails them to the run's notification address.
// Delivery is best-effort: a failure here does not roll back the run's
// completion, it is only recorded in the run's notes.
package delivery

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"github.com/codeready-toolchain/leadpipe/pkg/model"
)

// companyColumns is the company export's fixed 17-column header.
var companyColumns = []string{
	"run_id", "company_id", "name", "website", "domain", "state", "description",
	"discovery_source", "pms_detected", "units_estimate", "status",
	"meets_all_requirements", "quality_score", "agent_summary",
	"research_confidence", "research_tier", "created_at",
}

// contactColumns is the contact export's fixed 19-column header.
var contactColumns = []string{
	"run_id", "company_id", "company_name", "company_domain", "contact_id",
	"full_name", "title", "email", "linkedin_url", "department", "seniority",
	"quality_score", "status", "professional_summary", "personal_anecdotes",
	"professional_anecdotes", "sources", "gaps", "created_at",
}

// BuildCompanyCSV projects companies joined with their research row (if any)
// into the 17-column company export.
func BuildCompanyCSV(companies []*model.CompanyCandidate, researchByCompany map[string]*model.CompanyResearch) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(companyColumns); err != nil {
		return nil, fmt.Errorf("writing company header: %w", err)
	}

	for _, c := range companies {
		summary, confidence, tier := "", "", ""
		if r, ok := researchByCompany[c.ID]; ok {
			var facts model.ResearchFacts
			if len(r.Facts) > 0 {
				_ = json.Unmarshal(r.Facts, &facts)
			}
			var signals model.ResearchSignals
			if len(r.Signals) > 0 {
				_ = json.Unmarshal(r.Signals, &signals)
			}
			summary = facts.AnalysisMarkdown
			confidence = fmt.Sprintf("%.2f", r.Confidence)
			tier = signals.Tier
		}

		row := []string{
			c.RunID, c.ID, c.Name, c.Website, c.Domain, c.State, derefStr(c.Description),
			c.DiscoverySource, derefStr(c.PMSDetected), intOrEmpty(c.UnitsEstimate), string(c.Status),
			fmt.Sprintf("%t", c.MeetsAllRequirements), fmt.Sprintf("%.2f", c.QualityScore), summary,
			confidence, tier, c.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("writing company row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing company csv: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildContactCSV projects contacts, joined with their owning company's
// name/domain, into the 19-column contact export.
func BuildContactCSV(contacts []*model.ContactCandidate, companyByID map[string]*model.CompanyCandidate) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(contactColumns); err != nil {
		return nil, fmt.Errorf("writing contact header: %w", err)
	}

	for _, c := range contacts {
		companyName, companyDomain := "", ""
		if company, ok := companyByID[c.CompanyID]; ok {
			companyName = company.Name
			companyDomain = company.Domain
		}

		var evidence model.ContactEvidence
		if len(c.Evidence) > 0 {
			_ = json.Unmarshal(c.Evidence, &evidence)
		}

		row := []string{
			c.RunID, c.CompanyID, companyName, companyDomain, c.ID,
			c.FullName, derefStr(c.Title), derefStr(c.Email), derefStr(c.LinkedInURL),
			derefStr(c.Department), derefStr(c.Seniority), fmt.Sprintf("%.2f", c.QualityScore), string(c.Status),
			evidence.ProfessionalSummary, evidence.PersonalAnecdotes, evidence.ProfessionalAnecdotes,
			evidence.Sources, evidence.Gaps, c.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("writing contact row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing contact csv: %w", err)
	}
	return buf.Bytes(), nil
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intOrEmpty(v *int) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d", *v)
}
