package agentgateway

import (
	"fmt"
	"strings"

	"github.com/codeready-toolchain/leadpipe/pkg/model"
)

// companySchema is the structured shape the list-agent and region
// discovery calls must answer with. Must not include fetched contacts.
var companySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"companies": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":           map[string]any{"type": "string"},
					"domain":         map[string]any{"type": "string"},
					"website":        map[string]any{"type": "string"},
					"state":          map[string]any{"type": "string"},
					"description":    map[string]any{"type": "string"},
					"pms_detected":   map[string]any{"type": "string"},
					"units_estimate": map[string]any{"type": "integer"},
					"evidence":       map[string]any{"type": "object"},
					"quality_score":  map[string]any{"type": "number"},
				},
				"required": []string{"name", "domain"},
			},
		},
		"metadata": map[string]any{"type": "object"},
	},
	"required": []string{"companies"},
}

// researchSchema is the typed shape the research-agent must answer with:
// facts + signals + confidence.
var researchSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"facts": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"analysis_markdown":  map[string]any{"type": "string"},
				"pms_confirmed":      map[string]any{"type": "string"},
				"units_estimate":     map[string]any{"type": "integer"},
				"property_mix":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"states_of_operation": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
		},
		"signals": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"icp_fit":                map[string]any{"type": "number"},
				"tier":                   map[string]any{"type": "string"},
				"meets_all_requirements": map[string]any{"type": "boolean"},
				"disqualifiers":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			"required": []string{"icp_fit", "meets_all_requirements"},
		},
		"confidence": map[string]any{"type": "number"},
	},
	"required": []string{"facts", "signals", "confidence"},
}

// contactSchema is the typed ContactResearchOutput shape: a list of up to N
// decision-makers, each carrying a full Markdown report with the required
// sections.
var contactSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"contacts": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"full_name":              map[string]any{"type": "string"},
					"title":                  map[string]any{"type": "string"},
					"email":                  map[string]any{"type": "string"},
					"linkedin_url":           map[string]any{"type": "string"},
					"department":             map[string]any{"type": "string"},
					"seniority":              map[string]any{"type": "string"},
					"quality_score":          map[string]any{"type": "number"},
					"professional_summary":   map[string]any{"type": "string"},
					"personal_anecdotes":     map[string]any{"type": "string"},
					"professional_anecdotes": map[string]any{"type": "string"},
					"sources":                map[string]any{"type": "string"},
					"gaps":                   map[string]any{"type": "string"},
					"markdown_report":        map[string]any{"type": "string"},
				},
				"required": []string{"full_name", "markdown_report"},
			},
		},
	},
	"required": []string{"contacts"},
}

const workerModePreamble = "You are operating in worker-mode as part of an automated lead-generation pipeline. " +
	"You will not converse with a human; respond only through the provided tool. " +
	"Honor every hard constraint in the prompt exactly; do not relax a PMS, unit, or geography constraint " +
	"to produce more results."

// ListAgentPrompt builds the discovery list-agent request for one region.
// The schema must include companies: [...] and must not include fetched
// contacts — fetching contacts here would violate the stage boundary between
// discovery and contact_discovery. alreadyFound/batchSize phrase the request
// as one batch of a larger in-run sequence when batching is active
// (batchSize > 0 and smaller than what's left for the region); batchSize <= 0
// asks for the whole remaining regional target in one call.
func ListAgentPrompt(criteria model.Criteria, regionName, regionFocus string, perRegionTarget, alreadyFound, batchSize int, suppressed []string) Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Find candidate property-management companies matching these criteria, restricted to region %q (%s).\n", regionName, regionFocus)
	remaining := perRegionTarget - alreadyFound
	if batchSize > 0 && batchSize < remaining {
		fmt.Fprintf(&b, "We have %d of %d companies so far for this region; find the next %d.\n", alreadyFound, perRegionTarget, batchSize)
	} else {
		fmt.Fprintf(&b, "Target for this region: %d companies.\n", perRegionTarget)
	}
	if criteria.PMS != "" {
		fmt.Fprintf(&b, "Required property management system (PMS): %s. This is a hard constraint.\n", criteria.PMS)
	}
	if criteria.State != "" {
		fmt.Fprintf(&b, "State: %s.\n", criteria.State)
	}
	if criteria.City != "" {
		fmt.Fprintf(&b, "City: %s.\n", criteria.City)
	}
	if criteria.UnitsMin > 0 {
		fmt.Fprintf(&b, "Minimum managed units: %d.\n", criteria.UnitsMin)
	}
	b.WriteString("Do not fetch or include any contact/person information in this response; only companies.\n")
	if len(suppressed) > 0 {
		fmt.Fprintf(&b, "Do not propose any company whose domain matches this suppression list: %s.\n", strings.Join(suppressed, ", "))
	}
	b.WriteString("Consult the suppression list once before finalizing your answer.\n")

	return Request{
		System:            workerModePreamble,
		Prompt:            b.String(),
		SchemaName:        "submit_companies",
		SchemaDescription: "Submit the structured list of candidate companies found for this region.",
		Schema:            companySchema,
	}
}

// ResearchAgentPrompt builds the per-company research request: facts +
// signals + confidence, used to validate ICP fit and confirm the PMS.
func ResearchAgentPrompt(criteria model.Criteria, company *model.CompanyCandidate) Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Research the company %q (domain %s, website %s) and determine whether it meets these requirements:\n", company.Name, company.Domain, company.Website)
	if criteria.PMS != "" {
		fmt.Fprintf(&b, "- Uses property management system: %s (hard constraint)\n", criteria.PMS)
	}
	if criteria.UnitsMin > 0 {
		fmt.Fprintf(&b, "- Manages at least %d units\n", criteria.UnitsMin)
	}
	if criteria.State != "" {
		fmt.Fprintf(&b, "- Operates in state: %s\n", criteria.State)
	}
	b.WriteString("Return a Markdown analysis in facts.analysis_markdown, confirmed facts, and a signals object " +
		"stating icp_fit (0-1), tier, meets_all_requirements, and any disqualifiers.\n")

	return Request{
		System:            workerModePreamble,
		Prompt:            b.String(),
		SchemaName:        "submit_research",
		SchemaDescription: "Submit the structured research facts and fit signals for this company.",
		Schema:            researchSchema,
	}
}

// ContactAgentPrompt builds the per-company contact-discovery request for up
// to needed decision-makers, each requiring a full Markdown report.
func ContactAgentPrompt(company *model.CompanyCandidate, needed int) Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Find up to %d decision-makers at %q (domain %s) relevant to a property-management software sale.\n",
		needed, company.Name, company.Domain)
	b.WriteString("For each contact, return full_name and a markdown_report with sections: " +
		"Professional Summary, Personal Anecdotes, Professional Anecdotes, Sources, Gaps. " +
		"Also populate the corresponding typed fields (professional_summary, personal_anecdotes, " +
		"professional_anecdotes, sources, gaps) alongside the Markdown.\n")
	fmt.Fprintf(&b, "Do not return more than %d contacts.\n", needed)

	return Request{
		System:            workerModePreamble,
		Prompt:            b.String(),
		SchemaName:        "submit_contacts",
		SchemaDescription: "Submit the structured list of decision-maker contacts found for this company.",
		Schema:            contactSchema,
	}
}
