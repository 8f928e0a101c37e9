package agentgateway

// AgentCompany is one entry in the list-agent's companies: [...] response.
type AgentCompany struct {
	Name          string         `json:"name"`
	Domain        string         `json:"domain"`
	Website       string         `json:"website"`
	State         string         `json:"state"`
	Description   string         `json:"description"`
	PMSDetected   string         `json:"pms_detected"`
	UnitsEstimate int            `json:"units_estimate"`
	Evidence      map[string]any `json:"evidence"`
	QualityScore  float64        `json:"quality_score"`
	// Region is not part of the Agent's response schema; the caller stamps
	// it onto every result after unmarshalling so the originating region
	// survives into discovery_source.
	Region string `json:"-"`
}

// CompaniesPayload is the unmarshalled Data of a list-agent Result.
type CompaniesPayload struct {
	Companies []AgentCompany `json:"companies"`
	Metadata  map[string]any `json:"metadata"`
}

// ResearchPayload is the unmarshalled Data of a research-agent Result.
type ResearchPayload struct {
	Facts struct {
		AnalysisMarkdown  string   `json:"analysis_markdown"`
		PMSConfirmed      string   `json:"pms_confirmed"`
		UnitsEstimate     int      `json:"units_estimate"`
		PropertyMix       []string `json:"property_mix"`
		StatesOfOperation []string `json:"states_of_operation"`
	} `json:"facts"`
	Signals struct {
		ICPFit               float64  `json:"icp_fit"`
		Tier                 string   `json:"tier"`
		MeetsAllRequirements bool     `json:"meets_all_requirements"`
		Disqualifiers        []string `json:"disqualifiers"`
	} `json:"signals"`
	Confidence float64 `json:"confidence"`
}

// AgentContact is one entry in the contact-agent's contacts: [...] response.
type AgentContact struct {
	FullName              string  `json:"full_name"`
	Title                 string  `json:"title"`
	Email                 string  `json:"email"`
	LinkedInURL           string  `json:"linkedin_url"`
	Department            string  `json:"department"`
	Seniority             string  `json:"seniority"`
	QualityScore          float64 `json:"quality_score"`
	ProfessionalSummary   string  `json:"professional_summary"`
	PersonalAnecdotes     string  `json:"personal_anecdotes"`
	ProfessionalAnecdotes string  `json:"professional_anecdotes"`
	Sources               string  `json:"sources"`
	Gaps                  string  `json:"gaps"`
	MarkdownReport        string  `json:"markdown_report"`
}

// ContactsPayload is the unmarshalled Data of a contact-agent Result.
type ContactsPayload struct {
	Contacts []AgentContact `json:"contacts"`
}
