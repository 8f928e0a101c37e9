// Package model defines the persistent entities of the lead-generation
// pipeline: runs, company candidates, research, contacts, and heartbeats.
package model

import (
	"encoding/json"
	"time"
)

// Stage is a run's position in the pipeline.
type Stage string

// Pipeline stages, strictly ordered.
const (
	StageDiscovery        Stage = "discovery"
	StageResearch         Stage = "research"
	StageContactDiscovery Stage = "contact_discovery"
	StageDone             Stage = "done"
)

// stageOrder gives the index of a stage in the canonical sequence.
var stageOrder = map[Stage]int{
	StageDiscovery:        0,
	StageResearch:         1,
	StageContactDiscovery: 2,
	StageDone:             3,
}

// Before reports whether s precedes other in the canonical stage sequence.
func (s Stage) Before(other Stage) bool {
	return stageOrder[s] < stageOrder[other]
}

// Status is a run's lifecycle status.
type Status string

// Run statuses. completed/error/archived are terminal.
const (
	StatusActive            Status = "active"
	StatusCompleted         Status = "completed"
	StatusError             Status = "error"
	StatusNeedsUserDecision Status = "needs_user_decision"
	StatusArchived          Status = "archived"
)

// Terminal reports whether no worker may further mutate a run in this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusArchived:
		return true
	default:
		return false
	}
}

// Criteria is the structured request carried by a Run.
type Criteria struct {
	PMS                 string         `json:"pms,omitempty"`
	State                string         `json:"state,omitempty"`
	City                 string         `json:"city,omitempty"`
	UnitsMin             int            `json:"units_min,omitempty"`
	TargetDistribution   map[string]int `json:"target_distribution,omitempty"` // state -> desired count
	NotificationEmail    string         `json:"notification_email"`
}

// Run is the top-level lead-list request.
type Run struct {
	ID             string    `db:"id" json:"id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	Criteria       Criteria  `db:"criteria" json:"criteria"`
	TargetQuantity int       `db:"target_quantity" json:"target_quantity"`
	ContactsMin    int       `db:"contacts_min" json:"contacts_min"`
	ContactsMax    int       `db:"contacts_max" json:"contacts_max"`
	Stage          Stage     `db:"stage" json:"stage"`
	Status         Status    `db:"status" json:"status"`
	Notes          string    `db:"notes" json:"notes"`
}

// CandidateStatus is shared by CompanyCandidate and ContactCandidate.
type CandidateStatus string

// Candidate statuses.
const (
	CandidateStatusCandidate CandidateStatus = "candidate"
	CandidateStatusValidated CandidateStatus = "validated"
	CandidateStatusPromoted  CandidateStatus = "promoted"
	CandidateStatusRejected  CandidateStatus = "rejected"
)

// ReadyStatuses counts toward a run's gap views.
var ReadyStatuses = []CandidateStatus{CandidateStatusValidated, CandidateStatusPromoted}

// Ready reports whether the status counts toward the run's gap views.
func (s CandidateStatus) Ready() bool {
	return s == CandidateStatusValidated || s == CandidateStatusPromoted
}

// CompanyCandidate is a company associated with a run.
type CompanyCandidate struct {
	ID                    string          `db:"id" json:"id"`
	RunID                 string          `db:"run_id" json:"run_id"`
	Name                  string          `db:"name" json:"name"`
	Website               string          `db:"website" json:"website"`
	Domain                string          `db:"domain" json:"domain"`
	State                 string          `db:"state" json:"state"`
	Description           *string         `db:"description" json:"description,omitempty"`
	DiscoverySource       string          `db:"discovery_source" json:"discovery_source"`
	PMSDetected           *string         `db:"pms_detected" json:"pms_detected,omitempty"`
	UnitsEstimate         *int            `db:"units_estimate" json:"units_estimate,omitempty"`
	Evidence              json.RawMessage `db:"evidence" json:"evidence,omitempty"`
	Status                CandidateStatus `db:"status" json:"status"`
	MeetsAllRequirements  bool            `db:"meets_all_requirements" json:"meets_all_requirements"`
	RejectedReasons       *string         `db:"rejected_reasons" json:"rejected_reasons,omitempty"`
	QualityScore          float64         `db:"quality_score" json:"quality_score"`
	IdempotencyKey        string          `db:"idempotency_key" json:"idempotency_key"`
	WorkerID              *string         `db:"worker_id" json:"worker_id,omitempty"`
	LeaseUntil            *time.Time      `db:"lease_until" json:"lease_until,omitempty"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
}

// ResearchStatus is the lifecycle of a CompanyResearch row.
type ResearchStatus string

// Research statuses.
const (
	ResearchStatusPending  ResearchStatus = "pending"
	ResearchStatusComplete ResearchStatus = "complete"
	ResearchStatusFailed   ResearchStatus = "failed"
)

// CompanyResearch is the enrichment result for one (run, company).
type CompanyResearch struct {
	ID         string          `db:"id" json:"id"`
	RunID      string          `db:"run_id" json:"run_id"`
	CompanyID  string          `db:"company_id" json:"company_id"`
	Facts      json.RawMessage `db:"facts" json:"facts"`
	Signals    json.RawMessage `db:"signals" json:"signals"`
	Confidence float64         `db:"confidence" json:"confidence"`
	Status     ResearchStatus  `db:"status" json:"status"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// ResearchFacts is the typed shape the Agent returns for research; stored in Facts.
type ResearchFacts struct {
	AnalysisMarkdown  string   `json:"analysis_markdown"`
	PMSConfirmed      string   `json:"pms_confirmed,omitempty"`
	UnitsEstimate     int      `json:"units_estimate,omitempty"`
	PropertyMix       []string `json:"property_mix,omitempty"`
	StatesOfOperation []string `json:"states_of_operation,omitempty"`
}

// ResearchSignals is the typed shape the Agent returns for scored features.
type ResearchSignals struct {
	ICPFit             float64  `json:"icp_fit"`
	Tier               string   `json:"tier,omitempty"`
	MeetsAllRequirements bool   `json:"meets_all_requirements"`
	Disqualifiers      []string `json:"disqualifiers,omitempty"`
}

// ContactCandidate is a person at a company, scoped to a run.
type ContactCandidate struct {
	ID             string          `db:"id" json:"id"`
	RunID          string          `db:"run_id" json:"run_id"`
	CompanyID      string          `db:"company_id" json:"company_id"`
	FullName       string          `db:"full_name" json:"full_name"`
	Title          *string         `db:"title" json:"title,omitempty"`
	Email          *string         `db:"email" json:"email,omitempty"`
	LinkedInURL    *string         `db:"linkedin_url" json:"linkedin_url,omitempty"`
	Department     *string         `db:"department" json:"department,omitempty"`
	Seniority      *string         `db:"seniority" json:"seniority,omitempty"`
	QualityScore   float64         `db:"quality_score" json:"quality_score"`
	Signals        json.RawMessage `db:"signals" json:"signals,omitempty"`
	Evidence       json.RawMessage `db:"evidence" json:"evidence,omitempty"`
	Status         CandidateStatus `db:"status" json:"status"`
	IdempotencyKey string          `db:"idempotency_key" json:"idempotency_key"`
	WorkerID       *string         `db:"worker_id" json:"worker_id,omitempty"`
	LeaseUntil     *time.Time      `db:"lease_until" json:"lease_until,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// ContactEvidence is the structured shape stored in ContactCandidate.Evidence.
type ContactEvidence struct {
	AgentOutput          string `json:"agent_output"` // full markdown report
	ProfessionalSummary  string `json:"professional_summary,omitempty"`
	PersonalAnecdotes    string `json:"personal_anecdotes,omitempty"`
	ProfessionalAnecdotes string `json:"professional_anecdotes,omitempty"`
	Sources              string `json:"sources,omitempty"`
	Gaps                 string `json:"gaps,omitempty"`
}

// HeartbeatStatus is the lifecycle of a worker process.
type HeartbeatStatus string

// Heartbeat statuses.
const (
	HeartbeatIdle       HeartbeatStatus = "idle"
	HeartbeatProcessing HeartbeatStatus = "processing"
	HeartbeatStopped    HeartbeatStatus = "stopped"
)

// WorkerHeartbeat is one row per live worker process.
type WorkerHeartbeat struct {
	WorkerID        string          `db:"worker_id" json:"worker_id"`
	WorkerType      string          `db:"worker_type" json:"worker_type"`
	LastHeartbeatAt time.Time       `db:"last_heartbeat_at" json:"last_heartbeat_at"`
	Status          HeartbeatStatus `db:"status" json:"status"`
	CurrentRunID    *string         `db:"current_run_id" json:"current_run_id,omitempty"`
	CurrentTask     *string         `db:"current_task" json:"current_task,omitempty"`
	LeaseExpiresAt  *time.Time      `db:"lease_expires_at" json:"lease_expires_at,omitempty"`
	StartedAt       time.Time       `db:"started_at" json:"started_at"`
	Metadata        json.RawMessage `db:"metadata" json:"metadata,omitempty"`
}

// CompanyGap is the company_gap derived view.
type CompanyGap struct {
	TargetQuantity int `db:"target_quantity" json:"target_quantity"`
	CompaniesReady int `db:"companies_ready" json:"companies_ready"`
	CompaniesGap   int `db:"companies_gap" json:"companies_gap"`
}

// ContactGapPerCompany is the contact_gap_per_company derived view.
type ContactGapPerCompany struct {
	CompanyID        string `db:"company_id" json:"company_id"`
	ContactsReady    int    `db:"contacts_ready" json:"contacts_ready"`
	ContactsMinGap   int    `db:"contacts_min_gap" json:"contacts_min_gap"`
	ContactsCapacity int    `db:"contacts_capacity" json:"contacts_capacity"`
}

// ContactGap is the run-wide contact_gap aggregate.
type ContactGap struct {
	ContactsMinGapTotal   int `db:"contacts_min_gap_total" json:"contacts_min_gap_total"`
	ContactsCapacityTotal int `db:"contacts_capacity_total" json:"contacts_capacity_total"`
}

// ResumePlan is the resume_plan derived view: enough to decide what a worker
// should do next for a run without re-deriving it from scratch.
type ResumePlan struct {
	RunID      string     `json:"run_id"`
	Stage      Stage      `json:"stage"`
	Status     Status     `json:"status"`
	CompanyGap CompanyGap `json:"company_gap"`
	ContactGap ContactGap `json:"contact_gap"`
}
