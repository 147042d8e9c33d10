package model

import (
	"encoding/json"
	"time"
)

// ProjectStatus tracks a client project through the intake lifecycle.
type ProjectStatus string

const (
	ProjectDraft      ProjectStatus = "draft"
	ProjectSent       ProjectStatus = "sent"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectCompleted  ProjectStatus = "completed"
)

// Project is a prospective client engagement. SourceURL, when set, is the
// site the analysis pipeline starts from; SocialURLs are operator-supplied
// profile links fetched alongside it.
type Project struct {
	ID           string          `json:"id"`
	Slug         string          `json:"slug"`
	ClientName   string          `json:"client_name"`
	BusinessType string          `json:"business_type"`
	Location     string          `json:"location"`
	SocialURLs   []string        `json:"social_urls"`
	Notes        string          `json:"notes"`
	SourceURL    string          `json:"source_url"`
	Status       ProjectStatus   `json:"status"`
	Analysis     json.RawMessage `json:"ai_analysis,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// StepSections enumerates the intake form's sections in display order.
// Suggested questions and prefill keys reference these names.
var StepSections = []string{
	"your_story",
	"services",
	"your_customers",
	"your_brand",
	"content_media",
	"website_features",
	"goals",
}

// IntakeResponse is a client's partially or fully completed intake form.
// Responses maps section name to that section's answers.
type IntakeResponse struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id"`
	Responses   json.RawMessage `json:"responses"`
	CurrentStep int             `json:"current_step"`
	Completed   bool            `json:"completed"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// ProposalStatus tracks a proposal's publication state.
type ProposalStatus string

const (
	ProposalDraft     ProposalStatus = "draft"
	ProposalPublished ProposalStatus = "published"
	ProposalArchived  ProposalStatus = "archived"
)

// Proposal is a slide-deck proposal generated for a project. ProposalData
// holds the per-slide content as stored, without interpretation.
type Proposal struct {
	ID           string          `json:"id"`
	Slug         string          `json:"slug"`
	ProjectID    string          `json:"project_id"`
	ClientName   string          `json:"client_name"`
	ContactName  string          `json:"contact_name"`
	Industry     string          `json:"industry"`
	ProposalData json.RawMessage `json:"proposal_data"`
	Status       ProposalStatus  `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
