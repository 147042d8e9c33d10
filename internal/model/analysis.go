package model

// Confidence is the extraction stage's self-reported certainty. It is the
// sole signal gating the follow-up pass.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// QualityScore is the approval stage's overall rating of an analysis.
type QualityScore string

const (
	QualityPoor      QualityScore = "poor"
	QualityFair      QualityScore = "fair"
	QualityGood      QualityScore = "good"
	QualityExcellent QualityScore = "excellent"
)

// SocialLink pairs a recognized platform with a profile URL.
type SocialLink struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

// FetchResult is the outcome of fetching one page. Content is bounded plain
// text; fetch failures are encoded as placeholder content, never as errors.
type FetchResult struct {
	Content         string
	DiscoveredLinks []SocialLink
}

// Page couples fetched content with where it came from. Pages are assembled
// in input order so prompts built from them are deterministic.
type Page struct {
	Platform string
	URL      string
	Content  string
}

// ExtractionPlan is the planning stage's strategy for the cheaper extraction
// pass. Produced once per run, consumed by extraction, synthesis and approval;
// never persisted on its own.
type ExtractionPlan struct {
	BusinessCategory string   `json:"business_category"`
	ExtractionFocus  []string `json:"extraction_focus"`
	KeyQuestions     []string `json:"key_questions"`
	LookFor          []string `json:"look_for"`
	RedFlags         []string `json:"red_flags"`
	StrategyNotes    string   `json:"strategy_notes"`
}

// ExtractionPlanFromURL extends ExtractionPlan for the URL-first flow, where
// planning also resolves the business identity from page content.
type ExtractionPlanFromURL struct {
	ExtractionPlan
	DiscoveredName     string `json:"discovered_name"`
	DiscoveredLocation string `json:"discovered_location"`
}

// RawExtraction is the extraction stage's unpolished output.
type RawExtraction struct {
	BusinessName     string     `json:"business_name"`
	BusinessType     string     `json:"business_type"`
	Location         string     `json:"location"`
	Services         []string   `json:"services"`
	Description      string     `json:"description"`
	Tone             string     `json:"tone"`
	BrandingClues    []string   `json:"branding_clues"`
	ReviewHighlights []string   `json:"review_highlights"`
	Strengths        []string   `json:"strengths"`
	RawFacts         []string   `json:"raw_facts"`
	DataGaps         []string   `json:"data_gaps"`
	Confidence       Confidence `json:"confidence"`
}

// SuggestedQuestion is a client-facing question tied to an intake section.
type SuggestedQuestion struct {
	Section  string `json:"section"`
	Question string `json:"question"`
	Why      string `json:"why"`
}

// Prefill carries intake-form answers supported by extracted evidence.
// Sparse on purpose: a wrong prefilled answer costs more than a blank one.
type Prefill struct {
	YourStory     PrefillStory     `json:"your_story"`
	Services      PrefillServices  `json:"services"`
	YourCustomers PrefillCustomers `json:"your_customers"`
	ContentMedia  *PrefillContent  `json:"content_media,omitempty"`
	Goals         *PrefillGoals    `json:"goals,omitempty"`
}

// PrefillStory prefills the "your story" intake section.
type PrefillStory struct {
	HowStarted      string `json:"how_started,omitempty"`
	YearsInBusiness string `json:"years_in_business,omitempty"`
	Differentiator  string `json:"differentiator,omitempty"`
}

// PrefillServices prefills the services intake section.
type PrefillServices struct {
	MainServices []string `json:"main_services,omitempty"`
	Specialty    string   `json:"specialty,omitempty"`
	ServiceArea  string   `json:"service_area,omitempty"`
}

// PrefillCustomers prefills the customers intake section.
type PrefillCustomers struct {
	IdealCustomer  string   `json:"ideal_customer,omitempty"`
	HowTheyFindYou []string `json:"how_they_find_you,omitempty"`
}

// PrefillContent prefills the content & media intake section.
type PrefillContent struct {
	HasExistingWebsite bool   `json:"has_existing_website,omitempty"`
	ExistingWebsiteURL string `json:"existing_website_url,omitempty"`
}

// PrefillGoals prefills the goals intake section.
type PrefillGoals struct {
	CompetitorURL string `json:"competitor_url,omitempty"`
}

// AnalysisMeta records pipeline bookkeeping for the reviewer. ModelsUsed
// lists, in call order, the model that served each completed model call.
type AnalysisMeta struct {
	ModelsUsed        []string     `json:"models_used"`
	PagesFetched      int          `json:"pages_fetched"`
	PagesWithContent  int          `json:"pages_with_content"`
	FollowUpPerformed bool         `json:"follow_up_performed"`
	QualityScore      QualityScore `json:"quality_score"`
	Approved          bool         `json:"approved"`
	ApprovalNotes     string       `json:"approval_notes"`
}

// BusinessAnalysis is the pipeline's final artifact, persisted verbatim by
// the caller. Approved=false is advisory and never blocks the return.
type BusinessAnalysis struct {
	BusinessName         string              `json:"business_name"`
	BusinessType         string              `json:"business_type"`
	Location             string              `json:"location"`
	Services             []string            `json:"services"`
	Description          string              `json:"description"`
	Tone                 string              `json:"tone"`
	BrandingClues        []string            `json:"branding_clues"`
	ReviewHighlights     []string            `json:"review_highlights"`
	Strengths            []string            `json:"strengths"`
	SuggestedQuestions   []SuggestedQuestion `json:"suggested_questions"`
	Prefill              Prefill             `json:"prefill"`
	DiscoveredSocialURLs []SocialLink        `json:"discovered_social_urls,omitempty"`
	Meta                 AnalysisMeta        `json:"_meta"`
}

// Correction rewrites one top-level scalar field of a draft analysis.
type Correction struct {
	Field     string `json:"field"`
	Current   string `json:"current"`
	Corrected string `json:"corrected"`
}

// QuestionOverride removes a question by its index in the draft (pre-override
// numbering) and/or appends a replacement.
type QuestionOverride struct {
	RemoveIndex *int               `json:"remove_index"`
	Add         *SuggestedQuestion `json:"add"`
}

// Approval is the review stage's verdict on a synthesized analysis.
type Approval struct {
	Approved          bool               `json:"approved"`
	QualityScore      QualityScore       `json:"quality_score"`
	Corrections       []Correction       `json:"corrections"`
	QuestionOverrides []QuestionOverride `json:"question_overrides"`
	Notes             string             `json:"notes"`
}
