package model

import "time"

// AssessmentStatus represents the overall state of an assessment.
type AssessmentStatus string

const (
	AssessmentStatusPending   AssessmentStatus = "pending"
	AssessmentStatusRunning   AssessmentStatus = "running"
	AssessmentStatusCompleted AssessmentStatus = "completed"
	AssessmentStatusFailed    AssessmentStatus = "failed"
)

// AssessmentStep is the orchestrator's current sub-phase within "running".
// Steps are monotonic; there are no backward transitions.
type AssessmentStep string

const (
	StepExtractingPolicy AssessmentStep = "extracting_policy"
	StepCheckingPrices   AssessmentStep = "checking_prices"
	StepAnalyzingPolicy  AssessmentStep = "analyzing_policy"
	StepPolicyReviewed   AssessmentStep = "policy_reviewed"
)

// AssessmentMode describes how many items an assessment covers.
type AssessmentMode string

const (
	// ModeSingle is the only mode implemented today. Bulk assessment
	// would add a "bulk" mode with many items per assessment.
	ModeSingle AssessmentMode = "single"
)

// Assessment is one end-to-end evaluation of a product + policy submission.
type Assessment struct {
	ID        string           `json:"id"`
	Mode      AssessmentMode   `json:"mode"`
	Status    AssessmentStatus `json:"status"`
	Step      AssessmentStep   `json:"step"`
	CreatedAt time.Time        `json:"created_at"`
}

// AssessmentItem is one product under review. MAPPrice is a fixed-point
// decimal string with two places ("49.99"), validated > 0 at submission.
type AssessmentItem struct {
	ID           string    `json:"id"`
	AssessmentID string    `json:"assessment_id"`
	UPC          string    `json:"upc"`
	MAPPrice     string    `json:"map_price"`
	CreatedAt    time.Time `json:"created_at"`
}

// PriceSource names a competitor whose price we observe.
type PriceSource string

const (
	SourceWalmart PriceSource = "walmart"
	SourceAmazon  PriceSource = "amazon"
)

// CompetitorPrice is one retailer's observed price for an item. A nil
// Price means the price could not be determined; ErrorMessage carries
// the reason. Records are written once and never updated.
type CompetitorPrice struct {
	ID           string      `json:"id"`
	ItemID       string      `json:"item_id"`
	Source       PriceSource `json:"source"`
	Price        *float64    `json:"price"`
	Currency     string      `json:"currency"`
	ListingURL   *string     `json:"listing_url"`
	ErrorMessage *string     `json:"error_message"`
	ScrapedAt    *time.Time  `json:"scraped_at"`
}

// PolicyDocument is the uploaded vendor policy file. FileKey is the blob
// store URL when storage is configured; ExtractedAt is set iff extraction
// succeeded.
type PolicyDocument struct {
	ID            string     `json:"id"`
	AssessmentID  string     `json:"assessment_id"`
	FileKey       *string    `json:"file_key"`
	FileType      string     `json:"file_type"`
	ExtractedText *string    `json:"extracted_text"`
	ExtractedAt   *time.Time `json:"extracted_at"`
}

// PolicyAnalysis is the classifier's verdict on the policy text.
// SegmentDescription is non-nil only when AppliesToAllRetailers is false;
// ConsequencesSummary is non-nil only when ConsequencesSpecific is true.
// An absent PolicyAnalysis means classification never produced a verdict,
// which is distinct from a verdict with all-false fields.
type PolicyAnalysis struct {
	ID                    string  `json:"id"`
	AssessmentID          string  `json:"assessment_id"`
	AppliesToAllRetailers bool    `json:"applies_to_all_retailers"`
	SegmentDescription    *string `json:"segment_description"`
	ConsequencesSpecific  bool    `json:"consequences_specific"`
	ConsequencesSummary   *string `json:"consequences_summary"`
}

// RecommendationAction is the binary verdict.
type RecommendationAction string

const (
	ActionDiscuss RecommendationAction = "discuss"
	ActionProceed RecommendationAction = "proceed"
)

// Recommendation is the final verdict for an assessment. Reasons are
// ordered by generation and never empty when the action is meaningful.
// Created with a provisional value at submission and overwritten exactly
// once when the pipeline completes.
type Recommendation struct {
	ID           string               `json:"id"`
	AssessmentID string               `json:"assessment_id"`
	Action       RecommendationAction `json:"action"`
	Reasons      []string             `json:"reasons"`
}

// AssessmentView is the full projection returned by the status query:
// the assessment with its item, competitor prices, and the analysis and
// recommendation when present.
type AssessmentView struct {
	Assessment     Assessment      `json:"assessment"`
	Items          []ItemView      `json:"items"`
	PolicyDocument *PolicyDocument `json:"policy_document"`
	PolicyAnalysis *PolicyAnalysis `json:"policy_analysis"`
	Recommendation *Recommendation `json:"recommendation"`
}

// ItemView pairs an item with its competitor price observations.
type ItemView struct {
	Item             AssessmentItem    `json:"item"`
	CompetitorPrices []CompetitorPrice `json:"competitor_prices"`
}
