package store

import (
	"context"
	"time"

	"github.com/sells-group/map-review/internal/model"
)

// CreateAssessmentParams carries everything persisted at submission time.
// The document's extracted text is not known yet; FileKey is nil when blob
// storage is disabled.
type CreateAssessmentParams struct {
	UPC      string
	MAPPrice string
	FileKey  *string
	FileType string
}

// Store defines the persistence interface for the assessment pipeline.
// GetAssessment returns (nil, nil) when the assessment does not exist.
type Store interface {
	// CreateAssessment atomically creates the assessment, its single item,
	// the policy document record, and the provisional recommendation.
	CreateAssessment(ctx context.Context, params CreateAssessmentParams) (*model.AssessmentView, error)

	// UpdateStatusStep advances the assessment's status and step. Steps are
	// persisted before the corresponding work begins so pollers observe the
	// in-flight phase.
	UpdateStatusStep(ctx context.Context, assessmentID string, status model.AssessmentStatus, step model.AssessmentStep) error

	// InsertCompetitorPrices records one batch of per-source observations.
	InsertCompetitorPrices(ctx context.Context, itemID string, prices []model.CompetitorPrice) error

	// UpdatePolicyDocument records the extraction outcome. Text and
	// extractedAt are both nil when extraction failed.
	UpdatePolicyDocument(ctx context.Context, documentID string, text *string, extractedAt *time.Time) error

	// CreatePolicyAnalysis stores the classifier verdict (at most one per
	// assessment).
	CreatePolicyAnalysis(ctx context.Context, analysis model.PolicyAnalysis) (*model.PolicyAnalysis, error)

	// UpdateRecommendation overwrites the provisional recommendation with
	// the final verdict.
	UpdateRecommendation(ctx context.Context, assessmentID string, action model.RecommendationAction, reasons []string) error

	// GetAssessment loads the full projection for the status query.
	GetAssessment(ctx context.Context, assessmentID string) (*model.AssessmentView, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
