// Package pipeline runs a MAP policy assessment end to end: persist the
// submission, gather competitor prices, extract the policy text, classify
// it, and synthesize a recommendation.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/map-review/internal/blob"
	"github.com/sells-group/map-review/internal/competitor"
	"github.com/sells-group/map-review/internal/extract"
	"github.com/sells-group/map-review/internal/model"
	"github.com/sells-group/map-review/internal/policy"
	"github.com/sells-group/map-review/internal/store"
)

// Pipeline orchestrates one assessment. Every sub-step failure degrades
// into a reason string on the recommendation; only store errors abort.
type Pipeline struct {
	store      store.Store
	blob       blob.Store // nil disables document retention
	sources    []competitor.Source
	classifier *policy.Classifier
}

// New creates a Pipeline with all dependencies.
func New(st store.Store, blobStore blob.Store, sources []competitor.Source, classifier *policy.Classifier) *Pipeline {
	return &Pipeline{
		store:      st,
		blob:       blobStore,
		sources:    sources,
		classifier: classifier,
	}
}

// Run executes the full assessment for a validated submission and returns
// the completed view. The returned error is a *ValidationError for bad
// input, otherwise a store or blob failure.
func (p *Pipeline) Run(ctx context.Context, sub Submission) (*model.AssessmentView, error) {
	if verr := sub.Validate(); verr != nil {
		return nil, verr
	}

	log := zap.L().With(zap.String("upc", sub.UPC))
	log.Info("assessment: starting",
		zap.String("map_price", sub.formattedPrice()),
		zap.String("file_type", sub.normalizedType()),
		zap.Int("file_bytes", len(sub.Data)),
	)

	var fileKey *string
	if p.blob != nil {
		key := fmt.Sprintf("policies/%d-%s", time.Now().UnixMilli(), sanitizeFileName(sub.FileName))
		url, err := p.blob.Put(ctx, key, sub.normalizedType(), sub.Data)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: store document")
		}
		fileKey = &url
	}

	view, err := p.store.CreateAssessment(ctx, store.CreateAssessmentParams{
		UPC:      sub.UPC,
		MAPPrice: sub.formattedPrice(),
		FileKey:  fileKey,
		FileType: sub.normalizedType(),
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create assessment")
	}
	assessmentID := view.Assessment.ID
	itemID := view.Items[0].Item.ID
	documentID := view.PolicyDocument.ID
	log = log.With(zap.String("assessment_id", assessmentID))

	if err := p.store.UpdateStatusStep(ctx, assessmentID, model.AssessmentStatusRunning, model.StepExtractingPolicy); err != nil {
		return nil, eris.Wrap(err, "pipeline: set running")
	}

	if err := p.checkPrices(ctx, log, assessmentID, itemID, sub.UPC); err != nil {
		return nil, err
	}

	extractedText, extractFailure, err := p.extractPolicy(ctx, log, documentID, sub)
	if err != nil {
		return nil, err
	}

	if err := p.store.UpdateStatusStep(ctx, assessmentID, model.AssessmentStatusRunning, model.StepAnalyzingPolicy); err != nil {
		return nil, eris.Wrap(err, "pipeline: set analyzing_policy")
	}

	rec, err := p.reviewPolicy(ctx, log, assessmentID, extractedText, extractFailure)
	if err != nil {
		return nil, err
	}
	if err := p.store.UpdateRecommendation(ctx, assessmentID, rec.Action, rec.Reasons); err != nil {
		return nil, eris.Wrap(err, "pipeline: update recommendation")
	}

	if err := p.store.UpdateStatusStep(ctx, assessmentID, model.AssessmentStatusCompleted, model.StepPolicyReviewed); err != nil {
		return nil, eris.Wrap(err, "pipeline: set completed")
	}

	log.Info("assessment: completed", zap.String("action", string(rec.Action)), zap.Int("reasons", len(rec.Reasons)))

	final, err := p.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load completed assessment")
	}
	return final, nil
}

// checkPrices advances the step, queries every source concurrently, and
// persists the batch in source order.
func (p *Pipeline) checkPrices(ctx context.Context, log *zap.Logger, assessmentID, itemID, upc string) error {
	if err := p.store.UpdateStatusStep(ctx, assessmentID, model.AssessmentStatusRunning, model.StepCheckingPrices); err != nil {
		return eris.Wrap(err, "pipeline: set checking_prices")
	}

	prices := make([]model.CompetitorPrice, len(p.sources))
	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	for i, src := range p.sources {
		g.Go(func() error {
			res := src.Lookup(gCtx, upc)
			mu.Lock()
			prices[i] = competitor.ToPrice(src.Name(), res)
			mu.Unlock()
			if res.Err != "" {
				log.Warn("price lookup degraded",
					zap.String("source", string(src.Name())),
					zap.String("reason", res.Err),
				)
			}
			return nil
		})
	}
	_ = g.Wait() // lookups never return errors

	if err := p.store.InsertCompetitorPrices(ctx, itemID, prices); err != nil {
		return eris.Wrap(err, "pipeline: insert competitor prices")
	}
	return nil
}

// extractPolicy extracts the document text and records the outcome on the
// policy document row. A failure is returned for the recommendation, not
// as an error.
func (p *Pipeline) extractPolicy(ctx context.Context, log *zap.Logger, documentID string, sub Submission) (string, *extract.Failure, error) {
	text, failure := extract.Extract(sub.Data, sub.normalizedType())

	var textPtr *string
	var extractedAt *time.Time
	if failure == nil {
		textPtr = &text
		now := time.Now().UTC()
		extractedAt = &now
	} else {
		log.Warn("policy extraction degraded",
			zap.String("kind", string(failure.Kind)),
			zap.String("reason", failure.Message),
		)
	}

	if err := p.store.UpdatePolicyDocument(ctx, documentID, textPtr, extractedAt); err != nil {
		return "", nil, eris.Wrap(err, "pipeline: update policy document")
	}
	return text, failure, nil
}

// reviewPolicy classifies the extracted text and synthesizes the final
// recommendation. Classification failures degrade into the reasons, but a
// failure to persist the analysis aborts the run so a proceed can never be
// issued without its backing analysis row.
func (p *Pipeline) reviewPolicy(ctx context.Context, log *zap.Logger, assessmentID, text string, extractFailure *extract.Failure) (model.Recommendation, error) {
	if extractFailure != nil {
		return policy.Synthesize(nil, extractFailure.Message), nil
	}

	analysis, failure := p.classifier.Classify(ctx, text)
	if failure != nil {
		log.Warn("policy classification degraded", zap.String("reason", failure.Message))
		return policy.Synthesize(nil, failure.Message), nil
	}

	analysis.AssessmentID = assessmentID
	saved, err := p.store.CreatePolicyAnalysis(ctx, *analysis)
	if err != nil {
		return model.Recommendation{}, eris.Wrap(err, "pipeline: create policy analysis")
	}
	return policy.Synthesize(saved, ""), nil
}
