package pipeline

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/map-review/internal/competitor"
	"github.com/sells-group/map-review/internal/model"
	"github.com/sells-group/map-review/internal/store"
	"github.com/sells-group/map-review/pkg/anthropic"
)

// --- Anthropic mock ---

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// --- Competitor source stub ---

type stubSource struct {
	name   model.PriceSource
	result competitor.Result
}

func (s *stubSource) Name() model.PriceSource { return s.name }

func (s *stubSource) Lookup(_ context.Context, _ string) competitor.Result {
	return s.result
}

// --- Store fake ---

// fakeStore records every mutation in order so tests can assert the state
// machine walked its steps.
type fakeStore struct {
	calls []string

	createParams store.CreateAssessmentParams
	steps        []model.AssessmentStep
	statuses     []model.AssessmentStatus
	prices       []model.CompetitorPrice
	docText      *string
	docTime      *time.Time
	analysis     *model.PolicyAnalysis
	recAction    model.RecommendationAction
	recReasons   []string

	failCreate   bool
	failPrices   bool
	failAnalysis bool
}

var errStoreDown = &storeDownError{}

type storeDownError struct{}

func (e *storeDownError) Error() string { return "connection refused" }

func newFakeStore() *fakeStore { return &fakeStore{} }

func (f *fakeStore) CreateAssessment(_ context.Context, params store.CreateAssessmentParams) (*model.AssessmentView, error) {
	f.calls = append(f.calls, "CreateAssessment")
	if f.failCreate {
		return nil, errStoreDown
	}
	f.createParams = params
	doc := model.PolicyDocument{ID: "doc-1", AssessmentID: "a-1", FileKey: params.FileKey, FileType: params.FileType}
	rec := model.Recommendation{ID: "rec-1", AssessmentID: "a-1", Action: model.ActionDiscuss, Reasons: []string{"Policy review in progress."}}
	return &model.AssessmentView{
		Assessment: model.Assessment{
			ID:     "a-1",
			Mode:   model.ModeSingle,
			Status: model.AssessmentStatusPending,
			Step:   model.StepExtractingPolicy,
		},
		Items:          []model.ItemView{{Item: model.AssessmentItem{ID: "item-1", AssessmentID: "a-1", UPC: params.UPC, MAPPrice: params.MAPPrice}}},
		PolicyDocument: &doc,
		Recommendation: &rec,
	}, nil
}

func (f *fakeStore) UpdateStatusStep(_ context.Context, _ string, status model.AssessmentStatus, step model.AssessmentStep) error {
	f.calls = append(f.calls, "UpdateStatusStep:"+string(step))
	f.statuses = append(f.statuses, status)
	f.steps = append(f.steps, step)
	return nil
}

func (f *fakeStore) InsertCompetitorPrices(_ context.Context, _ string, prices []model.CompetitorPrice) error {
	f.calls = append(f.calls, "InsertCompetitorPrices")
	if f.failPrices {
		return errStoreDown
	}
	f.prices = prices
	return nil
}

func (f *fakeStore) UpdatePolicyDocument(_ context.Context, _ string, text *string, extractedAt *time.Time) error {
	f.calls = append(f.calls, "UpdatePolicyDocument")
	f.docText = text
	f.docTime = extractedAt
	return nil
}

func (f *fakeStore) CreatePolicyAnalysis(_ context.Context, analysis model.PolicyAnalysis) (*model.PolicyAnalysis, error) {
	f.calls = append(f.calls, "CreatePolicyAnalysis")
	if f.failAnalysis {
		return nil, errStoreDown
	}
	analysis.ID = "pa-1"
	f.analysis = &analysis
	return &analysis, nil
}

func (f *fakeStore) UpdateRecommendation(_ context.Context, _ string, action model.RecommendationAction, reasons []string) error {
	f.calls = append(f.calls, "UpdateRecommendation")
	f.recAction = action
	f.recReasons = reasons
	return nil
}

func (f *fakeStore) GetAssessment(_ context.Context, assessmentID string) (*model.AssessmentView, error) {
	f.calls = append(f.calls, "GetAssessment")
	status := model.AssessmentStatusPending
	step := model.StepExtractingPolicy
	if n := len(f.statuses); n > 0 {
		status = f.statuses[n-1]
		step = f.steps[n-1]
	}
	rec := model.Recommendation{ID: "rec-1", AssessmentID: assessmentID, Action: f.recAction, Reasons: f.recReasons}
	doc := model.PolicyDocument{ID: "doc-1", AssessmentID: assessmentID, FileType: f.createParams.FileType, ExtractedText: f.docText, ExtractedAt: f.docTime}
	return &model.AssessmentView{
		Assessment: model.Assessment{ID: assessmentID, Mode: model.ModeSingle, Status: status, Step: step},
		Items: []model.ItemView{{
			Item:             model.AssessmentItem{ID: "item-1", AssessmentID: assessmentID, UPC: f.createParams.UPC, MAPPrice: f.createParams.MAPPrice},
			CompetitorPrices: f.prices,
		}},
		PolicyDocument: &doc,
		PolicyAnalysis: f.analysis,
		Recommendation: &rec,
	}, nil
}

func (f *fakeStore) Migrate(context.Context) error { return nil }
func (f *fakeStore) Close() error                  { return nil }
