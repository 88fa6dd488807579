package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/map-review/internal/model"
)

func strPtr(s string) *string { return &s }

func TestSynthesize_NoAnalysis(t *testing.T) {
	rec := Synthesize(nil, "PDF extraction failed: malformed xref table")

	assert.Equal(t, model.ActionDiscuss, rec.Action)
	assert.Equal(t, []string{"PDF extraction failed: malformed xref table"}, rec.Reasons)
}

func TestSynthesize_Proceed(t *testing.T) {
	rec := Synthesize(&model.PolicyAnalysis{
		AppliesToAllRetailers: true,
		ConsequencesSpecific:  true,
		ConsequencesSummary:   strPtr("First violation: warning. Second: 90-day cutoff."),
	}, "")

	assert.Equal(t, model.ActionProceed, rec.Action)
	assert.Equal(t, []string{"Consequences: First violation: warning. Second: 90-day cutoff."}, rec.Reasons)
}

func TestSynthesize_ProceedWithoutSummaryGetsDefaultReason(t *testing.T) {
	rec := Synthesize(&model.PolicyAnalysis{
		AppliesToAllRetailers: true,
		ConsequencesSpecific:  true,
	}, "")

	assert.Equal(t, model.ActionProceed, rec.Action)
	assert.Equal(t, []string{"Policy applies to all retailers and has specific consequences."}, rec.Reasons)
}

func TestSynthesize_SegmentOnly(t *testing.T) {
	rec := Synthesize(&model.PolicyAnalysis{
		AppliesToAllRetailers: false,
		SegmentDescription:    strPtr("big box retailers only"),
		ConsequencesSpecific:  true,
		ConsequencesSummary:   strPtr("Supply cutoff after two violations."),
	}, "")

	assert.Equal(t, model.ActionDiscuss, rec.Action)
	assert.Equal(t, []string{
		"Policy applies only to: big box retailers only",
		"Consequences: Supply cutoff after two violations.",
	}, rec.Reasons)
}

func TestSynthesize_VagueConsequences(t *testing.T) {
	rec := Synthesize(&model.PolicyAnalysis{
		AppliesToAllRetailers: true,
		ConsequencesSpecific:  false,
	}, "")

	assert.Equal(t, model.ActionDiscuss, rec.Action)
	assert.Equal(t, []string{
		"Policy does not state specific consequences for violations. Consider asking the vendor for clear steps.",
	}, rec.Reasons)
}

func TestSynthesize_SegmentAndVague(t *testing.T) {
	rec := Synthesize(&model.PolicyAnalysis{
		AppliesToAllRetailers: false,
		SegmentDescription:    strPtr("e-commerce only"),
		ConsequencesSpecific:  false,
	}, "")

	assert.Equal(t, model.ActionDiscuss, rec.Action)
	assert.Equal(t, []string{
		"Policy applies only to: e-commerce only",
		"Policy does not state specific consequences for violations. Consider asking the vendor for clear steps.",
	}, rec.Reasons)
}

func TestSynthesize_SegmentFalseWithoutDescription(t *testing.T) {
	// A narrow policy with no segment description still gets the vague
	// consequences caution, but no segment reason.
	rec := Synthesize(&model.PolicyAnalysis{
		AppliesToAllRetailers: false,
		ConsequencesSpecific:  false,
	}, "")

	assert.Equal(t, model.ActionDiscuss, rec.Action)
	assert.Equal(t, []string{
		"Policy does not state specific consequences for violations. Consider asking the vendor for clear steps.",
	}, rec.Reasons)
}
