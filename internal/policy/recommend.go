package policy

import (
	"fmt"

	"github.com/sells-group/map-review/internal/model"
)

const vagueConsequencesCaution = "Policy does not state specific consequences for violations. Consider asking the vendor for clear steps."

// Synthesize combines a policy analysis (or the reason it is missing) into
// the final recommendation. Proceed requires both universal applicability
// and concrete consequences; anything less is a discussion point with the
// vendor. failureReason is used only when analysis is nil.
func Synthesize(analysis *model.PolicyAnalysis, failureReason string) model.Recommendation {
	rec := model.Recommendation{Action: model.ActionDiscuss}

	if analysis == nil {
		rec.Reasons = []string{failureReason}
		return rec
	}

	reasons := []string{}
	if !analysis.AppliesToAllRetailers && analysis.SegmentDescription != nil {
		reasons = append(reasons, fmt.Sprintf("Policy applies only to: %s", *analysis.SegmentDescription))
	}
	if !analysis.ConsequencesSpecific {
		reasons = append(reasons, vagueConsequencesCaution)
	}
	if analysis.ConsequencesSpecific && analysis.ConsequencesSummary != nil {
		reasons = append(reasons, fmt.Sprintf("Consequences: %s", *analysis.ConsequencesSummary))
	}
	if analysis.AppliesToAllRetailers && analysis.ConsequencesSpecific {
		rec.Action = model.ActionProceed
		if len(reasons) == 0 {
			reasons = append(reasons, "Policy applies to all retailers and has specific consequences.")
		}
	}

	rec.Reasons = reasons
	return rec
}
