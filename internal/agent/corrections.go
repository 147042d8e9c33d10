package agent

import "github.com/l3ad-solutions/intake/internal/model"

// applyCorrections merges the approval verdict into the draft. Pure
// function, no I/O.
//
// Field corrections apply only to the top-level scalar fields; question
// overrides are applied as remove-then-append, with remove indices
// referencing the draft's original question order so a later add can never
// shift which question a remove targets.
func applyCorrections(draft *model.BusinessAnalysis, approval *model.Approval) *model.BusinessAnalysis {
	result := *draft

	for _, c := range approval.Corrections {
		switch c.Field {
		case "business_name":
			result.BusinessName = c.Corrected
		case "business_type":
			result.BusinessType = c.Corrected
		case "location":
			result.Location = c.Corrected
		case "description":
			result.Description = c.Corrected
		case "tone":
			result.Tone = c.Corrected
		}
	}

	if len(approval.QuestionOverrides) > 0 {
		toRemove := make(map[int]bool)
		var toAdd []model.SuggestedQuestion

		for _, o := range approval.QuestionOverrides {
			if o.RemoveIndex != nil {
				toRemove[*o.RemoveIndex] = true
			}
			if o.Add != nil {
				toAdd = append(toAdd, *o.Add)
			}
		}

		kept := make([]model.SuggestedQuestion, 0, len(draft.SuggestedQuestions)+len(toAdd))
		for i, q := range draft.SuggestedQuestions {
			if !toRemove[i] {
				kept = append(kept, q)
			}
		}
		result.SuggestedQuestions = append(kept, toAdd...)
	}

	return &result
}
