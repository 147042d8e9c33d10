package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/l3ad-solutions/intake/internal/model"
)

const approveMaxTokens = 1500

const approvePrompt = `You are the senior strategist at L3ad Solutions doing final quality control. Your team extracted data and generated a client analysis. Before this goes to the agency owner, YOU must approve it.

CLIENT: %s (%s)

YOUR ORIGINAL STRATEGY:
%s
Key questions you wanted answered: %s

RAW FACTS AVAILABLE:
%s

PROPOSED ANALYSIS TO SHOW THE OWNER:
%s

Review critically and return ONLY a JSON object:
{
  "approved": true/false,
  "quality_score": "poor/fair/good/excellent",
  "corrections": [
    {"field": "which field", "current": "what it says now", "corrected": "what it should say"}
  ],
  "question_overrides": [
    {"remove_index": 0, "add": null},
    {"remove_index": null, "add": {"section": "services", "question": "better question", "why": "reason"}}
  ],
  "notes": "Brief notes for the agency owner about what we found, data quality, and anything they should ask the client directly. Be honest about gaps."
}

APPROVAL CRITERIA:
- Business name, type, and location are accurate
- Description honestly represents the business (no hallucinated claims)
- Services listed are actually confirmed in the source data
- Questions are specific and useful (not generic)
- Prefill data is accurate - wrong prefill is worse than no prefill
- The analysis is good enough that the owner can confidently preview it

Be strict. If something is wrong, correct it. If a question is generic garbage, remove it and add a better one. If the data is thin but honest, approve it with notes. Only reject if the analysis is misleading.`

// approve reviews the draft against raw facts rather than the polished
// description, so a hallucinated claim cannot vouch for itself. Runs on the
// quality tier with fallback.
func (a *Analyzer) approve(ctx context.Context, clientName string, plan *model.ExtractionPlan, extraction *model.RawExtraction, draft *model.BusinessAnalysis) (*model.Approval, string, error) {
	proposed := jsonBlock(map[string]any{
		"business_name":       draft.BusinessName,
		"business_type":       draft.BusinessType,
		"location":            draft.Location,
		"description":         draft.Description,
		"services":            draft.Services,
		"tone":                draft.Tone,
		"strengths":           draft.Strengths,
		"suggested_questions": draft.SuggestedQuestions,
		"prefill":             draft.Prefill,
	})

	prompt := fmt.Sprintf(approvePrompt,
		clientName,
		plan.BusinessCategory,
		plan.StrategyNotes,
		strings.Join(plan.KeyQuestions, "; "),
		jsonBlock(extraction.RawFacts),
		proposed,
	)

	text, servedBy, err := a.gateway.CallWithFallback(ctx, TierQuality, approveMaxTokens, prompt)
	if err != nil {
		return nil, "", eris.Wrap(err, "agent: approve")
	}

	approval, err := decodeObject[model.Approval](text)
	if err != nil {
		return nil, "", eris.Wrap(err, "agent: approve")
	}
	return &approval, servedBy, nil
}
