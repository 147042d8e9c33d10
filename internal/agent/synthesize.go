package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/l3ad-solutions/intake/internal/model"
)

const synthesizeMaxTokens = 2500

const synthesizePrompt = `Generate the final client analysis for L3ad Solutions. The senior strategist has already reviewed the raw data and provided strategic direction. Return ONLY a JSON object, no markdown.

CLIENT: %s | TYPE: %s | LOCATION: %s

STRATEGIST'S POSITIONING NOTES:
%s

RED FLAGS TO ADDRESS:
%s

RAW EXTRACTION:
%s
%s
Return this exact JSON:
{
  "business_name": "%s",
  "business_type": "%s",
  "location": "%s",
  "services": %s,
  "description": "refined 1-2 sentence description incorporating the strategist's positioning",
  "tone": "%s",
  "branding_clues": %s,
  "review_highlights": %s,
  "strengths": %s,
  "suggested_questions": [
    {
      "section": "your_story|services|your_customers|your_brand|content_media|website_features|goals",
      "question": "conversational question specific to THIS business",
      "why": "why this matters for their website"
    }
  ],
  "prefill": {
    "your_story": {
      "differentiator": "what sets them apart based on real evidence"
    },
    "services": {
      "main_services": ["confirmed services"],
      "specialty": "their primary focus if clear",
      "service_area": "specific area they serve"
    },
    "your_customers": {
      "ideal_customer": "who they serve",
      "how_they_find_you": ["channels they use"]
    },
    "content_media": {
      "has_existing_website": true,
      "existing_website_url": "their current site URL if found"
    },
    "goals": {
      "competitor_url": "a competitor URL if found in the data"
    }
  }
}

RULES FOR QUESTIONS:
- Generate 5-8 questions across different sections
- Use the strategist's key questions as starting points: %s
- Questions must be conversational ("Tell us about..." not "Describe your...")
- Questions must be SPECIFIC to their business - reference their actual services, location, or industry
- Include questions that probe the data gaps: %s
- Include at least one "your_brand" question about visual preferences (e.g. dark vs light website, what vibe they want)
- Each question should help build a website that gets them more customers

RULES FOR PREFILL:
- Only prefill fields you are CONFIDENT about from the source data
- For content_media.has_existing_website, set true only if you found an actual website URL
- For goals.competitor_url, only include if a competitor was explicitly mentioned
- Wrong prefill is worse than no prefill - when in doubt, leave it out`

// synthesize turns the raw extraction and strategy notes into the polished
// analysis on the balanced tier. The orchestrator attaches metadata and
// discovered links afterward.
func (a *Analyzer) synthesize(ctx context.Context, clientName, location string, extraction *model.RawExtraction, plan *model.ExtractionPlan, followUpData string) (*model.BusinessAnalysis, error) {
	if location == "" {
		location = extraction.Location
	}

	redFlags := "None identified"
	if len(plan.RedFlags) > 0 {
		redFlags = strings.Join(plan.RedFlags, ", ")
	}

	followUpText := ""
	if followUpData != "" {
		followUpText = "\nADDITIONAL DATA FROM FOLLOW-UP:\n" + followUpData + "\n"
	}

	prompt := fmt.Sprintf(synthesizePrompt,
		clientName,
		plan.BusinessCategory,
		location,
		plan.StrategyNotes,
		redFlags,
		jsonBlock(extraction),
		followUpText,
		extraction.BusinessName,
		plan.BusinessCategory,
		extraction.Location,
		jsonInline(extraction.Services),
		extraction.Tone,
		jsonInline(extraction.BrandingClues),
		jsonInline(extraction.ReviewHighlights),
		jsonInline(extraction.Strengths),
		strings.Join(plan.KeyQuestions, "; "),
		strings.Join(extraction.DataGaps, ", "),
	)

	text, err := a.gateway.Call(ctx, TierBalanced, synthesizeMaxTokens, prompt)
	if err != nil {
		return nil, eris.Wrap(err, "agent: synthesize")
	}

	draft, err := decodeObject[model.BusinessAnalysis](text)
	if err != nil {
		return nil, eris.Wrap(err, "agent: synthesize")
	}
	return &draft, nil
}

// jsonInline renders a value as compact JSON for prompt embedding.
func jsonInline(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}
