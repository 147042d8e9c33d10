package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/l3ad-solutions/intake/internal/model"
)

const extractMaxTokens = 1500

const extractPrompt = `Extract business data from these web pages following the senior strategist's plan. Return ONLY a JSON object, no markdown.

CLIENT: %s | TYPE: %s | LOCATION: %s

STRATEGIST'S EXTRACTION PLAN:
Focus on: %s
Specifically look for: %s
Key questions to answer: %s

PAGES:
%s

Return this exact JSON structure:
{
  "business_name": "actual name found",
  "business_type": "%s",
  "location": "city, state",
  "services": ["every service mentioned"],
  "description": "1-2 sentence summary",
  "tone": "2-3 word brand voice description",
  "branding_clues": ["colors, logos, visual elements found"],
  "review_highlights": ["quotes or themes from reviews"],
  "strengths": ["what they do well"],
  "raw_facts": ["every specific fact found - follow the strategist's look_for list above"],
  "data_gaps": ["things from the extraction plan we couldn't find"],
  "confidence": "low/medium/high based on how much content was available"
}

Follow the strategist's plan carefully. Extract EVERYTHING they asked for.`

// extract runs the fast tier against full page text, steered by the plan so
// the cheap pass targets what the strategist flagged without the expensive
// tier re-reading everything.
func (a *Analyzer) extract(ctx context.Context, clientName, location, pagesContext string, plan *model.ExtractionPlan) (*model.RawExtraction, error) {
	prompt := fmt.Sprintf(extractPrompt,
		clientName,
		plan.BusinessCategory,
		orUnknown(location),
		strings.Join(plan.ExtractionFocus, ", "),
		strings.Join(plan.LookFor, ", "),
		strings.Join(plan.KeyQuestions, ", "),
		pagesContext,
		plan.BusinessCategory,
	)

	text, err := a.gateway.Call(ctx, TierFast, extractMaxTokens, prompt)
	if err != nil {
		return nil, eris.Wrap(err, "agent: extract")
	}

	extraction, err := decodeObject[model.RawExtraction](text)
	if err != nil {
		return nil, eris.Wrap(err, "agent: extract")
	}
	return &extraction, nil
}

const followUpMaxTokens = 800

// followUpSentinel is the exact phrase the follow-up prompt instructs the
// model to emit when nothing new was found. Matched by substring; replies
// containing it are discarded and not counted as a pipeline stage.
const followUpSentinel = "No additional data found"

const followUpPrompt = `The senior strategist reviewed your extraction and found gaps. Re-read the pages and dig deeper.

STRATEGIST'S INSTRUCTIONS: %s

WHAT YOU ALREADY FOUND:
%s

ORIGINAL PAGES (re-read carefully):
%s

Look for: specific numbers, names, certifications, neighborhoods, pricing indicators, years of experience, team mentions, specialties buried in text.

Return a plain text summary of additional findings. If nothing new, say "No additional data found."`

// followUp re-reads the source pages with targeted instructions. Returns
// prose, not JSON; synthesis consumes it as supplementary context.
func (a *Analyzer) followUp(ctx context.Context, instructions, pagesContext string, extraction *model.RawExtraction) (string, error) {
	found := jsonBlock(map[string]any{
		"services":  extraction.Services,
		"strengths": extraction.Strengths,
		"raw_facts": extraction.RawFacts,
	})

	prompt := fmt.Sprintf(followUpPrompt, instructions, found, pagesContext)

	text, err := a.gateway.Call(ctx, TierFast, followUpMaxTokens, prompt)
	if err != nil {
		return "", eris.Wrap(err, "agent: follow up")
	}
	return text, nil
}

// jsonBlock renders a value as indented JSON for prompt embedding.
func jsonBlock(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
