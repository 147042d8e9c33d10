package agent

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/l3ad-solutions/intake/internal/model"
)

const planMaxTokens = 1000

const planPrompt = `You are the senior strategist at L3ad Solutions, a web design agency. A new client just came in and your team scraped their online presence. Before the junior analysts extract data, YOU need to tell them exactly what to look for.

CLIENT: %s
TYPE: %s
LOCATION: %s

PAGE CONTENT PREVIEW (first 2000 chars of each page):
%s

Based on what you can see, draft an extraction strategy. Return ONLY a JSON object:
{
  "business_category": "specific business category (e.g. 'residential screen enclosure contractor', not just 'contractor')",
  "extraction_focus": ["the 5-8 most important things to extract for THIS type of business - be specific to the industry"],
  "key_questions": ["3-5 questions we MUST answer from the data to build a good website for them"],
  "look_for": ["specific details to hunt for: certifications, service area boundaries, pricing signals, team info, years in business, materials used, etc."],
  "red_flags": ["things that seem off, inconsistent, or need verification"],
  "strategy_notes": "2-3 sentences about how to position this business on their website: what angle to take, what to emphasize, what makes them compelling in their market"
}

Think like a strategist, not a data entry clerk. What matters for building THIS client a website that actually gets them customers?`

// draftPlan asks the quality tier for an extraction strategy when the
// business identity is already known. The preview-only page text keeps the
// expensive tier's input small.
func (a *Analyzer) draftPlan(ctx context.Context, clientName, businessType, location, pagesSummary string) (*model.ExtractionPlan, string, error) {
	prompt := fmt.Sprintf(planPrompt, clientName, orUnknown(businessType), orUnknown(location), pagesSummary)

	text, servedBy, err := a.gateway.CallWithFallback(ctx, TierQuality, planMaxTokens, prompt)
	if err != nil {
		return nil, "", eris.Wrap(err, "agent: draft plan")
	}

	plan, err := decodeObject[model.ExtractionPlan](text)
	if err != nil {
		return nil, "", eris.Wrap(err, "agent: draft plan")
	}
	return &plan, servedBy, nil
}

const planFromURLMaxTokens = 1200

const planFromURLPrompt = `You are the senior strategist at L3ad Solutions, a web design agency. A potential client's website URL was just submitted. Your job is to:
1. IDENTIFY the business (name, location, type) from the page content
2. Draft an extraction strategy for the team

SOURCE URL: %s
%s
%s

PAGE CONTENT PREVIEW (first 2000 chars of each page):
%s

Return ONLY a JSON object:
{
  "discovered_name": "the actual business name found on the website",
  "discovered_location": "city, state - best guess from content, addresses, service areas, phone area codes",
  "business_category": "specific business category (e.g. 'residential screen enclosure contractor', not just 'contractor')",
  "extraction_focus": ["the 5-8 most important things to extract for THIS type of business"],
  "key_questions": ["3-5 questions we MUST answer from the data"],
  "look_for": ["specific details to hunt for: certifications, service area, pricing signals, team info, years in business, etc."],
  "red_flags": ["things that seem off, inconsistent, or need verification"],
  "strategy_notes": "2-3 sentences about how to position this business"
}

IMPORTANT: discovered_name should be the ACTUAL business name as it appears on the site (not a domain slug). If you can't find a clear name, use a cleaned-up version of the domain.
discovered_location should be their primary location. Look for addresses, "serving X area", phone area codes, Google Maps embeds, etc.`

// draftPlanFromURL asks the quality tier to resolve the business identity
// from page content before drafting the extraction strategy.
func (a *Analyzer) draftPlanFromURL(ctx context.Context, sourceURL, notes, pagesSummary string, links []model.SocialLink) (*model.ExtractionPlanFromURL, string, error) {
	notesText := ""
	if notes != "" {
		notesText = "ADMIN NOTES: " + notes
	}

	linksText := "No social/business links discovered on the website."
	if len(links) > 0 {
		var b strings.Builder
		b.WriteString("DISCOVERED LINKS FROM WEBSITE:")
		for _, l := range links {
			b.WriteString(fmt.Sprintf("\n- %s: %s", l.Platform, l.URL))
		}
		linksText = b.String()
	}

	prompt := fmt.Sprintf(planFromURLPrompt, sourceURL, notesText, linksText, pagesSummary)

	text, servedBy, err := a.gateway.CallWithFallback(ctx, TierQuality, planFromURLMaxTokens, prompt)
	if err != nil {
		return nil, "", eris.Wrap(err, "agent: draft plan from url")
	}

	plan, err := decodeObject[model.ExtractionPlanFromURL](text)
	if err != nil {
		return nil, "", eris.Wrap(err, "agent: draft plan from url")
	}
	return &plan, servedBy, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

var titleCaser = cases.Title(language.English)

// nameFromDomain derives a presentable business name from a URL's hostname,
// used when identity resolution finds no name on the page. "acme-plumbing.com"
// becomes "Acme Plumbing".
func nameFromDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "Unknown Business"
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	host = strings.NewReplacer("-", " ", "_", " ").Replace(host)
	host = strings.TrimSpace(host)
	if host == "" {
		return "Unknown Business"
	}
	return titleCaser.String(host)
}
