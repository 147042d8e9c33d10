package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/l3ad-solutions/intake/internal/model"
)

const (
	// planningPreview caps per-page text in the planning prompt, since
	// planning runs on the most expensive tier.
	planningPreview = 2000

	// discoveredLinkCap bounds how many discovered links the URL-first flow
	// fetches alongside the source page.
	discoveredLinkCap = 5

	// maxFetchConcurrency limits simultaneous page fetches per run.
	maxFetchConcurrency = 5
)

// ErrNoURLs indicates the known-identity entry point was called without any
// URLs. A caller-input error, not a pipeline failure.
var ErrNoURLs = eris.New("agent: no urls to analyze")

// Analyzer runs the four-stage analysis pipeline: plan, extract (with a
// conditional follow-up), synthesize, approve. Stateless between runs.
type Analyzer struct {
	gateway *Gateway
	fetcher *Fetcher
}

// NewAnalyzer creates an Analyzer from its two collaborators.
func NewAnalyzer(gateway *Gateway, fetcher *Fetcher) *Analyzer {
	return &Analyzer{gateway: gateway, fetcher: fetcher}
}

// AnalyzeBusinessLinks analyzes a business whose identity the caller
// already knows, from its list of social/profile URLs.
func (a *Analyzer) AnalyzeBusinessLinks(ctx context.Context, clientName, businessType, location string, urls []model.SocialLink) (*model.BusinessAnalysis, error) {
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}

	pages := a.fetchPages(ctx, urls)

	resolve := func(ctx context.Context, pagesSummary string) (*model.ExtractionPlan, string, string, string, error) {
		plan, servedBy, err := a.draftPlan(ctx, clientName, businessType, location, pagesSummary)
		if err != nil {
			return nil, "", "", "", err
		}
		return plan, clientName, location, servedBy, nil
	}

	return a.run(ctx, pages, nil, resolve)
}

// AnalyzeFromURL analyzes a business starting from a single source URL,
// discovering its identity and related profile links along the way.
func (a *Analyzer) AnalyzeFromURL(ctx context.Context, sourceURL, notes string) (*model.BusinessAnalysis, error) {
	source := a.fetcher.FetchPage(ctx, sourceURL)
	discovered := source.DiscoveredLinks

	linksToFetch := discovered
	if len(linksToFetch) > discoveredLinkCap {
		linksToFetch = linksToFetch[:discoveredLinkCap]
	}

	pages := make([]model.Page, 0, len(linksToFetch)+1)
	pages = append(pages, model.Page{Platform: "Website", URL: sourceURL, Content: source.Content})
	pages = append(pages, a.fetchPages(ctx, linksToFetch)...)

	resolve := func(ctx context.Context, pagesSummary string) (*model.ExtractionPlan, string, string, string, error) {
		plan, servedBy, err := a.draftPlanFromURL(ctx, sourceURL, notes, pagesSummary, discovered)
		if err != nil {
			return nil, "", "", "", err
		}
		name := plan.DiscoveredName
		if name == "" {
			name = nameFromDomain(sourceURL)
		}
		return &plan.ExtractionPlan, name, plan.DiscoveredLocation, servedBy, nil
	}

	return a.run(ctx, pages, discovered, resolve)
}

// identityResolver produces the extraction plan and resolved business
// identity for a run. The known-identity flow passes identity through; the
// URL-first flow discovers it during planning.
type identityResolver func(ctx context.Context, pagesSummary string) (plan *model.ExtractionPlan, name, location, servedBy string, err error)

// run drives the shared stage sequence. Any stage failure after planning
// discards the whole run; no partial analysis is ever returned.
func (a *Analyzer) run(ctx context.Context, pages []model.Page, discovered []model.SocialLink, resolve identityResolver) (*model.BusinessAnalysis, error) {
	pagesContext := buildPagesContext(pages)
	pagesSummary := buildPagesSummary(pages)
	pagesWithContent := countPagesWithContent(pages)

	var modelsUsed []string

	plan, clientName, location, planModel, err := resolve(ctx, pagesSummary)
	if err != nil {
		return nil, err
	}
	modelsUsed = append(modelsUsed, planModel)

	zap.L().Info("agent: plan drafted",
		zap.String("client", clientName),
		zap.String("category", plan.BusinessCategory),
		zap.Int("pages_fetched", len(pages)),
		zap.Int("pages_with_content", pagesWithContent),
	)

	extraction, err := a.extract(ctx, clientName, location, pagesContext, plan)
	if err != nil {
		return nil, err
	}
	modelsUsed = append(modelsUsed, a.gateway.Model(TierFast))

	followUpData := ""
	if extraction.Confidence == model.ConfidenceLow && pagesWithContent > 0 && len(extraction.DataGaps) > 0 {
		instructions := fmt.Sprintf("Fill these gaps: %s. %s",
			strings.Join(extraction.DataGaps, ", "),
			strings.Join(headN(plan.ExtractionFocus, 3), ", "),
		)
		reply, err := a.followUp(ctx, instructions, pagesContext, extraction)
		if err != nil {
			return nil, err
		}
		if !strings.Contains(reply, followUpSentinel) {
			followUpData = reply
			modelsUsed = append(modelsUsed, a.gateway.Model(TierFast))
		}
	}

	draft, err := a.synthesize(ctx, clientName, location, extraction, plan, followUpData)
	if err != nil {
		return nil, err
	}
	modelsUsed = append(modelsUsed, a.gateway.Model(TierBalanced))

	approval, approveModel, err := a.approve(ctx, clientName, plan, extraction, draft)
	if err != nil {
		return nil, err
	}
	modelsUsed = append(modelsUsed, approveModel)

	analysis := applyCorrections(draft, approval)
	analysis.DiscoveredSocialURLs = discovered
	analysis.Meta = model.AnalysisMeta{
		ModelsUsed:        modelsUsed,
		PagesFetched:      len(pages),
		PagesWithContent:  pagesWithContent,
		FollowUpPerformed: followUpData != "",
		QualityScore:      approval.QualityScore,
		Approved:          approval.Approved,
		ApprovalNotes:     approval.Notes,
	}

	zap.L().Info("agent: analysis complete",
		zap.String("client", analysis.BusinessName),
		zap.Strings("models_used", modelsUsed),
		zap.String("quality_score", string(approval.QualityScore)),
		zap.Bool("approved", approval.Approved),
		zap.Bool("follow_up", followUpData != ""),
	)

	return analysis, nil
}

// fetchPages fetches all URLs concurrently. Each fetch owns a fixed result
// slot so page order matches input order regardless of completion order.
func (a *Analyzer) fetchPages(ctx context.Context, links []model.SocialLink) []model.Page {
	pages := make([]model.Page, len(links))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxFetchConcurrency)

	for i, link := range links {
		g.Go(func() error {
			res := a.fetcher.FetchPage(gCtx, link.URL)
			pages[i] = model.Page{Platform: link.Platform, URL: link.URL, Content: res.Content}
			return nil
		})
	}

	_ = g.Wait()
	return pages
}

// buildPagesContext renders full page text for the extraction prompt.
func buildPagesContext(pages []model.Page) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = fmt.Sprintf("--- %s (%s) ---\n%s", p.Platform, p.URL, p.Content)
	}
	return strings.Join(parts, "\n\n")
}

// buildPagesSummary renders preview-length page text for the planning prompt.
func buildPagesSummary(pages []model.Page) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = fmt.Sprintf("--- %s ---\n%s", p.Platform, truncate(p.Content, planningPreview))
	}
	return strings.Join(parts, "\n\n")
}

func countPagesWithContent(pages []model.Page) int {
	n := 0
	for _, p := range pages {
		if HasContent(p.Content) {
			n++
		}
	}
	return n
}

func headN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
