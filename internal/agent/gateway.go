package agent

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/l3ad-solutions/intake/pkg/anthropic"
)

// Tier names a cost/quality level of model call. Stages pick a tier rather
// than a model so backing models can change without touching call sites.
type Tier string

const (
	// TierFast handles bulk extraction work.
	TierFast Tier = "fast"
	// TierBalanced handles prose synthesis.
	TierBalanced Tier = "balanced"
	// TierQuality handles strategic planning and final review.
	TierQuality Tier = "quality"
)

// fallbackOrder lists, per tier, which tiers are attempted and in what
// order. Only the quality tier degrades; it never falls through to fast.
var fallbackOrder = map[Tier][]Tier{
	TierFast:     {TierFast},
	TierBalanced: {TierBalanced},
	TierQuality:  {TierQuality, TierBalanced},
}

// Gateway routes model calls to the backing model for a tier. It holds no
// state between calls.
type Gateway struct {
	client anthropic.Client
	models map[Tier]string
}

// NewGateway creates a Gateway mapping the three tiers to concrete models.
func NewGateway(client anthropic.Client, fast, balanced, quality string) *Gateway {
	return &Gateway{
		client: client,
		models: map[Tier]string{
			TierFast:     fast,
			TierBalanced: balanced,
			TierQuality:  quality,
		},
	}
}

// Model returns the backing model ID for a tier.
func (g *Gateway) Model(tier Tier) string {
	return g.models[tier]
}

// Call invokes the tier's backing model once and returns the reply text.
// No retries at this layer.
func (g *Gateway) Call(ctx context.Context, tier Tier, maxTokens int64, prompt string) (string, error) {
	model := g.models[tier]

	resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", eris.Wrapf(err, "agent: call %s tier", tier)
	}

	resp.Usage.LogCost(model, string(tier))
	return resp.Text(), nil
}

// CallWithFallback walks the tier's fallback order, returning the first
// successful reply and the model that served it. Exactly one fallback
// attempt for the quality tier, none for the others.
func (g *Gateway) CallWithFallback(ctx context.Context, tier Tier, maxTokens int64, prompt string) (text, servedBy string, err error) {
	order, ok := fallbackOrder[tier]
	if !ok {
		return "", "", eris.Errorf("agent: unknown tier %q", tier)
	}

	for i, attempt := range order {
		text, err = g.Call(ctx, attempt, maxTokens, prompt)
		if err == nil {
			return text, g.models[attempt], nil
		}
		if i < len(order)-1 {
			zap.L().Warn("agent: tier failed, falling back",
				zap.String("tier", string(attempt)),
				zap.String("next", string(order[i+1])),
				zap.Error(err),
			)
		}
	}
	return "", "", err
}
