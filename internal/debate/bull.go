package debate

import (
	"context"
	"strings"

	"stocksense/internal/adapters/ai"
	"stocksense/internal/analysis"
	domain "stocksense/internal/domain/analysis"
	"stocksense/internal/domain/debate"
)

// BullAnalyst argues the growth side of the debate.
type BullAnalyst struct {
	agent
}

// NewBullAnalyst creates the bull-side analyst.
func NewBullAnalyst(provider ai.ChatProvider, model string) *BullAnalyst {
	return &BullAnalyst{agent: newAgent(provider, model, BullConfig)}
}

// BuildCase drafts the opening bull case. A model failure yields a
// low-confidence placeholder case instead of an error so the debate can
// still reach a verdict.
func (b *BullAnalyst) BuildCase(ctx context.Context, ticker string, sentiment *domain.SentimentResult, headlines []string, fundamentals *domain.Fundamentals) *debate.BullCase {
	var prompt strings.Builder
	prompt.WriteString(b.buildDataSection(ticker, sentiment, headlines, fundamentals))
	prompt.WriteString(`
Build the strongest honest BULL case from this data.

Respond with ONLY a JSON object in this exact format:
{
  "thesis": "2-3 sentence core argument",
  "catalysts": [
    {"description": "specific catalyst", "timeframe": "when", "probability": 0.0-1.0, "potential_impact": "expected effect"}
  ],
  "key_metrics": {"metric_name": "value and why it matters"},
  "upside_reasoning": "the full upside argument",
  "confidence": 0.0-1.0,
  "weaknesses": ["honest weaknesses in this case"],
  "key_claims": [
    {"statement": "specific factual claim", "evidence": "the data supporting it", "confidence": 0.0-1.0, "data_source": "fundamentals|sentiment|headlines"}
  ]
}`)

	content, err := b.chat(ctx, 0.4, prompt.String())
	if err != nil {
		b.log.Warnf("Bull case call failed for %s: %v", ticker, err)
		return fallbackBullCase(ticker, fundamentals)
	}

	var bullCase debate.BullCase
	if err := analysis.ExtractJSON(content, &bullCase); err != nil {
		b.log.Warnf("Failed to parse bull case for %s: %v", ticker, err)
		return fallbackBullCase(ticker, fundamentals)
	}

	bullCase.Ticker = ticker
	bullCase.Confidence = clamp01(bullCase.Confidence)
	for i := range bullCase.KeyClaims {
		bullCase.KeyClaims[i].Confidence = clamp01(bullCase.KeyClaims[i].Confidence)
	}
	return &bullCase
}

// Rebut attacks the bear's claims.
func (b *BullAnalyst) Rebut(ctx context.Context, ticker string, bearClaims []debate.Claim) ([]debate.Rebuttal, error) {
	return b.rebut(ctx, ticker, bearClaims)
}

func fallbackBullCase(ticker string, fundamentals *domain.Fundamentals) *debate.BullCase {
	return &debate.BullCase{
		Ticker:          ticker,
		Thesis:          "LLM unavailable - manual review required.",
		Catalysts:       []debate.Catalyst{},
		KeyMetrics:      fallbackMetrics(fundamentals, BullConfig.FundamentalPriority),
		UpsideReasoning: "LLM unavailable - manual review required.",
		Confidence:      0.3,
		Weaknesses:      []string{"generated without model assistance"},
		KeyClaims:       []debate.Claim{},
	}
}
