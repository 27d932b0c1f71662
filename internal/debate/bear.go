package debate

import (
	"context"
	"strings"

	"stocksense/internal/adapters/ai"
	"stocksense/internal/analysis"
	domain "stocksense/internal/domain/analysis"
	"stocksense/internal/domain/debate"
)

// BearAnalyst argues the risk side of the debate.
type BearAnalyst struct {
	agent
}

// NewBearAnalyst creates the bear-side analyst.
func NewBearAnalyst(provider ai.ChatProvider, model string) *BearAnalyst {
	return &BearAnalyst{agent: newAgent(provider, model, BearConfig)}
}

// BuildCase drafts the opening bear case. A model failure yields a
// low-confidence placeholder case instead of an error.
func (b *BearAnalyst) BuildCase(ctx context.Context, ticker string, sentiment *domain.SentimentResult, headlines []string, fundamentals *domain.Fundamentals) *debate.BearCase {
	var prompt strings.Builder
	prompt.WriteString(b.buildDataSection(ticker, sentiment, headlines, fundamentals))
	prompt.WriteString(`
Build the strongest honest BEAR case from this data.

Respond with ONLY a JSON object in this exact format:
{
  "thesis": "2-3 sentence core argument",
  "risks": [
    {"description": "specific risk", "category": "financial|operational|market|competitive|regulatory", "severity": "High|Medium|Low", "probability": 0.0-1.0, "timeframe": "when"}
  ],
  "red_flags": ["specific warning signs in the data"],
  "key_metrics": {"metric_name": "value and why it matters"},
  "downside_reasoning": "the full downside argument",
  "confidence": 0.0-1.0,
  "what_would_make_bullish": ["evidence that would flip your view"],
  "key_claims": [
    {"statement": "specific factual claim", "evidence": "the data supporting it", "confidence": 0.0-1.0, "data_source": "fundamentals|sentiment|headlines"}
  ]
}`)

	content, err := b.chat(ctx, 0.4, prompt.String())
	if err != nil {
		b.log.Warnf("Bear case call failed for %s: %v", ticker, err)
		return fallbackBearCase(ticker, fundamentals)
	}

	var bearCase debate.BearCase
	if err := analysis.ExtractJSON(content, &bearCase); err != nil {
		b.log.Warnf("Failed to parse bear case for %s: %v", ticker, err)
		return fallbackBearCase(ticker, fundamentals)
	}

	bearCase.Ticker = ticker
	bearCase.Confidence = clamp01(bearCase.Confidence)
	for i := range bearCase.KeyClaims {
		bearCase.KeyClaims[i].Confidence = clamp01(bearCase.KeyClaims[i].Confidence)
	}
	return &bearCase
}

// Rebut attacks the bull's claims.
func (b *BearAnalyst) Rebut(ctx context.Context, ticker string, bullClaims []debate.Claim) ([]debate.Rebuttal, error) {
	return b.rebut(ctx, ticker, bullClaims)
}

func fallbackBearCase(ticker string, fundamentals *domain.Fundamentals) *debate.BearCase {
	return &debate.BearCase{
		Ticker:               ticker,
		Thesis:               "LLM unavailable - manual review required.",
		Risks:                []debate.Risk{},
		RedFlags:             []string{},
		KeyMetrics:           fallbackMetrics(fundamentals, BearConfig.FundamentalPriority),
		DownsideReasoning:    "LLM unavailable - manual review required.",
		Confidence:           0.3,
		WhatWouldMakeBullish: []string{},
		KeyClaims:            []debate.Claim{},
	}
}
