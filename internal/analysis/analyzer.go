package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stocksense/internal/adapters/ai"
	"stocksense/internal/adapters/config"
	"stocksense/internal/domain/analysis"
	"stocksense/internal/metrics"
	"stocksense/pkg/errors"
	"stocksense/pkg/logger"
)

const sentimentSystemPrompt = `You are a financial sentiment analyst. You classify news headlines about a stock and produce a structured, evidence-based sentiment assessment. You are precise, you never invent facts, and you always respond with a single JSON object.`

// Analyzer classifies headline sentiment for a ticker.
type Analyzer struct {
	provider    ai.ChatProvider
	model       string
	temperature float64
	log         *logger.Logger
}

// NewAnalyzer creates a sentiment analyzer backed by the given provider.
func NewAnalyzer(provider ai.ChatProvider, cfg config.AIConfig) *Analyzer {
	return &Analyzer{
		provider:    provider,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		log:         logger.Get().With("component", "sentiment_analyzer"),
	}
}

// AnalyzeSentiment classifies each headline and aggregates the result.
// With zero headlines no model call is made and an insufficient data
// result is returned immediately.
func (a *Analyzer) AnalyzeSentiment(ctx context.Context, ticker string, headlines []string) (*analysis.SentimentResult, error) {
	if len(headlines) == 0 {
		return &analysis.SentimentResult{
			OverallSentiment:    analysis.SentimentInsufficientData,
			OverallConfidence:   0.0,
			ConfidenceReasoning: "No headlines provided for analysis",
			HeadlineAnalyses:    []analysis.HeadlineSentiment{},
			KeyThemes:           []analysis.KeyTheme{},
			PotentialImpact:     analysis.ImpactUncertain,
			RisksIdentified:     []string{},
			InformationGaps:     []string{"No news headlines available for " + ticker},
		}, nil
	}

	prompt := a.buildPrompt(ticker, headlines)

	start := time.Now()
	resp, err := a.provider.Chat(ctx, ai.ChatRequest{
		Model:       a.model,
		Temperature: a.temperature,
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: sentimentSystemPrompt},
			{Role: ai.RoleUser, Content: prompt},
		},
	})
	metrics.RecordLLMCall("sentiment", a.model, time.Since(start), usageIn(resp), usageOut(resp), err)
	if err != nil {
		return nil, errors.Wrap(err, "sentiment analysis call failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.Wrap(errors.ErrExternal, "sentiment analysis returned no choices")
	}

	var result analysis.SentimentResult
	if err := ExtractJSON(resp.Choices[0].Message.Content, &result); err != nil {
		a.log.Warnf("Failed to parse sentiment response for %s: %v", ticker, err)
		return &analysis.SentimentResult{
			OverallSentiment:    analysis.SentimentNeutral,
			OverallConfidence:   0.0,
			ConfidenceReasoning: "Could not parse sentiment analysis response",
			HeadlineAnalyses:    []analysis.HeadlineSentiment{},
			KeyThemes:           []analysis.KeyTheme{},
			PotentialImpact:     analysis.ImpactUncertain,
			RisksIdentified:     []string{},
			InformationGaps:     []string{"Model output was not valid JSON"},
		}, nil
	}

	reconcileCounts(&result)

	a.log.Debugf("Sentiment for %s: %s (%.2f) across %d headlines",
		ticker, result.OverallSentiment, result.OverallConfidence, len(headlines))
	return &result, nil
}

func (a *Analyzer) buildPrompt(ticker string, headlines []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analyze the sentiment of these news headlines about %s:\n\n", ticker)
	for i, h := range headlines {
		fmt.Fprintf(&b, "%d. %s\n", i+1, h)
	}

	b.WriteString(`
Classify each headline as Bullish, Bearish, Neutral, or Insufficient Data,
then aggregate into an overall view.

Respond with ONLY a JSON object in this exact format:
{
  "overall_sentiment": "Bullish|Bearish|Neutral|Insufficient Data",
  "overall_confidence": 0.0-1.0,
  "confidence_reasoning": "why this confidence level",
  "bullish_count": 0,
  "bearish_count": 0,
  "neutral_count": 0,
  "insufficient_data_count": 0,
  "headline_analyses": [
    {
      "headline": "the headline text",
      "sentiment": "Bullish|Bearish|Neutral|Insufficient Data",
      "confidence": 0.0-1.0,
      "reasoning": "one sentence",
      "key_entities": ["entities mentioned"]
    }
  ],
  "key_themes": [
    {
      "theme": "theme name",
      "sentiment_direction": "positive|negative|mixed",
      "headline_count": 0,
      "summary": "one sentence"
    }
  ],
  "potential_impact": "Strong Positive|Moderate Positive|Minimal|Moderate Negative|Strong Negative|Uncertain",
  "risks_identified": ["specific risks from the headlines"],
  "information_gaps": ["what the headlines do not tell us"]
}

Counts must match the headline_analyses entries. Base every judgment only
on the headlines above.`)

	return b.String()
}

// reconcileCounts recomputes the per-class counts from the headline
// analyses when the model left them at zero.
func reconcileCounts(r *analysis.SentimentResult) {
	if len(r.HeadlineAnalyses) == 0 {
		return
	}
	if r.BullishCount+r.BearishCount+r.NeutralCount+r.InsufficientDataCount > 0 {
		return
	}
	for _, h := range r.HeadlineAnalyses {
		switch h.Sentiment {
		case analysis.SentimentBullish:
			r.BullishCount++
		case analysis.SentimentBearish:
			r.BearishCount++
		case analysis.SentimentInsufficientData:
			r.InsufficientDataCount++
		default:
			r.NeutralCount++
		}
	}
}

// FormatReport renders a sentiment result as a human-readable report.
func FormatReport(ticker string, r *analysis.SentimentResult) string {
	if r == nil {
		return fmt.Sprintf("No sentiment analysis available for %s.", ticker)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Sentiment Report for %s\n", ticker)
	fmt.Fprintf(&b, "Overall: %s (confidence %.2f)\n", r.OverallSentiment, r.OverallConfidence)
	fmt.Fprintf(&b, "Breakdown: %d bullish, %d bearish, %d neutral, %d insufficient data\n",
		r.BullishCount, r.BearishCount, r.NeutralCount, r.InsufficientDataCount)
	fmt.Fprintf(&b, "Potential impact: %s\n", r.PotentialImpact)

	if len(r.KeyThemes) > 0 {
		b.WriteString("Key themes:\n")
		for _, t := range r.KeyThemes {
			fmt.Fprintf(&b, "  - %s (%s, %d headlines): %s\n", t.Theme, t.SentimentDirection, t.HeadlineCount, t.Summary)
		}
	}
	if len(r.RisksIdentified) > 0 {
		b.WriteString("Risks identified:\n")
		for _, risk := range r.RisksIdentified {
			fmt.Fprintf(&b, "  - %s\n", risk)
		}
	}
	if r.ConfidenceReasoning != "" {
		fmt.Fprintf(&b, "Confidence reasoning: %s\n", r.ConfidenceReasoning)
	}

	return b.String()
}

func usageIn(resp *ai.ChatResponse) int {
	if resp == nil {
		return 0
	}
	return resp.Usage.PromptTokens
}

func usageOut(resp *ai.ChatResponse) int {
	if resp == nil {
		return 0
	}
	return resp.Usage.CompletionTokens
}
