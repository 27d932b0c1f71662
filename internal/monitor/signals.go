package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stocksense/internal/adapters/ai"
	"stocksense/internal/analysis"
	domain "stocksense/internal/domain/analysis"
	"stocksense/internal/domain/thesis"
	"stocksense/internal/metrics"
	"stocksense/pkg/errors"
	"stocksense/pkg/logger"
)

const extractorSystemPrompt = `You extract concrete, verifiable signals from stock analysis reports. A signal is a specific observation an investor could act on, never a vague mood. You always respond with a JSON array.`

// Extractor distills an analysis into discrete monitorable signals.
type Extractor struct {
	provider ai.ChatProvider
	model    string
	log      *logger.Logger
}

// NewExtractor creates a signal extractor.
func NewExtractor(provider ai.ChatProvider, model string) *Extractor {
	return &Extractor{
		provider: provider,
		model:    model,
		log:      logger.Get().With("component", "signal_extractor"),
	}
}

// ExtractSignals pulls 3-8 concrete signals out of an analysis result.
func (e *Extractor) ExtractSignals(ctx context.Context, result *domain.Result) ([]thesis.Signal, error) {
	prompt := buildExtractionContext(result)

	start := time.Now()
	resp, err := e.provider.Chat(ctx, ai.ChatRequest{
		Model:       e.model,
		Temperature: 0.2,
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: extractorSystemPrompt},
			{Role: ai.RoleUser, Content: prompt},
		},
	})
	var in, out int
	if resp != nil {
		in, out = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}
	metrics.RecordLLMCall("signal_extractor", e.model, time.Since(start), in, out, err)
	if err != nil {
		return nil, errors.Wrap(err, "signal extraction call failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.Wrap(errors.ErrExternal, "signal extraction returned no choices")
	}

	var signals []thesis.Signal
	if err := analysis.ExtractJSONArray(resp.Choices[0].Message.Content, &signals); err != nil {
		return nil, errors.Wrap(err, "parse extracted signals")
	}

	for i := range signals {
		if signals[i].Confidence < 0 {
			signals[i].Confidence = 0
		}
		if signals[i].Confidence > 1 {
			signals[i].Confidence = 1
		}
	}

	metrics.SignalsExtracted.WithLabelValues(result.Ticker).Observe(float64(len(signals)))
	e.log.Debugf("Extracted %d signals from analysis of %s", len(signals), result.Ticker)
	return signals, nil
}

func buildExtractionContext(result *domain.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "ANALYSIS OF %s\n\n", result.Ticker)
	if result.Summary != "" {
		fmt.Fprintf(&b, "Summary:\n%s\n", result.Summary)
	}

	if result.Sentiment != nil {
		if n := len(result.Sentiment.KeyThemes); n > 0 {
			if n > 5 {
				n = 5
			}
			b.WriteString("\nKey themes:\n")
			for _, t := range result.Sentiment.KeyThemes[:n] {
				fmt.Fprintf(&b, "- %s (%s): %s\n", t.Theme, t.SentimentDirection, t.Summary)
			}
		}
		if n := len(result.Sentiment.RisksIdentified); n > 0 {
			if n > 5 {
				n = 5
			}
			b.WriteString("\nRisks:\n")
			for _, r := range result.Sentiment.RisksIdentified[:n] {
				fmt.Fprintf(&b, "- %s\n", r)
			}
		}
	}

	if result.Skeptic != nil {
		if n := len(result.Skeptic.BearCases); n > 0 {
			if n > 3 {
				n = 3
			}
			b.WriteString("\nBear cases:\n")
			for _, bc := range result.Skeptic.BearCases[:n] {
				fmt.Fprintf(&b, "- [%s] %s (trigger: %s)\n", bc.Severity, bc.Argument, bc.Trigger)
			}
		}
		if n := len(result.Skeptic.HiddenRisks); n > 0 {
			if n > 3 {
				n = 3
			}
			b.WriteString("\nHidden risks:\n")
			for _, hr := range result.Skeptic.HiddenRisks[:n] {
				fmt.Fprintf(&b, "- %s\n", hr)
			}
		}
	}

	b.WriteString(`
Extract concrete, actionable signals from this analysis. Each signal is
a single specific observation, categorized as financial, operational,
market, competitive, or management, with the sentiment direction and
your confidence that the analysis actually supports it.

Respond with ONLY a JSON array, no other text. Extract 3-8 key signals:
[
  {
    "text": "the specific observation",
    "category": "financial|operational|market|competitive|management",
    "sentiment": "positive|negative|neutral",
    "confidence": 0.0-1.0
  }
]`)

	return b.String()
}
