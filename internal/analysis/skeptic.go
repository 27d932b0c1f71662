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

const skepticSystemPrompt = `You are a SKEPTIC ANALYST. Your job is to challenge the primary sentiment analysis, not to agree with it.

YOUR MANDATE:
1. Question every assumption the primary analysis makes
2. Find alternative explanations for the same headlines
3. Identify risks the primary analysis missed or downplayed
4. Construct concrete bear cases with specific triggers
5. State what evidence would change your mind

You are not contrarian for its own sake. Where the primary analysis is well supported, say so, but never without reservations you can name.`

// Skeptic produces a contrarian critique of a sentiment analysis.
type Skeptic struct {
	provider ai.ChatProvider
	model    string
	log      *logger.Logger
}

// NewSkeptic creates a skeptic backed by the given provider.
func NewSkeptic(provider ai.ChatProvider, cfg config.AIConfig) *Skeptic {
	return &Skeptic{
		provider: provider,
		model:    cfg.Model,
		log:      logger.Get().With("component", "skeptic"),
	}
}

// Critique challenges the primary sentiment analysis. With no headlines
// there is nothing to dispute and a neutral agreement is returned
// without a model call.
func (s *Skeptic) Critique(ctx context.Context, ticker string, headlines []string, sentiment *analysis.SentimentResult) (*analysis.SkepticResult, error) {
	if len(headlines) == 0 || sentiment == nil {
		result := &analysis.SkepticResult{
			SkepticSentiment:    analysis.SkepticAgreeWithReservations,
			PrimaryDisagreement: "No headlines available to critique",
			Critiques:           []analysis.SkepticCritique{},
			BearCases:           []analysis.SkepticBearCase{},
			WouldChangeMind:     []string{},
			HiddenRisks:         []string{},
			SkepticConfidence:   0.0,
		}
		result.Report = formatSkepticReport(ticker, result)
		return result, nil
	}

	prompt := s.buildPrompt(ticker, headlines, sentiment)

	start := time.Now()
	resp, err := s.provider.Chat(ctx, ai.ChatRequest{
		Model:       s.model,
		Temperature: 0.3,
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: skepticSystemPrompt},
			{Role: ai.RoleUser, Content: prompt},
		},
	})
	metrics.RecordLLMCall("skeptic", s.model, time.Since(start), usageIn(resp), usageOut(resp), err)
	if err != nil {
		return nil, errors.Wrap(err, "skeptic critique call failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.Wrap(errors.ErrExternal, "skeptic critique returned no choices")
	}

	var result analysis.SkepticResult
	if err := ExtractJSON(resp.Choices[0].Message.Content, &result); err != nil {
		s.log.Warnf("Failed to parse skeptic response for %s: %v", ticker, err)
		result = analysis.SkepticResult{
			SkepticSentiment:    analysis.SkepticAgreeWithReservations,
			PrimaryDisagreement: "Skeptic output could not be parsed",
			Critiques:           []analysis.SkepticCritique{},
			BearCases:           []analysis.SkepticBearCase{},
			WouldChangeMind:     []string{},
			HiddenRisks:         []string{"WARNING: skeptic critique unavailable, primary analysis is uncontested"},
			SkepticConfidence:   0.0,
		}
	}

	result.Report = formatSkepticReport(ticker, &result)
	return &result, nil
}

func (s *Skeptic) buildPrompt(ticker string, headlines []string, sentiment *analysis.SentimentResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "PRIMARY ANALYSIS FOR %s:\n", ticker)
	fmt.Fprintf(&b, "Overall sentiment: %s (confidence %.2f)\n", sentiment.OverallSentiment, sentiment.OverallConfidence)
	fmt.Fprintf(&b, "Reasoning: %s\n", sentiment.ConfidenceReasoning)
	if len(sentiment.KeyThemes) > 0 {
		b.WriteString("Key themes:\n")
		for _, t := range sentiment.KeyThemes {
			fmt.Fprintf(&b, "  - %s (%s): %s\n", t.Theme, t.SentimentDirection, t.Summary)
		}
	}

	b.WriteString("\nHEADLINES:\n")
	for i, h := range headlines {
		fmt.Fprintf(&b, "%d. %s\n", i+1, h)
	}

	b.WriteString(`
Challenge this analysis. Respond with ONLY a JSON object in this exact format:
{
  "skeptic_sentiment": "Disagree|Partially Disagree|Agree with Reservations|Agree",
  "primary_disagreement": "your single biggest objection",
  "critiques": [
    {
      "critique": "specific critique",
      "assumption_challenged": "the assumption being challenged",
      "evidence": "evidence for the critique"
    }
  ],
  "bear_cases": [
    {
      "argument": "concrete bear scenario",
      "trigger": "what would set it off",
      "severity": "High|Medium|Low"
    }
  ],
  "would_change_mind": ["evidence that would change your view"],
  "hidden_risks": ["risks the primary analysis missed"],
  "skeptic_confidence": 0.0-1.0
}`)

	return b.String()
}

func formatSkepticReport(ticker string, r *analysis.SkepticResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Skeptic Critique for %s\n", ticker)
	fmt.Fprintf(&b, "Verdict: %s (confidence %.2f)\n", r.SkepticSentiment, r.SkepticConfidence)
	if r.PrimaryDisagreement != "" {
		fmt.Fprintf(&b, "Primary disagreement: %s\n", r.PrimaryDisagreement)
	}
	if len(r.Critiques) > 0 {
		b.WriteString("Critiques:\n")
		for _, c := range r.Critiques {
			fmt.Fprintf(&b, "  - %s (challenges: %s)\n", c.Critique, c.AssumptionChallenged)
		}
	}
	if len(r.BearCases) > 0 {
		b.WriteString("Bear cases:\n")
		for _, bc := range r.BearCases {
			fmt.Fprintf(&b, "  - [%s] %s (trigger: %s)\n", bc.Severity, bc.Argument, bc.Trigger)
		}
	}
	if len(r.HiddenRisks) > 0 {
		b.WriteString("Hidden risks:\n")
		for _, hr := range r.HiddenRisks {
			fmt.Fprintf(&b, "  - %s\n", hr)
		}
	}
	return b.String()
}
