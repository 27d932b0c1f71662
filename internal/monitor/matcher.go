package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stocksense/internal/adapters/ai"
	"stocksense/internal/analysis"
	"stocksense/internal/domain/thesis"
	"stocksense/internal/metrics"
	"stocksense/pkg/errors"
	"stocksense/pkg/logger"
)

const matcherSystemPrompt = `You compare fresh market signals against an investor's predefined exit conditions (kill criteria). You judge whether a signal indicates a criterion is triggering. You always respond with a JSON array.`

// Matcher decides which signals trigger which kill criteria.
type Matcher struct {
	provider ai.ChatProvider
	model    string
	log      *logger.Logger
}

// NewMatcher creates a criteria matcher.
func NewMatcher(provider ai.ChatProvider, model string) *Matcher {
	return &Matcher{
		provider: provider,
		model:    model,
		log:      logger.Get().With("component", "criteria_matcher"),
	}
}

type rawMatch struct {
	CriteriaIndex int     `json:"criteria_index"`
	SignalIndex   int     `json:"signal_index"`
	Confidence    float64 `json:"confidence"`
	Explanation   string  `json:"explanation"`
}

// MatchSignals pairs signals with the criteria they may trigger.
// Matches referencing out-of-range indices are dropped.
func (m *Matcher) MatchSignals(ctx context.Context, criteria []string, signals []thesis.Signal) ([]thesis.Match, error) {
	if len(criteria) == 0 || len(signals) == 0 {
		return []thesis.Match{}, nil
	}

	prompt := buildMatchPrompt(criteria, signals)

	start := time.Now()
	resp, err := m.provider.Chat(ctx, ai.ChatRequest{
		Model:       m.model,
		Temperature: 0.2,
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: matcherSystemPrompt},
			{Role: ai.RoleUser, Content: prompt},
		},
	})
	var in, out int
	if resp != nil {
		in, out = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}
	metrics.RecordLLMCall("criteria_matcher", m.model, time.Since(start), in, out, err)
	if err != nil {
		return nil, errors.Wrap(err, "criteria matching call failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.Wrap(errors.ErrExternal, "criteria matching returned no choices")
	}

	var raw []rawMatch
	if err := analysis.ExtractJSONArray(resp.Choices[0].Message.Content, &raw); err != nil {
		return nil, errors.Wrap(err, "parse criteria matches")
	}

	matches := make([]thesis.Match, 0, len(raw))
	for _, r := range raw {
		if r.CriteriaIndex < 0 || r.CriteriaIndex >= len(criteria) {
			m.log.Warnf("Dropping match with invalid criteria_index %d", r.CriteriaIndex)
			continue
		}
		if r.SignalIndex < 0 || r.SignalIndex >= len(signals) {
			m.log.Warnf("Dropping match with invalid signal_index %d", r.SignalIndex)
			continue
		}
		confidence := r.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
		matches = append(matches, thesis.Match{
			CriteriaIndex:   r.CriteriaIndex,
			Criteria:        criteria[r.CriteriaIndex],
			Signal:          signals[r.SignalIndex].Text,
			MatchConfidence: confidence,
			Explanation:     r.Explanation,
		})
	}
	return matches, nil
}

func buildMatchPrompt(criteria []string, signals []thesis.Signal) string {
	var b strings.Builder

	b.WriteString("KILL CRITERIA (0-based index):\n")
	for i, c := range criteria {
		fmt.Fprintf(&b, "%d. %s\n", i, c)
	}

	b.WriteString("\nFRESH SIGNALS (0-based index):\n")
	for i, s := range signals {
		fmt.Fprintf(&b, "%d. [%s/%s] %s\n", i, s.Category, s.Sentiment, s.Text)
	}

	b.WriteString(`
Which signals indicate a kill criterion is triggering? Be conservative
about confidence, but do not require a complete trigger: partial or
emerging matches count, with proportionally lower confidence.

Respond with ONLY a JSON array, no other text:
[
  {
    "criteria_index": 0,
    "signal_index": 0,
    "confidence": 0.0-1.0,
    "explanation": "why this signal bears on this criterion"
  }
]
Return an empty array if nothing matches.`)

	return b.String()
}
