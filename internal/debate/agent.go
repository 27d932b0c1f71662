package debate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"stocksense/internal/adapters/ai"
	"stocksense/internal/analysis"
	domain "stocksense/internal/domain/analysis"
	"stocksense/internal/domain/debate"
	"stocksense/internal/metrics"
	"stocksense/pkg/errors"
	"stocksense/pkg/logger"
)

// Prompt budgets keep agent context focused on the highest-signal data.
const (
	maxMetricsInPrompt   = 15
	maxHeadlinesInPrompt = 10
	maxThemesInPrompt    = 5
)

// AgentConfig biases an analyst toward its side of the debate.
type AgentConfig struct {
	Name                string
	SystemPrompt        string
	FundamentalPriority []string
	SentimentFocus      []string
}

// BullConfig favors growth and momentum metrics.
var BullConfig = AgentConfig{
	Name: "bull",
	SystemPrompt: `You are a growth-focused equity analyst building the strongest honest case FOR buying a stock. You emphasize catalysts, growth metrics, and upside scenarios, but every claim must cite specific data you were given. You acknowledge real weaknesses instead of hiding them. You always respond with a single JSON object.`,
	FundamentalPriority: []string{
		"revenue_growth",
		"market_cap",
		"forward_pe",
		"recommendation_mean",
		"target_high",
		"target_mean",
	},
	SentimentFocus: []string{
		"positive_themes",
		"analyst_upgrades",
		"product_launches",
		"market_expansion",
		"competitive_wins",
	},
}

// BearConfig favors leverage, valuation, and liquidity metrics.
var BearConfig = AgentConfig{
	Name: "bear",
	SystemPrompt: `You are a risk-focused equity analyst building the strongest honest case AGAINST buying a stock. You emphasize leverage, valuation, deteriorating fundamentals, and downside scenarios, but every claim must cite specific data you were given. You acknowledge what would genuinely make you bullish. You always respond with a single JSON object.`,
	FundamentalPriority: []string{
		"debt_to_equity",
		"profit_margins",
		"pe_ratio",
		"price_to_book",
		"current_ratio",
		"quick_ratio",
	},
	SentimentFocus: []string{
		"negative_themes",
		"insider_selling",
		"competitive_threats",
		"regulatory_risks",
		"margin_compression",
	},
}

// agent carries the shared machinery of both analysts.
type agent struct {
	provider ai.ChatProvider
	model    string
	cfg      AgentConfig
	log      *logger.Logger
}

func newAgent(provider ai.ChatProvider, model string, cfg AgentConfig) agent {
	return agent{
		provider: provider,
		model:    model,
		cfg:      cfg,
		log:      logger.Get().With("component", cfg.Name+"_analyst"),
	}
}

func (a *agent) chat(ctx context.Context, temperature float64, userPrompt string) (string, error) {
	start := time.Now()
	resp, err := a.provider.Chat(ctx, ai.ChatRequest{
		Model:       a.model,
		Temperature: temperature,
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: a.cfg.SystemPrompt},
			{Role: ai.RoleUser, Content: userPrompt},
		},
	})
	var in, out int
	if resp != nil {
		in, out = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}
	metrics.RecordLLMCall(a.cfg.Name, a.model, time.Since(start), in, out, err)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.Wrap(errors.ErrExternal, "no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// prepareFundamentals orders metrics priority-first, then the rest,
// capped at the prompt budget.
func (a *agent) prepareFundamentals(f *domain.Fundamentals) []string {
	if f == nil || len(f.Info) == 0 {
		return nil
	}

	lines := make([]string, 0, maxMetricsInPrompt)
	seen := make(map[string]bool, len(f.Info))

	for _, key := range a.cfg.FundamentalPriority {
		if v, ok := f.Info[key]; ok {
			lines = append(lines, fmt.Sprintf("%s: %v", key, v))
			seen[key] = true
		}
	}

	rest := make([]string, 0, len(f.Info))
	for key := range f.Info {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		if len(lines) >= maxMetricsInPrompt {
			break
		}
		lines = append(lines, fmt.Sprintf("%s: %v", key, f.Info[key]))
	}

	if len(lines) > maxMetricsInPrompt {
		lines = lines[:maxMetricsInPrompt]
	}
	return lines
}

// filterSentimentThemes ranks themes by relevance to this agent's focus
// terms. A theme scores 2 when a focus term appears verbatim and 1 when
// any single word of a focus term matches.
func (a *agent) filterSentimentThemes(themes []domain.KeyTheme) []domain.KeyTheme {
	if len(themes) == 0 {
		return nil
	}

	type scored struct {
		theme domain.KeyTheme
		score int
		idx   int
	}

	ranked := make([]scored, 0, len(themes))
	for i, theme := range themes {
		lower := strings.ToLower(theme.Theme)
		score := 0
		for _, focus := range a.cfg.SentimentFocus {
			term := strings.ReplaceAll(focus, "_", " ")
			if strings.Contains(lower, term) {
				score += 2
				continue
			}
			for _, word := range strings.Fields(term) {
				if strings.Contains(lower, word) {
					score++
					break
				}
			}
		}
		ranked = append(ranked, scored{theme: theme, score: score, idx: i})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].idx < ranked[j].idx
	})

	n := len(ranked)
	if n > maxThemesInPrompt {
		n = maxThemesInPrompt
	}
	out := make([]domain.KeyTheme, 0, n)
	for _, s := range ranked[:n] {
		out = append(out, s.theme)
	}
	return out
}

// buildDataSection renders the shared evidence block used by both
// opening case prompts.
func (a *agent) buildDataSection(ticker string, sentiment *domain.SentimentResult, headlines []string, fundamentals *domain.Fundamentals) string {
	var b strings.Builder

	fmt.Fprintf(&b, "DATA FOR %s:\n\n", ticker)

	if lines := a.prepareFundamentals(fundamentals); len(lines) > 0 {
		b.WriteString("Fundamentals:\n")
		for _, line := range lines {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	} else {
		b.WriteString("Fundamentals: unavailable\n")
	}

	if sentiment != nil {
		fmt.Fprintf(&b, "\nNews sentiment: %s (confidence %.2f)\n", sentiment.OverallSentiment, sentiment.OverallConfidence)
		if themes := a.filterSentimentThemes(sentiment.KeyThemes); len(themes) > 0 {
			b.WriteString("Relevant themes:\n")
			for _, t := range themes {
				fmt.Fprintf(&b, "  - %s (%s): %s\n", t.Theme, t.SentimentDirection, t.Summary)
			}
		}
	}

	if len(headlines) > 0 {
		n := len(headlines)
		if n > maxHeadlinesInPrompt {
			n = maxHeadlinesInPrompt
		}
		b.WriteString("\nRecent headlines:\n")
		for _, h := range headlines[:n] {
			fmt.Fprintf(&b, "  - %s\n", h)
		}
	}

	return b.String()
}

// rebut asks the agent to attack the opponent's claims. The output is a
// JSON array of rebuttals; honesty about weak rebuttals is demanded so
// strength scores stay meaningful.
func (a *agent) rebut(ctx context.Context, ticker string, opponentClaims []debate.Claim) ([]debate.Rebuttal, error) {
	if len(opponentClaims) == 0 {
		return []debate.Rebuttal{}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your opponent made these claims about %s:\n\n", ticker)
	for i, claim := range opponentClaims {
		fmt.Fprintf(&b, "%d. %s\n   Evidence: %s (confidence %.2f, source: %s)\n",
			i+1, claim.Statement, claim.Evidence, claim.Confidence, claim.DataSource)
	}
	b.WriteString(`
Find FACTUAL FLAWS in these claims: wrong numbers, cherry-picked data,
unsupported leaps, stale information. Be HONEST. If a claim is solid,
say so with a low strength score rather than inventing a weak counter.

Respond with ONLY a JSON array in this exact format:
[
  {
    "target_claim": "the claim being rebutted",
    "counter_argument": "why it is flawed",
    "counter_evidence": "specific data contradicting it",
    "strength": 0.0-1.0
  }
]
Only return the JSON array.`)

	content, err := a.chat(ctx, 0.3, b.String())
	if err != nil {
		return nil, errors.Wrapf(err, "%s rebuttal call failed", a.cfg.Name)
	}

	var rebuttals []debate.Rebuttal
	if err := analysis.ExtractJSONArray(content, &rebuttals); err != nil {
		a.log.Warnf("Failed to parse %s rebuttals for %s: %v", a.cfg.Name, ticker, err)
		return []debate.Rebuttal{}, nil
	}
	for i := range rebuttals {
		rebuttals[i].Strength = clamp01(rebuttals[i].Strength)
	}
	return rebuttals, nil
}

// fallbackMetrics keeps the raw priority fundamentals on a placeholder
// case when the model cannot draft one, so the numbers in hand are still
// on record.
func fallbackMetrics(f *domain.Fundamentals, priority []string) map[string]interface{} {
	out := map[string]interface{}{}
	if f == nil {
		return out
	}
	for _, key := range priority {
		if v, ok := f.Info[key]; ok {
			out[key] = v
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
