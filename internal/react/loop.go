package react

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stocksense/internal/adapters/ai"
	"stocksense/internal/adapters/config"
	"stocksense/internal/analysis"
	domain "stocksense/internal/domain/analysis"
	"stocksense/internal/metrics"
	"stocksense/pkg/logger"
)

// Terminal statuses for a loop run.
const (
	StatusComplete      = "complete"
	StatusMaxIterations = "max_iterations"
)

const loopSystemPrompt = `You are a stock analysis agent. You gather evidence with tools and reason step by step before answering. You only make claims supported by tool results. When the required sequence is complete, respond with a comprehensive final summary instead of calling more tools.`

// Loop drives the bounded reason-act cycle for one ticker.
type Loop struct {
	provider      ai.ChatProvider
	tools         *Toolset
	model         string
	temperature   float64
	maxIterations int
	log           *logger.Logger
}

// NewLoop creates a reasoning loop over the given toolset.
func NewLoop(provider ai.ChatProvider, tools *Toolset, cfg config.AIConfig) *Loop {
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 10
	}
	return &Loop{
		provider:      provider,
		tools:         tools,
		model:         cfg.Model,
		temperature:   cfg.Temperature,
		maxIterations: maxIterations,
		log:           logger.Get().With("component", "react_loop"),
	}
}

// MaxIterations returns the iteration bound for this loop.
func (l *Loop) MaxIterations() int {
	return l.maxIterations
}

// Run executes the full analysis sequence for a ticker. The run always
// yields a non-nil result; reasoning or tool failures are carried in
// the result's Error field rather than aborting, so partial evidence
// survives. Only an invalid ticker or a cancelled context returns an
// error.
func (l *Loop) Run(ctx context.Context, ticker string) (*domain.Result, error) {
	normalized, err := domain.ValidateTicker(ticker)
	if err != nil {
		return nil, err
	}
	ticker = normalized

	state := NewState(ticker)
	status := StatusMaxIterations
	finalText := ""
	runErr := ""
	iterations := 0

	var recentSteps []string

	for i := 1; i <= l.maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iterations = i

		start := time.Now()
		resp, err := l.provider.Chat(ctx, ai.ChatRequest{
			Model:       l.model,
			Temperature: l.temperature,
			Tools:       ToolDefinitions(),
			Messages: []ai.Message{
				{Role: ai.RoleSystem, Content: loopSystemPrompt},
				{Role: ai.RoleUser, Content: l.buildPrompt(state, i, recentSteps)},
			},
		})
		metrics.RecordLLMCall("react", l.model, time.Since(start), usageIn(resp), usageOut(resp), err)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.log.Errorf("Reasoning call failed for %s on iteration %d: %v", ticker, i, err)
			runErr = fmt.Sprintf("reasoning failed on iteration %d: %v", i, err)
			break
		}
		if len(resp.Choices) == 0 {
			runErr = fmt.Sprintf("reasoning returned no choices on iteration %d", i)
			break
		}

		msg := resp.Choices[0].Message
		if msg.Content != "" {
			state = state.WithReasoningStep(msg.Content)
		}

		if len(msg.ToolCalls) == 0 {
			// Model wants to finalize. Reject early answers until the
			// full sequence has run.
			if state.Complete() {
				status = StatusComplete
				finalText = msg.Content
				break
			}
			recentSteps = appendStep(recentSteps,
				"Final answer rejected: the required sequence is not complete. Call the next required tool.")
			continue
		}

		for _, call := range msg.ToolCalls {
			tool := Tool(call.Function.Name)
			var obs string
			state, obs = l.tools.Execute(ctx, tool, state)
			state = state.WithToolUsed(tool)
			recentSteps = appendStep(recentSteps, fmt.Sprintf("Iteration %d: %s -> %s", i, tool, truncate(obs, 400)))
		}
	}

	metrics.LoopRuns.WithLabelValues(status).Inc()
	metrics.LoopIterations.WithLabelValues(status).Observe(float64(iterations))

	if status != StatusComplete && runErr == "" {
		runErr = fmt.Sprintf("max iterations (%d) reached before completing analysis", l.maxIterations)
	}

	result := l.buildResult(state, status, finalText, runErr, iterations)
	l.log.Infof("Analysis for %s finished with status %s after %d iterations (%d distinct tools)",
		ticker, status, iterations, state.DistinctTools())
	return result, nil
}

func (l *Loop) buildPrompt(state State, iteration int, recentSteps []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analyze stock %s. This is reasoning iteration %d of %d.\n\n", state.Ticker, iteration, l.maxIterations)

	b.WriteString("Current situation:\n")
	fmt.Fprintf(&b, "- Headlines fetched: %s\n", yesNo(state.HeadlinesFetched, fmt.Sprintf("yes (%d)", len(state.Headlines))))
	fmt.Fprintf(&b, "- Price data fetched: %s\n", yesNo(state.PricesFetched, fmt.Sprintf("yes (%d bars)", len(state.Prices))))
	switch {
	case state.FundamentalsFailed:
		b.WriteString("- Fundamentals: attempted, unavailable (acceptable for ETFs and funds)\n")
	case state.FundamentalsFetched:
		b.WriteString("- Fundamentals: yes\n")
	default:
		b.WriteString("- Fundamentals: no\n")
	}
	if state.Sentiment != nil {
		fmt.Fprintf(&b, "- Sentiment analysis: done (%s)\n", state.Sentiment.OverallSentiment)
	} else {
		b.WriteString("- Sentiment analysis: not done\n")
	}
	fmt.Fprintf(&b, "- Skeptic critique: %s\n", yesNo(state.Skeptic != nil, "done"))

	b.WriteString("\nAvailable tools:\n")
	for _, tool := range AllTools {
		fmt.Fprintf(&b, "- %s: %s\n", tool, toolDescriptions[tool])
	}

	b.WriteString(`
REASONING: Think step by step about what data you have and what is still missing, then either call the next required tool or, if everything is done, write the final summary.

REQUIRED SEQUENCE:
1. First: fetch_news_headlines AND fetch_price_data (can be in ANY order)
2. Then: fetch_fundamentals
3. Then: analyze_sentiment
4. Then: generate_skeptic_critique
5. Finally: provide a comprehensive summary as your answer

COMPLETION CRITERIA (all must hold before the final summary):
- Headlines fetched
- Price data fetched
- Fundamentals fetched or attempted
- Sentiment analysis completed
- Skeptic critique completed

Note: fetch_fundamentals may fail for ETFs and funds. A failed attempt still satisfies the sequence; continue with the remaining steps.
`)

	if len(recentSteps) > 0 {
		b.WriteString("\nRecent steps:\n")
		for _, step := range recentSteps {
			fmt.Fprintf(&b, "%s\n", step)
		}
	}

	return b.String()
}

func (l *Loop) buildResult(state State, status, finalText, runErr string, iterations int) *domain.Result {
	summary := l.buildSummary(state, status, finalText, iterations)

	result := &domain.Result{
		Ticker:          state.Ticker,
		Summary:         summary,
		SentimentReport: analysis.FormatReport(state.Ticker, state.Sentiment),
		Headlines:       state.Headlines,
		Prices:          state.Prices,
		Fundamentals:    state.Fundamentals,
		Sentiment:       state.Sentiment,
		Skeptic:         state.Skeptic,
		ReasoningSteps:  state.ReasoningSteps,
		ToolsUsed:       state.ToolsUsed,
		Iterations:      iterations,
		Error:           runErr,
		Timestamp:       time.Now().UTC(),
	}

	meta := &domain.Metadata{
		Ticker:            state.Ticker,
		AnalysisTimestamp: result.Timestamp.Format(time.RFC3339),
		HeadlinesAnalyzed: len(state.Headlines),
		PriceDataPoints:   len(state.Prices),
	}
	if state.HeadlinesFetched {
		meta.DataSources = append(meta.DataSources, domain.DataSource{
			SourceType: "news", SourceName: "newsapi", DataFreshness: "7d", ReliabilityTier: "secondary",
		})
	}
	if state.PricesFetched {
		meta.DataSources = append(meta.DataSources, domain.DataSource{
			SourceType: "market", SourceName: "yahoo_finance", DataFreshness: "1d", ReliabilityTier: "primary",
		})
	}
	if state.FundamentalsFailed {
		meta.KnownLimitations = append(meta.KnownLimitations, "fundamental data unavailable for this symbol")
	}
	result.Metadata = meta

	return result
}

func (l *Loop) buildSummary(state State, status, finalText string, iterations int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Stock Analysis Summary for %s:\n", state.Ticker)

	if finalText != "" {
		b.WriteString(finalText)
		b.WriteString("\n")
	} else {
		if state.Sentiment != nil {
			fmt.Fprintf(&b, "Sentiment: %s (confidence %.2f).\n", state.Sentiment.OverallSentiment, state.Sentiment.OverallConfidence)
		}
		if state.Skeptic != nil {
			fmt.Fprintf(&b, "Skeptic verdict: %s.\n", state.Skeptic.SkepticSentiment)
		}
		if status == StatusMaxIterations {
			b.WriteString("The analysis hit the iteration limit before completing the full sequence; results are partial.\n")
		}
	}

	fmt.Fprintf(&b, "The analysis used %d different tools across %d reasoning iterations.", state.DistinctTools(), iterations)
	return b.String()
}

func appendStep(steps []string, step string) []string {
	const keep = 12
	steps = append(steps, step)
	if len(steps) > keep {
		steps = steps[len(steps)-keep:]
	}
	return steps
}

func yesNo(ok bool, yes string) string {
	if ok {
		return yes
	}
	return "no"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
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
