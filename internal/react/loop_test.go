package react

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocksense/internal/adapters/ai"
	"stocksense/internal/adapters/config"
	"stocksense/internal/analysis"
	domain "stocksense/internal/domain/analysis"
	"stocksense/pkg/errors"
)

type scriptedProvider struct {
	script []ai.ChatResponse
	calls  int
}

func (p *scriptedProvider) Name() ai.ProviderName { return "scripted" }

func (p *scriptedProvider) Chat(_ context.Context, _ ai.ChatRequest) (*ai.ChatResponse, error) {
	idx := p.calls
	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}
	p.calls++
	resp := p.script[idx]
	return &resp, nil
}

type fixedProvider struct{ content string }

func (p *fixedProvider) Name() ai.ProviderName { return "fixed" }

func (p *fixedProvider) Chat(_ context.Context, _ ai.ChatRequest) (*ai.ChatResponse, error) {
	return &ai.ChatResponse{
		Choices: []ai.Choice{{Message: ai.Message{Role: ai.RoleAssistant, Content: p.content}}},
	}, nil
}

type stubNews struct {
	headlines []string
	err       error
	calls     int
}

func (s *stubNews) GetNews(_ context.Context, _ string, _ int) ([]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.headlines, nil
}

type stubMarket struct {
	prices     []domain.OHLCV
	fundErr    error
	priceCalls int
	fundCalls  int
}

func (s *stubMarket) GetPriceHistory(_ context.Context, _ string, _ string) ([]domain.OHLCV, error) {
	s.priceCalls++
	return s.prices, nil
}

func (s *stubMarket) GetFundamentals(_ context.Context, ticker string) (*domain.Fundamentals, error) {
	s.fundCalls++
	if s.fundErr != nil {
		return nil, s.fundErr
	}
	return &domain.Fundamentals{Ticker: ticker, Info: map[string]interface{}{"pe_ratio": 25.0}}, nil
}

func toolCallResp(tools ...Tool) ai.ChatResponse {
	calls := make([]ai.ToolCall, 0, len(tools))
	for i, tool := range tools {
		calls = append(calls, ai.ToolCall{
			ID:       string(rune('a' + i)),
			Type:     "function",
			Function: ai.FunctionCall{Name: string(tool), Arguments: "{}"},
		})
	}
	return ai.ChatResponse{
		Choices: []ai.Choice{{
			Message:      ai.Message{Role: ai.RoleAssistant, ToolCalls: calls},
			FinishReason: ai.FinishReasonToolCalls,
		}},
	}
}

func finalResp(content string) ai.ChatResponse {
	return ai.ChatResponse{
		Choices: []ai.Choice{{
			Message:      ai.Message{Role: ai.RoleAssistant, Content: content},
			FinishReason: ai.FinishReasonStop,
		}},
	}
}

const sentimentJSON = `{
	"overall_sentiment": "Bullish",
	"overall_confidence": 0.7,
	"confidence_reasoning": "mostly positive coverage",
	"bullish_count": 2,
	"headline_analyses": [
		{"headline": "h1", "sentiment": "Bullish", "confidence": 0.8, "reasoning": "r"},
		{"headline": "h2", "sentiment": "Bullish", "confidence": 0.6, "reasoning": "r"}
	],
	"key_themes": [],
	"potential_impact": "Moderate Positive",
	"risks_identified": [],
	"information_gaps": []
}`

const skepticJSON = `{
	"skeptic_sentiment": "Agree with Reservations",
	"primary_disagreement": "thin coverage",
	"critiques": [],
	"bear_cases": [],
	"would_change_mind": [],
	"hidden_risks": [],
	"skeptic_confidence": 0.5
}`

func testToolset(news *stubNews, market *stubMarket) *Toolset {
	cfg := config.AIConfig{Model: "gpt-4o", Temperature: 0.3}
	analyzer := analysis.NewAnalyzer(&fixedProvider{content: sentimentJSON}, cfg)
	skeptic := analysis.NewSkeptic(&fixedProvider{content: skepticJSON}, cfg)
	return NewToolset(news, market, analyzer, skeptic)
}

func testPrices() []domain.OHLCV {
	return []domain.OHLCV{
		{Date: "2026-08-20", Close: decimal.NewFromFloat(101.5), Volume: 1000},
		{Date: "2026-08-21", Close: decimal.NewFromFloat(103.2), Volume: 1200},
	}
}

func TestLoop_CompletesSequence(t *testing.T) {
	news := &stubNews{headlines: []string{"h1", "h2"}}
	market := &stubMarket{prices: testPrices()}

	provider := &scriptedProvider{script: []ai.ChatResponse{
		toolCallResp(ToolFetchNews, ToolFetchPrices),
		toolCallResp(ToolFetchFundamentals),
		toolCallResp(ToolAnalyzeSentiment),
		toolCallResp(ToolCritiqueSentiment),
		finalResp("Positive outlook supported by sentiment and fundamentals."),
	}}

	loop := NewLoop(provider, testToolset(news, market), config.AIConfig{Model: "gpt-4o", MaxIterations: 10})
	result, err := loop.Run(context.Background(), "aapl")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "AAPL", result.Ticker)
	assert.Empty(t, result.Error)
	assert.Equal(t, 5, result.Iterations)
	assert.LessOrEqual(t, result.Iterations, loop.MaxIterations())
	assert.Contains(t, result.Summary, "Stock Analysis Summary for AAPL")
	assert.Contains(t, result.Summary, "5 different tools")
	require.NotNil(t, result.Sentiment)
	assert.Equal(t, domain.SentimentBullish, result.Sentiment.OverallSentiment)
	require.NotNil(t, result.Skeptic)
	assert.Len(t, result.Headlines, 2)
	assert.Len(t, result.Prices, 2)
	require.NotNil(t, result.Metadata)
	assert.Equal(t, 2, result.Metadata.HeadlinesAnalyzed)
}

func TestLoop_MaxIterationsWithDedup(t *testing.T) {
	news := &stubNews{headlines: []string{"h1"}}
	market := &stubMarket{prices: testPrices()}

	// Model never progresses past fetching news
	provider := &scriptedProvider{script: []ai.ChatResponse{
		toolCallResp(ToolFetchNews),
	}}

	loop := NewLoop(provider, testToolset(news, market), config.AIConfig{Model: "gpt-4o", MaxIterations: 3})
	result, err := loop.Run(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 3, result.Iterations)
	assert.Contains(t, result.Error, "max iterations")
	assert.Equal(t, 1, news.calls, "repeat tool calls must hit the cached result")
	assert.NotEmpty(t, result.Summary)
}

func TestLoop_RejectsEarlyFinal(t *testing.T) {
	news := &stubNews{headlines: []string{"h1"}}
	market := &stubMarket{prices: testPrices()}

	provider := &scriptedProvider{script: []ai.ChatResponse{
		finalResp("Premature summary with no data."),
		toolCallResp(ToolFetchNews, ToolFetchPrices),
		toolCallResp(ToolFetchFundamentals),
		toolCallResp(ToolAnalyzeSentiment),
		toolCallResp(ToolCritiqueSentiment),
		finalResp("Now the sequence is complete."),
	}}

	loop := NewLoop(provider, testToolset(news, market), config.AIConfig{Model: "gpt-4o", MaxIterations: 10})
	result, err := loop.Run(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Empty(t, result.Error)
	assert.Equal(t, 6, result.Iterations)
	assert.Contains(t, result.Summary, "Now the sequence is complete.")
}

func TestToolset_FailedFetchNotRetried(t *testing.T) {
	news := &stubNews{err: errors.Wrap(errors.ErrExternal, "news feed down")}
	toolset := testToolset(news, &stubMarket{})

	state, obs := toolset.Execute(context.Background(), ToolFetchNews, NewState("AAPL"))
	assert.Contains(t, obs, `"success":false`)
	assert.True(t, state.HeadlinesFetched, "the attempt is recorded even on failure")

	_, obs = toolset.Execute(context.Background(), ToolFetchNews, state)
	assert.Contains(t, obs, "already fetched")
	assert.Equal(t, 1, news.calls, "a dead source is not fetched again")
}

func TestLoop_FundamentalsFailureTolerated(t *testing.T) {
	news := &stubNews{headlines: []string{"h1"}}
	market := &stubMarket{
		prices:  testPrices(),
		fundErr: errors.Wrap(errors.ErrInsufficientData, "no fundamentals for ETF"),
	}

	provider := &scriptedProvider{script: []ai.ChatResponse{
		toolCallResp(ToolFetchNews, ToolFetchPrices),
		toolCallResp(ToolFetchFundamentals),
		toolCallResp(ToolAnalyzeSentiment),
		toolCallResp(ToolCritiqueSentiment),
		finalResp("Done without fundamentals."),
	}}

	loop := NewLoop(provider, testToolset(news, market), config.AIConfig{Model: "gpt-4o", MaxIterations: 10})
	result, err := loop.Run(context.Background(), "SPY")
	require.NoError(t, err)

	assert.Empty(t, result.Error)
	assert.Nil(t, result.Fundamentals)
	require.NotNil(t, result.Metadata)
	assert.NotEmpty(t, result.Metadata.KnownLimitations)
}

func TestLoop_InvalidTicker(t *testing.T) {
	loop := NewLoop(&scriptedProvider{script: []ai.ChatResponse{finalResp("x")}},
		testToolset(&stubNews{}, &stubMarket{}), config.AIConfig{})

	_, err := loop.Run(context.Background(), "TOOLONG")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidTicker))
}

func TestState_Immutability(t *testing.T) {
	s1 := NewState("AAPL")
	s2 := s1.WithHeadlines([]string{"h1"})
	s3 := s2.WithToolUsed(ToolFetchNews)

	assert.False(t, s1.HeadlinesFetched)
	assert.Empty(t, s2.ToolsUsed)
	assert.Equal(t, []string{string(ToolFetchNews)}, s3.ToolsUsed)

	s4 := s3.WithToolUsed(ToolFetchPrices)
	assert.Len(t, s3.ToolsUsed, 1, "earlier snapshots keep their own history")
	assert.Len(t, s4.ToolsUsed, 2)
}

func TestToolset_UnknownTool(t *testing.T) {
	ts := testToolset(&stubNews{}, &stubMarket{})
	state := NewState("AAPL")

	next, obs := ts.Execute(context.Background(), Tool("save_to_disk"), state)
	assert.Equal(t, state, next)
	assert.Contains(t, obs, `"success":false`)
	assert.Contains(t, obs, "unknown tool")
}
