package debate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocksense/internal/adapters/config"
	"stocksense/internal/analysis"
	domain "stocksense/internal/domain/analysis"
	"stocksense/internal/domain/debate"
	"stocksense/pkg/errors"
)

type stubNews struct {
	headlines []string
	err       error
}

func (s *stubNews) GetNews(_ context.Context, _ string, _ int) ([]string, error) {
	return s.headlines, s.err
}

type stubMarket struct {
	prices       []domain.OHLCV
	fundamentals *domain.Fundamentals
	priceErr     error
	fundErr      error
}

func (s *stubMarket) GetPriceHistory(_ context.Context, _ string, _ string) ([]domain.OHLCV, error) {
	return s.prices, s.priceErr
}

func (s *stubMarket) GetFundamentals(_ context.Context, _ string) (*domain.Fundamentals, error) {
	return s.fundamentals, s.fundErr
}

type capturingStore struct {
	saved []*debate.Result
}

func (c *capturingStore) SaveDebate(_ context.Context, r *debate.Result) error {
	c.saved = append(c.saved, r)
	return nil
}

type capturingPublisher struct {
	topics []string
	keys   []string
}

func (c *capturingPublisher) Publish(_ context.Context, topic, key string, _ interface{}) error {
	c.topics = append(c.topics, topic)
	c.keys = append(c.keys, key)
	return nil
}

func newTestPipeline(news *stubNews, market *stubMarket, chat *mockChat, store DebateStore, pub EventPublisher) *Pipeline {
	cfg := config.AIConfig{Model: "gpt-4o", Temperature: 0.3}
	analyzer := analysis.NewAnalyzer(chat, cfg)
	bull := NewBullAnalyst(chat, cfg.Model)
	bear := NewBearAnalyst(chat, cfg.Model)
	synth := NewSynthesizer(chat, nil, cfg.Model)
	return NewPipeline(news, market, analyzer, bull, bear, synth, store, pub)
}

func TestPipeline_NoData_FallbackHold(t *testing.T) {
	news := &stubNews{err: errors.Wrap(errors.ErrExternal, "news down")}
	market := &stubMarket{
		priceErr: errors.Wrap(errors.ErrExternal, "market down"),
		fundErr:  errors.Wrap(errors.ErrNotFound, "unknown symbol"),
	}
	chat := &mockChat{responses: []string{"{}"}}
	store := &capturingStore{}
	pub := &capturingPublisher{}

	pipeline := newTestPipeline(news, market, chat, store, pub)
	result, err := pipeline.Run(context.Background(), "ZZZZ")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 0, chat.calls, "no model calls without evidence")
	assert.NotEmpty(t, result.Error)

	require.NotNil(t, result.BullCase)
	require.NotNil(t, result.BearCase)
	assert.Equal(t, 0.3, result.BullCase.Confidence)
	assert.Equal(t, 0.3, result.BearCase.Confidence)

	require.NotNil(t, result.Verdict)
	assert.NotEmpty(t, result.Verdict.AnalysisID)
	assert.Equal(t, debate.RecommendationHold, result.Verdict.Recommendation)
	assert.Equal(t, 0.3, result.Verdict.Conviction)
	sum := result.Verdict.ScenarioProbabilities.Bull + result.Verdict.ScenarioProbabilities.Base + result.Verdict.ScenarioProbabilities.Bear
	assert.InDelta(t, 1.0, sum, 0.05)

	// Incomplete debates are never persisted or announced
	assert.Empty(t, store.saved)
	assert.Empty(t, pub.topics)
}

func TestPipeline_FullRun(t *testing.T) {
	news := &stubNews{headlines: []string{"Company beats estimates", "New product announced"}}
	market := &stubMarket{
		fundamentals: &domain.Fundamentals{
			Ticker: "XYZ",
			Info:   map[string]interface{}{"revenue_growth": 0.4, "pe_ratio": 35.0},
		},
	}

	// One scripted response serves sentiment, both cases, both rebuttal
	// rounds, and synthesis; each parses for its consumer.
	chat := &mockChat{responses: []string{`{
		"overall_sentiment": "Bullish",
		"overall_confidence": 0.7,
		"thesis": "strong growth at a fair price",
		"confidence": 0.8,
		"key_claims": [{"statement": "Revenue grew 40%", "evidence": "revenue_growth", "confidence": 0.9, "data_source": "fundamentals"}],
		"bull_probability": 0.5,
		"base_probability": 0.3,
		"bear_probability": 0.2,
		"recommendation": "Buy",
		"conviction": 0.7,
		"reasoning": "bull case survived"
	}`}}
	store := &capturingStore{}
	pub := &capturingPublisher{}

	pipeline := newTestPipeline(news, market, chat, store, pub)
	result, err := pipeline.Run(context.Background(), "xyz")
	require.NoError(t, err)

	assert.Equal(t, "XYZ", result.Ticker)
	assert.Empty(t, result.Error)
	require.NotNil(t, result.Verdict)
	assert.NotEmpty(t, result.Verdict.AnalysisID)
	assert.Equal(t, debate.RecommendationBuy, result.Verdict.Recommendation)
	require.NotNil(t, result.BullCase)
	require.NotNil(t, result.BearCase)
	require.NotNil(t, result.Rebuttals)

	// Persisted and announced exactly once, after completion
	require.Len(t, store.saved, 1)
	assert.Equal(t, result, store.saved[0])
	require.Len(t, pub.keys, 1)
	assert.Equal(t, "XYZ", pub.keys[0])
}

func TestPipeline_InvalidTicker(t *testing.T) {
	pipeline := newTestPipeline(&stubNews{}, &stubMarket{}, &mockChat{}, nil, nil)

	_, err := pipeline.Run(context.Background(), "123")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidTicker))
}
