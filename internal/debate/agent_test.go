package debate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocksense/internal/adapters/ai"
	domain "stocksense/internal/domain/analysis"
	"stocksense/internal/domain/debate"
	"stocksense/pkg/errors"
)

type mockChat struct {
	responses []string
	calls     int
	lastReq   ai.ChatRequest
	err       error
}

func (m *mockChat) Name() ai.ProviderName { return "mock" }

func (m *mockChat) Chat(_ context.Context, req ai.ChatRequest) (*ai.ChatResponse, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	idx := m.calls
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	m.calls++
	return &ai.ChatResponse{
		Choices: []ai.Choice{{Message: ai.Message{Role: ai.RoleAssistant, Content: m.responses[idx]}}},
	}, nil
}

func TestPrepareFundamentals_PriorityFirst(t *testing.T) {
	a := newAgent(&mockChat{}, "gpt-4o", BearConfig)

	f := &domain.Fundamentals{
		Ticker: "XYZ",
		Info: map[string]interface{}{
			"beta":           1.2,
			"debt_to_equity": 180.5,
			"pe_ratio":       42.0,
			"market_cap":     1e9,
		},
	}

	lines := a.prepareFundamentals(f)
	require.NotEmpty(t, lines)

	// Bear priority metrics lead the list in config order
	assert.Contains(t, lines[0], "debt_to_equity")
	assert.Contains(t, lines[1], "pe_ratio")
	// Non-priority metrics follow
	assert.Len(t, lines, 4)
}

func TestPrepareFundamentals_CapsAtBudget(t *testing.T) {
	a := newAgent(&mockChat{}, "gpt-4o", BullConfig)

	info := map[string]interface{}{}
	for _, key := range []string{
		"a", "b", "c", "d", "e", "f", "g", "h", "i", "j",
		"k", "l", "m", "n", "o", "p", "q", "r",
	} {
		info[key] = 1.0
	}
	lines := a.prepareFundamentals(&domain.Fundamentals{Ticker: "XYZ", Info: info})
	assert.Len(t, lines, maxMetricsInPrompt)
}

func TestPrepareFundamentals_Nil(t *testing.T) {
	a := newAgent(&mockChat{}, "gpt-4o", BullConfig)
	assert.Nil(t, a.prepareFundamentals(nil))
	assert.Nil(t, a.prepareFundamentals(&domain.Fundamentals{Ticker: "XYZ"}))
}

func TestFilterSentimentThemes_Scoring(t *testing.T) {
	a := newAgent(&mockChat{}, "gpt-4o", BullConfig)

	themes := []domain.KeyTheme{
		{Theme: "margin compression concerns"},
		{Theme: "product launches accelerating"}, // exact focus term, +2
		{Theme: "new product announcement"},      // word match on "product", +1
		{Theme: "regulatory overhang"},
	}

	filtered := a.filterSentimentThemes(themes)
	require.NotEmpty(t, filtered)

	assert.Equal(t, "product launches accelerating", filtered[0].Theme)
	assert.Equal(t, "new product announcement", filtered[1].Theme)
}

func TestFilterSentimentThemes_CapsAtBudget(t *testing.T) {
	a := newAgent(&mockChat{}, "gpt-4o", BearConfig)

	themes := make([]domain.KeyTheme, 8)
	for i := range themes {
		themes[i] = domain.KeyTheme{Theme: "theme"}
	}
	assert.Len(t, a.filterSentimentThemes(themes), maxThemesInPrompt)
}

func TestBuildCase_FallbackCarriesPriorityMetrics(t *testing.T) {
	chat := &mockChat{err: errors.Wrap(errors.ErrExternal, "provider down")}
	f := &domain.Fundamentals{
		Ticker: "XYZ",
		Info: map[string]interface{}{
			"revenue_growth": 0.4,
			"market_cap":     1e9,
			"debt_to_equity": 180.5,
			"profit_margins": 0.08,
			"beta":           1.2,
		},
	}

	bull := NewBullAnalyst(chat, "gpt-4o").BuildCase(context.Background(), "XYZ", nil, nil, f)
	assert.Equal(t, 0.3, bull.Confidence)
	assert.Equal(t, 0.4, bull.KeyMetrics["revenue_growth"])
	assert.Equal(t, 1e9, bull.KeyMetrics["market_cap"])
	assert.NotContains(t, bull.KeyMetrics, "debt_to_equity")

	bear := NewBearAnalyst(chat, "gpt-4o").BuildCase(context.Background(), "XYZ", nil, nil, f)
	assert.Equal(t, 180.5, bear.KeyMetrics["debt_to_equity"])
	assert.Equal(t, 0.08, bear.KeyMetrics["profit_margins"])
	assert.NotContains(t, bear.KeyMetrics, "beta")
}

func TestBuildCase_FallbackWithoutFundamentals(t *testing.T) {
	chat := &mockChat{err: errors.Wrap(errors.ErrExternal, "provider down")}

	bull := NewBullAnalyst(chat, "gpt-4o").BuildCase(context.Background(), "XYZ", nil, nil, nil)
	assert.NotNil(t, bull.KeyMetrics)
	assert.Empty(t, bull.KeyMetrics)
}

func TestRebut_ParsesAndClampsStrength(t *testing.T) {
	chat := &mockChat{responses: []string{`[
		{"target_claim": "Revenue grew 40%", "counter_argument": "growth is decelerating", "counter_evidence": "QoQ trend", "strength": 0.7},
		{"target_claim": "Margins are stable", "counter_argument": "claim is solid", "counter_evidence": "", "strength": 1.5}
	]`}}
	bear := NewBearAnalyst(chat, "gpt-4o")

	claims := []debate.Claim{
		{Statement: "Revenue grew 40%", Evidence: "revenue_growth: 0.40", Confidence: 0.9, DataSource: "fundamentals"},
		{Statement: "Margins are stable", Evidence: "profit_margins: 0.21", Confidence: 0.8, DataSource: "fundamentals"},
	}
	rebuttals, err := bear.Rebut(context.Background(), "XYZ", claims)
	require.NoError(t, err)
	require.Len(t, rebuttals, 2)

	assert.Equal(t, 0.7, rebuttals[0].Strength)
	assert.Equal(t, 1.0, rebuttals[1].Strength, "out-of-range strength is clamped")
	assert.Contains(t, chat.lastReq.Messages[1].Content, "Revenue grew 40%")
}

func TestRebut_NoClaims(t *testing.T) {
	chat := &mockChat{}
	bull := NewBullAnalyst(chat, "gpt-4o")

	rebuttals, err := bull.Rebut(context.Background(), "XYZ", nil)
	require.NoError(t, err)
	assert.Empty(t, rebuttals)
	assert.Equal(t, 0, chat.calls, "no model call without claims to rebut")
}

func TestRebut_ParseFailure(t *testing.T) {
	chat := &mockChat{responses: []string{"not json"}}
	bull := NewBullAnalyst(chat, "gpt-4o")

	rebuttals, err := bull.Rebut(context.Background(), "XYZ", []debate.Claim{{Statement: "s"}})
	require.NoError(t, err)
	assert.Empty(t, rebuttals)
}
