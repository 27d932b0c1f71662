package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocksense/internal/adapters/ai"
	"stocksense/internal/adapters/config"
	domain "stocksense/internal/domain/analysis"
	"stocksense/internal/domain/thesis"
)

type mockChat struct {
	responses []string
	calls     int
}

func (m *mockChat) Name() ai.ProviderName { return "mock" }

func (m *mockChat) Chat(_ context.Context, _ ai.ChatRequest) (*ai.ChatResponse, error) {
	idx := m.calls
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	m.calls++
	return &ai.ChatResponse{
		Choices: []ai.Choice{{Message: ai.Message{Role: ai.RoleAssistant, Content: m.responses[idx]}}},
	}, nil
}

type stubThesisStore struct {
	theses []thesis.Thesis
}

func (s *stubThesisStore) ActiveWithKillCriteria(_ context.Context, _ string) ([]thesis.Thesis, error) {
	return s.theses, nil
}

type memAlertStore struct {
	alerts []*thesis.Alert
}

func (s *memAlertStore) CreateAlert(_ context.Context, alert *thesis.Alert) error {
	s.alerts = append(s.alerts, alert)
	return nil
}

const signalsJSON = `[
	{"text": "Margins compressed for the second quarter", "category": "financial", "sentiment": "negative", "confidence": 0.8},
	{"text": "Largest customer reduced order volume", "category": "market", "sentiment": "negative", "confidence": 0.7},
	{"text": "New product line announced", "category": "operational", "sentiment": "positive", "confidence": 0.6}
]`

func matchJSON(confidence float64) string {
	return fmt.Sprintf(`[
		{"criteria_index": 0, "signal_index": 0, "confidence": %.2f, "explanation": "margin erosion matches exit condition"},
		{"criteria_index": 5, "signal_index": 0, "confidence": 0.9, "explanation": "invalid criteria index"},
		{"criteria_index": 0, "signal_index": 9, "confidence": 0.9, "explanation": "invalid signal index"}
	]`, confidence)
}

func analysisResult() *domain.Result {
	return &domain.Result{
		Ticker:  "XYZ",
		Summary: "Margins are deteriorating while competition intensifies.",
		Sentiment: &domain.SentimentResult{
			OverallSentiment:  domain.SentimentBearish,
			OverallConfidence: 0.75,
		},
	}
}

func activeThesis() thesis.Thesis {
	return thesis.Thesis{
		ID:           "t1",
		UserID:       "u1",
		Ticker:       "XYZ",
		Status:       thesis.StatusActive,
		KillCriteria: []string{"Gross margin falls below 40%"},
	}
}

func newTestService(chat *mockChat, theses []thesis.Thesis, alerts *memAlertStore) *Service {
	extractor := NewExtractor(chat, "gpt-4o")
	matcher := NewMatcher(chat, "gpt-4o")
	return NewService(extractor, matcher, &stubThesisStore{theses: theses}, alerts, nil,
		config.MonitorConfig{MatchThreshold: 0.6})
}

func TestCheck_AlertAtThreshold(t *testing.T) {
	chat := &mockChat{responses: []string{signalsJSON, matchJSON(0.60)}}
	alerts := &memAlertStore{}
	svc := newTestService(chat, []thesis.Thesis{activeThesis()}, alerts)

	created, err := svc.Check(context.Background(), analysisResult())
	require.NoError(t, err)
	require.Len(t, created, 1, "confidence exactly at threshold must alert")

	alert := created[0]
	assert.Equal(t, "u1", alert.UserID)
	assert.Equal(t, "t1", alert.ThesisID)
	assert.Equal(t, thesis.AlertTypeKillCriteria, alert.AlertType)
	assert.Equal(t, "Kill Criteria Triggered: Gross margin falls below 40%", alert.Message)
	assert.False(t, alert.IsRead)

	var data thesis.AlertData
	require.NoError(t, json.Unmarshal(alert.Data, &data))
	assert.Equal(t, "Gross margin falls below 40%", data.TriggeredCriteria)
	assert.Equal(t, domain.SentimentBearish, data.AnalysisSentiment)
	assert.Equal(t, thesis.AlertStatusPending, data.Status)
	assert.LessOrEqual(t, len(data.AnalysisSummary), 500)
}

func TestCheck_BelowThresholdNoAlert(t *testing.T) {
	chat := &mockChat{responses: []string{signalsJSON, matchJSON(0.59)}}
	alerts := &memAlertStore{}
	svc := newTestService(chat, []thesis.Thesis{activeThesis()}, alerts)

	created, err := svc.Check(context.Background(), analysisResult())
	require.NoError(t, err)
	assert.Empty(t, created, "confidence just below threshold must not alert")
	assert.Empty(t, alerts.alerts)
}

func TestCheck_InvalidIndicesDropped(t *testing.T) {
	chat := &mockChat{responses: []string{signalsJSON, matchJSON(0.9)}}
	alerts := &memAlertStore{}
	svc := newTestService(chat, []thesis.Thesis{activeThesis()}, alerts)

	created, err := svc.Check(context.Background(), analysisResult())
	require.NoError(t, err)
	// matchJSON carries two out-of-range matches; only the valid one lands
	assert.Len(t, created, 1)
}

func TestCheck_NoThesesSkipsExtraction(t *testing.T) {
	chat := &mockChat{responses: []string{signalsJSON}}
	svc := newTestService(chat, nil, &memAlertStore{})

	created, err := svc.Check(context.Background(), analysisResult())
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Equal(t, 0, chat.calls, "no extraction call without theses to monitor")
}

func TestCheck_BatchesCriteriaPerUser(t *testing.T) {
	second := thesis.Thesis{
		ID:           "t2",
		UserID:       "u1",
		Ticker:       "XYZ",
		Status:       thesis.StatusActive,
		KillCriteria: []string{"Largest customer churns", "Debt covenant breached"},
	}
	// criteria_index 1 lands in the second thesis's criteria list
	chat := &mockChat{responses: []string{signalsJSON, `[
		{"criteria_index": 1, "signal_index": 1, "confidence": 0.8, "explanation": "order volume collapse"}
	]`}}
	alerts := &memAlertStore{}
	svc := newTestService(chat, []thesis.Thesis{activeThesis(), second}, alerts)

	created, err := svc.Check(context.Background(), analysisResult())
	require.NoError(t, err)

	assert.Equal(t, 2, chat.calls, "one extraction plus one batched matching call for the user")
	require.Len(t, created, 1)
	assert.Equal(t, "t2", created[0].ThesisID)
	assert.Equal(t, "Kill Criteria Triggered: Largest customer churns", created[0].Message)
}

func TestCheckForUser_IgnoresOtherUsersTheses(t *testing.T) {
	other := thesis.Thesis{
		ID:           "t2",
		UserID:       "u2",
		Ticker:       "XYZ",
		Status:       thesis.StatusActive,
		KillCriteria: []string{"Margin erosion"},
	}
	chat := &mockChat{responses: []string{signalsJSON, matchJSON(0.9)}}
	alerts := &memAlertStore{}
	svc := newTestService(chat, []thesis.Thesis{activeThesis(), other}, alerts)

	created, err := svc.CheckForUser(context.Background(), analysisResult(), "u2")
	require.NoError(t, err)

	require.Len(t, created, 1)
	assert.Equal(t, "u2", created[0].UserID)
	assert.Equal(t, "t2", created[0].ThesisID)
}

func TestCheckForUser_NoThesesSkipsExtraction(t *testing.T) {
	chat := &mockChat{responses: []string{signalsJSON}}
	svc := newTestService(chat, []thesis.Thesis{activeThesis()}, &memAlertStore{})

	created, err := svc.CheckForUser(context.Background(), analysisResult(), "u9")
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Equal(t, 0, chat.calls)
}

func TestMatchSignals_EmptyInputs(t *testing.T) {
	chat := &mockChat{}
	matcher := NewMatcher(chat, "gpt-4o")

	matches, err := matcher.MatchSignals(context.Background(), nil, []thesis.Signal{{Text: "s"}})
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Equal(t, 0, chat.calls)
}

func TestExtractSignals_ClampsConfidence(t *testing.T) {
	chat := &mockChat{responses: []string{`[
		{"text": "s1", "category": "financial", "sentiment": "negative", "confidence": 1.4},
		{"text": "s2", "category": "market", "sentiment": "positive", "confidence": -0.2}
	]`}}
	extractor := NewExtractor(chat, "gpt-4o")

	signals, err := extractor.ExtractSignals(context.Background(), analysisResult())
	require.NoError(t, err)
	require.Len(t, signals, 2)
	assert.Equal(t, 1.0, signals[0].Confidence)
	assert.Equal(t, 0.0, signals[1].Confidence)
}
