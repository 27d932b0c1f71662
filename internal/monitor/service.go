package monitor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"stocksense/internal/adapters/config"
	"stocksense/internal/adapters/kafka"
	domain "stocksense/internal/domain/analysis"
	"stocksense/internal/domain/thesis"
	"stocksense/internal/metrics"
	"stocksense/pkg/errors"
	"stocksense/pkg/logger"
)

// ThesisStore loads the theses a fresh analysis must be checked against.
type ThesisStore interface {
	ActiveWithKillCriteria(ctx context.Context, ticker string) ([]thesis.Thesis, error)
}

// AlertStore persists triggered alerts.
type AlertStore interface {
	CreateAlert(ctx context.Context, alert *thesis.Alert) error
}

// EventPublisher emits alert events.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

// Service checks fresh analyses against every active thesis's kill
// criteria and raises alerts for matches above the threshold.
type Service struct {
	extractor *Extractor
	matcher   *Matcher
	theses    ThesisStore
	alerts    AlertStore
	producer  EventPublisher
	threshold float64
	log       *logger.Logger
}

// NewService wires the monitor. The producer may be nil.
func NewService(extractor *Extractor, matcher *Matcher, theses ThesisStore, alerts AlertStore, producer EventPublisher, cfg config.MonitorConfig) *Service {
	threshold := cfg.MatchThreshold
	if threshold <= 0 {
		threshold = 0.6
	}
	return &Service{
		extractor: extractor,
		matcher:   matcher,
		theses:    theses,
		alerts:    alerts,
		producer:  producer,
		threshold: threshold,
		log:       logger.Get().With("component", "kill_criteria_monitor"),
	}
}

// Threshold returns the minimum match confidence that raises an alert.
func (s *Service) Threshold() float64 {
	return s.threshold
}

// Check runs the monitor for one analysis result across every user
// holding an active thesis on the ticker. Used by the background sweep.
func (s *Service) Check(ctx context.Context, result *domain.Result) ([]thesis.Alert, error) {
	return s.check(ctx, result, "")
}

// CheckForUser restricts the monitor to one user's theses. Used by the
// synchronous path right after an authenticated analysis request.
func (s *Service) CheckForUser(ctx context.Context, result *domain.Result, userID string) ([]thesis.Alert, error) {
	return s.check(ctx, result, userID)
}

// check skips users without an active thesis carrying kill criteria
// entirely, including the signal extraction call. Matching is batched
// per user: one model call covers all of that user's criteria for the
// ticker.
func (s *Service) check(ctx context.Context, result *domain.Result, userID string) ([]thesis.Alert, error) {
	theses, err := s.theses.ActiveWithKillCriteria(ctx, result.Ticker)
	if err != nil {
		return nil, errors.Wrap(err, "load active theses")
	}
	if userID != "" {
		filtered := theses[:0]
		for _, th := range theses {
			if th.UserID == userID {
				filtered = append(filtered, th)
			}
		}
		theses = filtered
	}
	if len(theses) == 0 {
		return nil, nil
	}

	signals, err := s.extractor.ExtractSignals(ctx, result)
	if err != nil {
		return nil, err
	}
	if len(signals) == 0 {
		return nil, nil
	}

	var created []thesis.Alert
	for _, batch := range groupByUser(theses) {
		criteria := make([]string, 0, len(batch.owners))
		for _, th := range batch.theses {
			criteria = append(criteria, th.KillCriteria...)
		}

		matches, err := s.matcher.MatchSignals(ctx, criteria, signals)
		if err != nil {
			s.log.Errorf("Criteria matching failed for user %s: %v", batch.userID, err)
			continue
		}

		for _, match := range matches {
			if match.MatchConfidence < s.threshold {
				continue
			}
			alert, err := s.createAlert(ctx, batch.owners[match.CriteriaIndex], match, result)
			if err != nil {
				s.log.Errorf("Failed to create alert for user %s: %v", batch.userID, err)
				continue
			}
			created = append(created, *alert)
		}
	}

	if len(created) > 0 {
		s.log.Infof("Raised %d kill criteria alerts for %s", len(created), result.Ticker)
	}
	return created, nil
}

// userBatch carries one user's theses plus a flattened owner index
// parallel to the concatenated criteria list handed to the matcher.
type userBatch struct {
	userID string
	theses []thesis.Thesis
	owners []thesis.Thesis
}

func groupByUser(theses []thesis.Thesis) []userBatch {
	index := make(map[string]int)
	var batches []userBatch
	for _, th := range theses {
		i, ok := index[th.UserID]
		if !ok {
			i = len(batches)
			index[th.UserID] = i
			batches = append(batches, userBatch{userID: th.UserID})
		}
		batches[i].theses = append(batches[i].theses, th)
		for range th.KillCriteria {
			batches[i].owners = append(batches[i].owners, th)
		}
	}
	return batches
}

func (s *Service) createAlert(ctx context.Context, th thesis.Thesis, match thesis.Match, result *domain.Result) (*thesis.Alert, error) {
	sentiment := ""
	confidence := 0.0
	if result.Sentiment != nil {
		sentiment = result.Sentiment.OverallSentiment
		confidence = result.Sentiment.OverallConfidence
	}

	data, err := json.Marshal(thesis.AlertData{
		TriggeredCriteria:  match.Criteria,
		TriggeringSignal:   match.Signal,
		MatchConfidence:    match.MatchConfidence,
		AnalysisSentiment:  sentiment,
		AnalysisConfidence: confidence,
		AnalysisSummary:    truncate(result.Summary, 500),
		Status:             thesis.AlertStatusPending,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode alert data")
	}

	alert := &thesis.Alert{
		ID:        uuid.NewString(),
		UserID:    th.UserID,
		ThesisID:  th.ID,
		Ticker:    th.Ticker,
		AlertType: thesis.AlertTypeKillCriteria,
		Message:   "Kill Criteria Triggered: " + match.Criteria,
		Data:      data,
		IsRead:    false,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.alerts.CreateAlert(ctx, alert); err != nil {
		return nil, err
	}
	metrics.AlertsCreated.WithLabelValues(th.Ticker).Inc()

	if s.producer != nil {
		if err := s.producer.Publish(ctx, kafka.TopicAlerts, th.Ticker, alert); err != nil {
			s.log.Errorf("Failed to publish alert %s: %v", alert.ID, err)
			metrics.KafkaMessages.WithLabelValues(kafka.TopicAlerts, "error").Inc()
		} else {
			metrics.KafkaMessages.WithLabelValues(kafka.TopicAlerts, "success").Inc()
		}
	}

	return alert, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
