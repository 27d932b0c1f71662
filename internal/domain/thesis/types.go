package thesis

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// Thesis statuses.
const (
	StatusActive   = "active"
	StatusClosed   = "closed"
	StatusArchived = "archived"
)

// Signal categories.
const (
	CategoryFinancial   = "financial"
	CategoryOperational = "operational"
	CategoryMarket      = "market"
	CategoryCompetitive = "competitive"
	CategoryManagement  = "management"
)

// Alert statuses tracked inside the alert data payload.
const (
	AlertStatusPending      = "pending"
	AlertStatusDismissed    = "dismissed"
	AlertStatusAcknowledged = "acknowledged"
	AlertStatusActed        = "acted"
)

// AlertTypeKillCriteria marks alerts raised by the kill criteria monitor.
const AlertTypeKillCriteria = "kill_criteria"

// Thesis is a user's investment thesis with exit conditions.
type Thesis struct {
	ID           string         `db:"id" json:"id"`
	UserID       string         `db:"user_id" json:"user_id"`
	Ticker       string         `db:"ticker" json:"ticker"`
	Status       string         `db:"status" json:"status"`
	Summary      string         `db:"summary" json:"summary"`
	KillCriteria pq.StringArray `db:"kill_criteria" json:"kill_criteria"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// Signal is a concrete observation extracted from an analysis.
type Signal struct {
	Text       string  `json:"text"`
	Category   string  `json:"category"`
	Sentiment  string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
}

// Match pairs a signal with a kill criterion it may trigger.
// CriteriaIndex points into the criteria list the matcher was given so
// callers that batch criteria from several theses can attribute hits.
type Match struct {
	CriteriaIndex   int     `json:"criteria_index"`
	Criteria        string  `json:"criteria"`
	Signal          string  `json:"signal"`
	MatchConfidence float64 `json:"match_confidence"`
	Explanation     string  `json:"explanation"`
}

// Alert is a persisted notification that a kill criterion may have fired.
type Alert struct {
	ID        string          `db:"id" json:"id"`
	UserID    string          `db:"user_id" json:"user_id"`
	ThesisID  string          `db:"thesis_id" json:"thesis_id"`
	Ticker    string          `db:"ticker" json:"ticker"`
	AlertType string          `db:"alert_type" json:"alert_type"`
	Message   string          `db:"message" json:"message"`
	Data      json.RawMessage `db:"data" json:"data"`
	IsRead    bool            `db:"is_read" json:"is_read"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// AlertData is the structured payload stored on a kill criteria alert.
type AlertData struct {
	TriggeredCriteria  string  `json:"triggered_criteria"`
	TriggeringSignal   string  `json:"triggering_signal"`
	MatchConfidence    float64 `json:"match_confidence"`
	AnalysisSentiment  string  `json:"analysis_sentiment"`
	AnalysisConfidence float64 `json:"analysis_confidence"`
	AnalysisSummary    string  `json:"analysis_summary"`
	Status             string  `json:"status"`
	Source             string  `json:"source,omitempty"`
}
