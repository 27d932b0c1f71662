package analysis

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Sentiment labels produced by the analyzer.
const (
	SentimentBullish          = "Bullish"
	SentimentBearish          = "Bearish"
	SentimentNeutral          = "Neutral"
	SentimentInsufficientData = "Insufficient Data"
)

// Potential impact labels.
const (
	ImpactStrongPositive   = "Strong Positive"
	ImpactModeratePositive = "Moderate Positive"
	ImpactMinimal          = "Minimal"
	ImpactModerateNegative = "Moderate Negative"
	ImpactStrongNegative   = "Strong Negative"
	ImpactUncertain        = "Uncertain"
)

// OHLCV is a single day of price history.
type OHLCV struct {
	Date   string          `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// Fundamentals is a snapshot of financial statements and key ratios.
// Info holds flattened metrics (pe_ratio, revenue_growth, debt_to_equity...).
type Fundamentals struct {
	Ticker          string                 `json:"ticker"`
	Info            map[string]interface{} `json:"info"`
	IncomeStatement map[string]interface{} `json:"income_statement,omitempty"`
	BalanceSheet    map[string]interface{} `json:"balance_sheet,omitempty"`
	CashFlow        map[string]interface{} `json:"cash_flow,omitempty"`
}

// HeadlineSentiment is the per-headline classification.
type HeadlineSentiment struct {
	Headline    string   `json:"headline"`
	Sentiment   string   `json:"sentiment"`
	Confidence  float64  `json:"confidence"`
	Reasoning   string   `json:"reasoning"`
	KeyEntities []string `json:"key_entities,omitempty"`
}

// KeyTheme is a recurring theme identified across headlines.
type KeyTheme struct {
	Theme              string `json:"theme"`
	SentimentDirection string `json:"sentiment_direction"`
	HeadlineCount      int    `json:"headline_count"`
	Summary            string `json:"summary"`
}

// SentimentResult is the structured sentiment analysis output.
type SentimentResult struct {
	OverallSentiment      string              `json:"overall_sentiment"`
	OverallConfidence     float64             `json:"overall_confidence"`
	ConfidenceReasoning   string              `json:"confidence_reasoning"`
	BullishCount          int                 `json:"bullish_count"`
	BearishCount          int                 `json:"bearish_count"`
	NeutralCount          int                 `json:"neutral_count"`
	InsufficientDataCount int                 `json:"insufficient_data_count"`
	HeadlineAnalyses      []HeadlineSentiment `json:"headline_analyses"`
	KeyThemes             []KeyTheme          `json:"key_themes"`
	PotentialImpact       string              `json:"potential_impact"`
	RisksIdentified       []string            `json:"risks_identified"`
	InformationGaps       []string            `json:"information_gaps"`
}

// Skeptic verdict labels.
const (
	SkepticDisagree              = "Disagree"
	SkepticPartiallyDisagree     = "Partially Disagree"
	SkepticAgreeWithReservations = "Agree with Reservations"
	SkepticAgree                 = "Agree"
)

// SkepticCritique is a specific critique of the primary analysis.
type SkepticCritique struct {
	Critique             string `json:"critique"`
	AssumptionChallenged string `json:"assumption_challenged"`
	Evidence             string `json:"evidence"`
}

// SkepticBearCase is a bear scenario surfaced by the skeptic.
type SkepticBearCase struct {
	Argument string `json:"argument"`
	Trigger  string `json:"trigger"`
	Severity string `json:"severity"`
}

// SkepticResult is the contrarian critique of the primary analysis.
type SkepticResult struct {
	SkepticSentiment    string            `json:"skeptic_sentiment"`
	PrimaryDisagreement string            `json:"primary_disagreement"`
	Critiques           []SkepticCritique `json:"critiques"`
	BearCases           []SkepticBearCase `json:"bear_cases"`
	WouldChangeMind     []string          `json:"would_change_mind"`
	HiddenRisks         []string          `json:"hidden_risks"`
	SkepticConfidence   float64           `json:"skeptic_confidence"`
	Report              string            `json:"skeptic_report"`
}

// DataSource attributes a slice of the analysis to its origin.
type DataSource struct {
	SourceType      string `json:"source_type"`
	SourceName      string `json:"source_name"`
	DataFreshness   string `json:"data_freshness"`
	ReliabilityTier string `json:"reliability_tier"`
}

// Metadata describes how the analysis was produced.
type Metadata struct {
	Ticker            string       `json:"ticker"`
	AnalysisTimestamp string       `json:"analysis_timestamp"`
	DataSources       []DataSource `json:"data_sources"`
	HeadlinesAnalyzed int          `json:"headlines_analyzed"`
	PriceDataPoints   int          `json:"price_data_points"`
	KnownLimitations  []string     `json:"known_limitations,omitempty"`
}

// Result is the complete outcome of one analysis run.
type Result struct {
	Ticker          string           `json:"ticker"`
	Summary         string           `json:"summary"`
	SentimentReport string           `json:"sentiment_report"`
	Headlines       []string         `json:"headlines"`
	Prices          []OHLCV          `json:"price_data"`
	Fundamentals    *Fundamentals    `json:"fundamental_data,omitempty"`
	Sentiment       *SentimentResult `json:"sentiment,omitempty"`
	Skeptic         *SkepticResult   `json:"skeptic,omitempty"`
	ReasoningSteps  []string         `json:"reasoning_steps"`
	ToolsUsed       []string         `json:"tools_used"`
	Iterations      int              `json:"iterations"`
	Error           string           `json:"error,omitempty"`
	Metadata        *Metadata        `json:"metadata,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
}

// Record is a persisted analysis snapshot. Rows are append-only; the
// latest row per ticker is the current cached analysis.
type Record struct {
	ID              int64           `db:"id" json:"id"`
	Ticker          string          `db:"ticker" json:"ticker"`
	Summary         string          `db:"analysis_summary" json:"summary"`
	SentimentReport string          `db:"sentiment_report" json:"sentiment_report"`
	Payload         json.RawMessage `db:"payload" json:"payload,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"timestamp"`
}
