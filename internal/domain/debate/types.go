package debate

import "time"

// Recommendation labels produced by the synthesizer.
const (
	RecommendationStrongBuy  = "Strong Buy"
	RecommendationBuy        = "Buy"
	RecommendationHold       = "Hold"
	RecommendationSell       = "Sell"
	RecommendationStrongSell = "Strong Sell"
)

// Claim is a specific factual claim made by an analyst with evidence.
type Claim struct {
	Statement  string  `json:"statement"`
	Evidence   string  `json:"evidence"`
	Confidence float64 `json:"confidence"`
	DataSource string  `json:"data_source"`
}

// Catalyst is an event that could drive stock appreciation.
type Catalyst struct {
	Description     string  `json:"description"`
	Timeframe       string  `json:"timeframe"`
	Probability     float64 `json:"probability"`
	PotentialImpact string  `json:"potential_impact"`
}

// Risk is a downside factor identified by the bear analyst.
type Risk struct {
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Severity    string  `json:"severity"`
	Probability float64 `json:"probability"`
	Timeframe   string  `json:"timeframe"`
}

// Rebuttal is a counter to a specific opponent claim.
type Rebuttal struct {
	TargetClaim     string  `json:"target_claim"`
	CounterArgument string  `json:"counter_argument"`
	CounterEvidence string  `json:"counter_evidence"`
	Strength        float64 `json:"strength"`
}

// BullCase is the complete growth-side argument for a stock.
type BullCase struct {
	Ticker          string                 `json:"ticker"`
	Thesis          string                 `json:"thesis"`
	Catalysts       []Catalyst             `json:"catalysts"`
	KeyMetrics      map[string]interface{} `json:"key_metrics"`
	UpsideReasoning string                 `json:"upside_reasoning"`
	Confidence      float64                `json:"confidence"`
	Weaknesses      []string               `json:"weaknesses"`
	KeyClaims       []Claim                `json:"key_claims"`
}

// BearCase is the complete risk-side argument for a stock.
type BearCase struct {
	Ticker               string                 `json:"ticker"`
	Thesis               string                 `json:"thesis"`
	Risks                []Risk                 `json:"risks"`
	RedFlags             []string               `json:"red_flags"`
	KeyMetrics           map[string]interface{} `json:"key_metrics"`
	DownsideReasoning    string                 `json:"downside_reasoning"`
	Confidence           float64                `json:"confidence"`
	WhatWouldMakeBullish []string               `json:"what_would_make_bullish"`
	KeyClaims            []Claim                `json:"key_claims"`
}

// EvidenceGrade records how well a claim survived cross-examination.
type EvidenceGrade struct {
	Claim              string  `json:"claim"`
	SourceAgent        string  `json:"source_agent"`
	HasCounterEvidence bool    `json:"has_counter_evidence"`
	DataSupportScore   float64 `json:"data_support_score"`
	RebuttalStrength   float64 `json:"rebuttal_strength"`
	FinalCredibility   float64 `json:"final_credibility"`
}

// ScenarioProbabilities is the probability-weighted outcome split.
// The three values sum to approximately 1.0.
type ScenarioProbabilities struct {
	Bull float64 `json:"bull"`
	Base float64 `json:"base"`
	Bear float64 `json:"bear"`
}

// DebateSummary collects each side's thesis and the synthesis reasoning.
type DebateSummary struct {
	Bull      string `json:"bull"`
	Bear      string `json:"bear"`
	Synthesis string `json:"synthesis"`
}

// ArgumentStrength is the evidence-weighted quality of each side's case.
type ArgumentStrength struct {
	Bull float64 `json:"bull"`
	Bear float64 `json:"bear"`
}

// Verdict is the final synthesized judgment of the debate.
type Verdict struct {
	Ticker                string                `json:"ticker"`
	AnalysisID            string                `json:"analysis_id"`
	Timestamp             string                `json:"timestamp"`
	ScenarioProbabilities ScenarioProbabilities `json:"scenario_probabilities"`
	Recommendation        string                `json:"recommendation"`
	Conviction            float64               `json:"conviction"`
	ArgumentStrength      ArgumentStrength      `json:"argument_strength"`
	EvidenceGrades        []EvidenceGrade       `json:"evidence_grades"`
	DecisiveFactors       []string              `json:"decisive_factors"`
	UnresolvedQuestions   []string              `json:"unresolved_questions"`
	DebateSummary         DebateSummary         `json:"debate_summary"`
}

// Rebuttals pairs each side's counters from the rebuttal round.
type Rebuttals struct {
	BearToBull []Rebuttal `json:"bear_to_bull"`
	BullToBear []Rebuttal `json:"bull_to_bear"`
}

// Result is the complete outcome of one debate run.
type Result struct {
	Ticker       string     `json:"ticker"`
	AnalysisType string     `json:"analysis_type"`
	Verdict      *Verdict   `json:"verdict"`
	BullCase     *BullCase  `json:"bull_case"`
	BearCase     *BearCase  `json:"bear_case"`
	Rebuttals    *Rebuttals `json:"rebuttals"`
	Headlines    []string   `json:"headlines"`
	Error        string     `json:"error,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}
