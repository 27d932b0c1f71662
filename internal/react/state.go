package react

import (
	domain "stocksense/internal/domain/analysis"
)

// State is the accumulated evidence for one run. Values are never
// mutated in place; each With method returns a copy so every loop
// iteration observes a consistent snapshot.
type State struct {
	Ticker string

	Headlines        []string
	HeadlinesFetched bool

	Prices        []domain.OHLCV
	PricesFetched bool

	Fundamentals        *domain.Fundamentals
	FundamentalsFetched bool
	FundamentalsFailed  bool

	Sentiment *domain.SentimentResult
	Skeptic   *domain.SkepticResult

	ToolsUsed      []string
	ReasoningSteps []string
}

// NewState starts an empty run for the ticker.
func NewState(ticker string) State {
	return State{Ticker: ticker}
}

func (s State) WithHeadlines(headlines []string) State {
	s.Headlines = headlines
	s.HeadlinesFetched = true
	return s
}

func (s State) WithPrices(prices []domain.OHLCV) State {
	s.Prices = prices
	s.PricesFetched = true
	return s
}

func (s State) WithFundamentals(f *domain.Fundamentals) State {
	s.Fundamentals = f
	s.FundamentalsFetched = true
	return s
}

// WithFundamentalsFailed records that fundamentals were attempted but
// unavailable, which satisfies the sequence for ETFs and funds.
func (s State) WithFundamentalsFailed() State {
	s.FundamentalsFetched = true
	s.FundamentalsFailed = true
	return s
}

func (s State) WithSentiment(r *domain.SentimentResult) State {
	s.Sentiment = r
	return s
}

func (s State) WithSkeptic(r *domain.SkepticResult) State {
	s.Skeptic = r
	return s
}

// WithToolUsed appends to a fresh slice so earlier snapshots keep
// their own history.
func (s State) WithToolUsed(tool Tool) State {
	used := make([]string, len(s.ToolsUsed), len(s.ToolsUsed)+1)
	copy(used, s.ToolsUsed)
	s.ToolsUsed = append(used, string(tool))
	return s
}

func (s State) WithReasoningStep(step string) State {
	steps := make([]string, len(s.ReasoningSteps), len(s.ReasoningSteps)+1)
	copy(steps, s.ReasoningSteps)
	s.ReasoningSteps = append(steps, step)
	return s
}

// Complete reports whether every step of the required sequence has run.
func (s State) Complete() bool {
	return s.HeadlinesFetched &&
		s.PricesFetched &&
		s.FundamentalsFetched &&
		s.Sentiment != nil &&
		s.Skeptic != nil
}

// DistinctTools counts unique tools used so far.
func (s State) DistinctTools() int {
	seen := map[string]struct{}{}
	for _, t := range s.ToolsUsed {
		seen[t] = struct{}{}
	}
	return len(seen)
}
