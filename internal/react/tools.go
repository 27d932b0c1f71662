package react

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stocksense/internal/adapters/ai"
	"stocksense/internal/analysis"
	"stocksense/internal/collectors"
	domain "stocksense/internal/domain/analysis"
	"stocksense/internal/metrics"
	"stocksense/pkg/logger"
)

// Tool identifies one of the closed set of actions the loop can take.
type Tool string

const (
	ToolFetchNews         Tool = "fetch_news_headlines"
	ToolFetchPrices       Tool = "fetch_price_data"
	ToolFetchFundamentals Tool = "fetch_fundamentals"
	ToolAnalyzeSentiment  Tool = "analyze_sentiment"
	ToolCritiqueSentiment Tool = "generate_skeptic_critique"
)

// AllTools lists every tool in the required execution order.
var AllTools = []Tool{
	ToolFetchNews,
	ToolFetchPrices,
	ToolFetchFundamentals,
	ToolAnalyzeSentiment,
	ToolCritiqueSentiment,
}

var toolDescriptions = map[Tool]string{
	ToolFetchNews:         "Fetch recent news headlines for the ticker",
	ToolFetchPrices:       "Fetch daily OHLCV price history for the ticker",
	ToolFetchFundamentals: "Fetch fundamental data and key ratios for the ticker",
	ToolAnalyzeSentiment:  "Run structured sentiment analysis over the fetched headlines",
	ToolCritiqueSentiment: "Generate a skeptic critique challenging the sentiment analysis",
}

// ToolDefinitions returns the function calling schema for every tool.
// None of the tools take arguments; the ticker is fixed for the run.
func ToolDefinitions() []ai.ToolDefinition {
	defs := make([]ai.ToolDefinition, 0, len(AllTools))
	for _, tool := range AllTools {
		defs = append(defs, ai.ToolDefinition{
			Type: "function",
			Function: ai.FunctionDefinition{
				Name:        string(tool),
				Description: toolDescriptions[tool],
				Parameters: map[string]interface{}{
					"type":       "object",
					"properties": map[string]interface{}{},
				},
			},
		})
	}
	return defs
}

// Toolset executes tools against the collectors and analysis engines.
type Toolset struct {
	news     collectors.NewsProvider
	market   collectors.MarketProvider
	analyzer *analysis.Analyzer
	skeptic  *analysis.Skeptic
	newsDays int
	period   string
	log      *logger.Logger
}

// NewToolset wires the tool executors.
func NewToolset(news collectors.NewsProvider, market collectors.MarketProvider, analyzer *analysis.Analyzer, skeptic *analysis.Skeptic) *Toolset {
	return &Toolset{
		news:     news,
		market:   market,
		analyzer: analyzer,
		skeptic:  skeptic,
		newsDays: 7,
		period:   "1mo",
		log:      logger.Get().With("component", "react_tools"),
	}
}

type observation struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func (o observation) String() string {
	b, err := json.Marshal(o)
	if err != nil {
		return `{"success":false,"error":"failed to encode observation"}`
	}
	return string(b)
}

// Execute runs one tool against the current state and returns the next
// state plus a JSON observation for the transcript. A tool that has
// already produced its data short-circuits with the cached result
// instead of running again. Tool failures become structured error
// observations; they never abort the loop.
func (t *Toolset) Execute(ctx context.Context, tool Tool, state State) (State, string) {
	start := time.Now()
	next, obs, err := t.execute(ctx, tool, state)
	metrics.RecordToolExecution(string(tool), time.Since(start), err)
	if err != nil {
		t.log.Warnf("Tool %s failed for %s: %v", tool, state.Ticker, err)
	}
	return next, obs
}

func (t *Toolset) execute(ctx context.Context, tool Tool, state State) (State, string, error) {
	switch tool {
	case ToolFetchNews:
		if state.HeadlinesFetched {
			return state, observation{Success: true, Message: "Headlines already fetched", Data: state.Headlines}.String(), nil
		}
		headlines, err := t.news.GetNews(ctx, state.Ticker, t.newsDays)
		if err != nil {
			// A failed fetch still marks the tool as run; the loop
			// proceeds on empty headlines rather than retrying a dead
			// source within the iteration budget.
			return state.WithHeadlines(nil), observation{Success: false, Error: err.Error()}.String(), err
		}
		return state.WithHeadlines(headlines), observation{
			Success: true,
			Message: fmt.Sprintf("Fetched %d headlines", len(headlines)),
			Data:    headlines,
		}.String(), nil

	case ToolFetchPrices:
		if state.PricesFetched {
			return state, observation{Success: true, Message: "Price data already fetched", Data: priceSummary(state.Prices)}.String(), nil
		}
		prices, err := t.market.GetPriceHistory(ctx, state.Ticker, t.period)
		if err != nil {
			// Same policy as news: record the attempt, continue on
			// empty data.
			return state.WithPrices(nil), observation{Success: false, Error: err.Error()}.String(), err
		}
		return state.WithPrices(prices), observation{
			Success: true,
			Message: fmt.Sprintf("Fetched %d daily bars", len(prices)),
			Data:    priceSummary(prices),
		}.String(), nil

	case ToolFetchFundamentals:
		if state.FundamentalsFetched {
			return state, observation{Success: true, Message: "Fundamental data already fetched"}.String(), nil
		}
		fundamentals, err := t.market.GetFundamentals(ctx, state.Ticker)
		if err != nil {
			// ETFs and funds commonly have no fundamentals; record the
			// attempt so the sequence can proceed.
			return state.WithFundamentalsFailed(), observation{Success: false, Error: err.Error()}.String(), err
		}
		return state.WithFundamentals(fundamentals), observation{
			Success: true,
			Message: fmt.Sprintf("Fetched %d fundamental metrics", len(fundamentals.Info)),
			Data:    fundamentals.Info,
		}.String(), nil

	case ToolAnalyzeSentiment:
		if state.Sentiment != nil {
			return state, observation{Success: true, Message: "Sentiment analysis already completed", Data: state.Sentiment}.String(), nil
		}
		sentiment, err := t.analyzer.AnalyzeSentiment(ctx, state.Ticker, state.Headlines)
		if err != nil {
			return state, observation{Success: false, Error: err.Error()}.String(), err
		}
		return state.WithSentiment(sentiment), observation{Success: true, Message: "Sentiment analysis complete", Data: sentiment}.String(), nil

	case ToolCritiqueSentiment:
		if state.Skeptic != nil {
			return state, observation{Success: true, Message: "Skeptic critique already completed", Data: state.Skeptic}.String(), nil
		}
		skeptic, err := t.skeptic.Critique(ctx, state.Ticker, state.Headlines, state.Sentiment)
		if err != nil {
			return state, observation{Success: false, Error: err.Error()}.String(), err
		}
		return state.WithSkeptic(skeptic), observation{Success: true, Message: "Skeptic critique complete", Data: skeptic}.String(), nil

	default:
		return state, observation{
			Success: false,
			Error:   fmt.Sprintf("unknown tool: %s", tool),
		}.String(), fmt.Errorf("unknown tool: %s", tool)
	}
}

// priceSummary keeps observations small; the full series stays in state.
func priceSummary(prices []domain.OHLCV) map[string]interface{} {
	if len(prices) == 0 {
		return map[string]interface{}{"bars": 0}
	}
	first := prices[0]
	last := prices[len(prices)-1]
	return map[string]interface{}{
		"bars":        len(prices),
		"first_date":  first.Date,
		"last_date":   last.Date,
		"first_close": first.Close.String(),
		"last_close":  last.Close.String(),
	}
}
