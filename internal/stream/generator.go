package stream

import (
	"context"
	"fmt"
	"time"

	"stocksense/internal/adapters/kafka"
	"stocksense/internal/analysis"
	"stocksense/internal/collectors"
	"stocksense/internal/debate"
	domainanalysis "stocksense/internal/domain/analysis"
	domaindebate "stocksense/internal/domain/debate"
	"stocksense/internal/metrics"
	"stocksense/pkg/logger"
)

// AnalysisStore persists completed analyses.
type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, result *domainanalysis.Result) error
}

// EventPublisher emits completion events.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

// Generator produces event streams for live analysis and debate runs.
// Each stream executes the fixed pipeline directly so progress maps to
// known checkpoints instead of unbounded reasoning iterations.
type Generator struct {
	news     collectors.NewsProvider
	market   collectors.MarketProvider
	analyzer *analysis.Analyzer
	skeptic  *analysis.Skeptic
	pipeline *debate.Pipeline
	store    AnalysisStore
	producer EventPublisher
	newsDays int
	period   string
	log      *logger.Logger
}

// NewGenerator wires the streaming runner. Store and producer may be
// nil; results are then only streamed, not persisted.
func NewGenerator(
	news collectors.NewsProvider,
	market collectors.MarketProvider,
	analyzer *analysis.Analyzer,
	skeptic *analysis.Skeptic,
	pipeline *debate.Pipeline,
	store AnalysisStore,
	producer EventPublisher,
) *Generator {
	return &Generator{
		news:     news,
		market:   market,
		analyzer: analyzer,
		skeptic:  skeptic,
		pipeline: pipeline,
		store:    store,
		producer: producer,
		newsDays: 7,
		period:   "1mo",
		log:      logger.Get().With("component", "stream_generator"),
	}
}

// send delivers an event unless the consumer has gone away.
func send(ctx context.Context, ch chan<- Event, e Event) bool {
	select {
	case ch <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

// StreamAnalysis runs the analysis sequence and streams progress. The
// channel closes after exactly one terminal event (completed or error).
// Cancelling the context stops the run.
func (g *Generator) StreamAnalysis(ctx context.Context, ticker string) <-chan Event {
	ch := make(chan Event, 8)

	go func() {
		defer close(ch)
		metrics.StreamsActive.WithLabelValues("analyze").Inc()
		defer metrics.StreamsActive.WithLabelValues("analyze").Dec()

		normalized, err := domainanalysis.ValidateTicker(ticker)
		if err != nil {
			send(ctx, ch, NewEvent(TypeError, 0.0, err.Error()))
			return
		}
		ticker := normalized

		if !send(ctx, ch, NewEvent(TypeStarted, 0.0, fmt.Sprintf("Starting analysis of %s", ticker))) {
			return
		}

		// News
		if !send(ctx, ch, NewEvent(TypeToolStarted, 0.05, "Fetching news headlines").WithTool("fetch_news_headlines")) {
			return
		}
		headlines, err := g.news.GetNews(ctx, ticker, g.newsDays)
		if err != nil {
			g.log.Warnf("Stream news fetch failed for %s: %v", ticker, err)
			headlines = nil
		}
		if !send(ctx, ch, NewEvent(TypeToolCompleted, 0.25, fmt.Sprintf("Found %d headlines", len(headlines))).
			WithTool("fetch_news_headlines")) {
			return
		}

		// Prices
		if !send(ctx, ch, NewEvent(TypeToolStarted, 0.30, "Fetching price data").WithTool("fetch_price_data")) {
			return
		}
		prices, err := g.market.GetPriceHistory(ctx, ticker, g.period)
		if err != nil {
			g.log.Warnf("Stream price fetch failed for %s: %v", ticker, err)
			prices = nil
		}
		if !send(ctx, ch, NewEvent(TypeToolCompleted, 0.45, fmt.Sprintf("Fetched %d daily bars", len(prices))).
			WithTool("fetch_price_data")) {
			return
		}

		// Sentiment
		if !send(ctx, ch, NewEvent(TypeToolStarted, 0.50, "Analyzing sentiment").WithTool("analyze_sentiment")) {
			return
		}
		sentiment, err := g.analyzer.AnalyzeSentiment(ctx, ticker, headlines)
		if err != nil {
			send(ctx, ch, NewEvent(TypeError, 0.50, fmt.Sprintf("Sentiment analysis failed: %v", err)))
			return
		}
		if !send(ctx, ch, NewEvent(TypeToolCompleted, 0.70,
			fmt.Sprintf("Sentiment: %s", sentiment.OverallSentiment)).WithTool("analyze_sentiment")) {
			return
		}

		// Skeptic
		if !send(ctx, ch, NewEvent(TypeToolStarted, 0.75, "Generating skeptic critique").WithTool("generate_skeptic_critique")) {
			return
		}
		skeptic, err := g.skeptic.Critique(ctx, ticker, headlines, sentiment)
		if err != nil {
			send(ctx, ch, NewEvent(TypeError, 0.75, fmt.Sprintf("Skeptic critique failed: %v", err)))
			return
		}
		if !send(ctx, ch, NewEvent(TypeToolCompleted, 0.90,
			fmt.Sprintf("Skeptic verdict: %s", skeptic.SkepticSentiment)).WithTool("generate_skeptic_critique")) {
			return
		}

		result := &domainanalysis.Result{
			Ticker:          ticker,
			Summary:         buildStreamSummary(ticker, sentiment, skeptic),
			SentimentReport: analysis.FormatReport(ticker, sentiment),
			Headlines:       headlines,
			Prices:          prices,
			Sentiment:       sentiment,
			Skeptic:         skeptic,
			ToolsUsed: []string{
				"fetch_news_headlines", "fetch_price_data",
				"analyze_sentiment", "generate_skeptic_critique",
			},
			Timestamp: time.Now().UTC(),
		}

		if !send(ctx, ch, NewEvent(TypeCompleted, 1.0, "Analysis complete").WithData(result)) {
			return
		}

		// Persist after the terminal event so a slow store never stalls
		// the stream.
		if g.store != nil {
			if err := g.store.SaveAnalysis(ctx, result); err != nil {
				g.log.Errorf("Failed to persist streamed analysis for %s: %v", ticker, err)
			}
		}
		if g.producer != nil {
			if err := g.producer.Publish(ctx, kafka.TopicAnalysisCompleted, ticker, result); err != nil {
				g.log.Errorf("Failed to publish streamed analysis for %s: %v", ticker, err)
			}
		}
	}()

	return ch
}

// StreamDebate runs the debate pipeline and streams phase progress.
func (g *Generator) StreamDebate(ctx context.Context, ticker string) <-chan Event {
	ch := make(chan Event, 8)

	go func() {
		defer close(ch)
		metrics.StreamsActive.WithLabelValues("debate").Inc()
		defer metrics.StreamsActive.WithLabelValues("debate").Dec()

		normalized, err := domainanalysis.ValidateTicker(ticker)
		if err != nil {
			send(ctx, ch, NewEvent(TypeError, 0.0, err.Error()))
			return
		}
		ticker := normalized

		if !send(ctx, ch, NewEvent(TypeDebateStarted, 0.0, fmt.Sprintf("Starting debate over %s", ticker))) {
			return
		}

		if !send(ctx, ch, NewEvent(TypeProgress, 0.05, "Collecting data")) {
			return
		}
		ev := g.pipeline.CollectData(ctx, ticker)
		if !send(ctx, ch, NewEvent(TypeProgress, 0.15, fmt.Sprintf("Found %d headlines", len(ev.Headlines)))) {
			return
		}

		if !send(ctx, ch, NewEvent(TypeProgress, 0.18, "Analyzing sentiment")) {
			return
		}
		g.pipeline.AnalyzeSentiment(ctx, ticker, ev)
		sentimentMsg := "Sentiment unavailable"
		if ev.Sentiment != nil {
			sentimentMsg = fmt.Sprintf("Sentiment: %s", ev.Sentiment.OverallSentiment)
		}
		if !send(ctx, ch, NewEvent(TypeProgress, 0.25, sentimentMsg)) {
			return
		}

		if !send(ctx, ch, NewEvent(TypeBullDrafting, 0.30, "Bull analyst drafting case")) {
			return
		}
		if !send(ctx, ch, NewEvent(TypeBearDrafting, 0.30, "Bear analyst drafting case")) {
			return
		}
		bullCase, bearCase := g.pipeline.OpeningRound(ctx, ticker, ev)

		if !send(ctx, ch, NewEvent(TypeBullComplete, 0.50,
			fmt.Sprintf("Bull case complete: %.0f%% confident", bullCase.Confidence*100)).
			WithData(map[string]string{"thesis": truncate(bullCase.Thesis, 100)})) {
			return
		}
		if !send(ctx, ch, NewEvent(TypeBearComplete, 0.55,
			fmt.Sprintf("Bear case complete: %.0f%% confident", bearCase.Confidence*100)).
			WithData(map[string]string{"thesis": truncate(bearCase.Thesis, 100)})) {
			return
		}

		if !send(ctx, ch, NewEvent(TypeRebuttalRound, 0.60, "Cross-examination underway")) {
			return
		}
		rebuttals := g.pipeline.RebuttalRound(ctx, ticker, bullCase, bearCase)
		if !send(ctx, ch, NewEvent(TypeProgress, 0.75,
			fmt.Sprintf("Rebuttals exchanged: %d vs bull, %d vs bear", len(rebuttals.BearToBull), len(rebuttals.BullToBear)))) {
			return
		}

		if !send(ctx, ch, NewEvent(TypeSynthesisStarted, 0.80, "Synthesizing verdict")) {
			return
		}
		verdict := g.pipeline.Synthesize(ctx, ticker, "", bullCase, bearCase, rebuttals)

		result := &domaindebate.Result{
			Ticker:       ticker,
			AnalysisType: "debate",
			Verdict:      verdict,
			BullCase:     bullCase,
			BearCase:     bearCase,
			Rebuttals:    rebuttals,
			Headlines:    ev.Headlines,
			Timestamp:    time.Now().UTC(),
		}

		if !send(ctx, ch, NewEvent(TypeDebateCompleted, 1.0,
			fmt.Sprintf("Verdict: %s (conviction %.2f)", verdict.Recommendation, verdict.Conviction)).
			WithData(result)) {
			return
		}

		g.pipeline.Persist(ctx, result)
	}()

	return ch
}

func buildStreamSummary(ticker string, sentiment *domainanalysis.SentimentResult, skeptic *domainanalysis.SkepticResult) string {
	summary := fmt.Sprintf("Stock Analysis Summary for %s:\n", ticker)
	if sentiment != nil {
		summary += fmt.Sprintf("Sentiment: %s (confidence %.2f).\n", sentiment.OverallSentiment, sentiment.OverallConfidence)
	}
	if skeptic != nil {
		summary += fmt.Sprintf("Skeptic verdict: %s.", skeptic.SkepticSentiment)
	}
	return summary
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
