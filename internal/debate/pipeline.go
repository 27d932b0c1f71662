package debate

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"stocksense/internal/adapters/kafka"
	"stocksense/internal/analysis"
	"stocksense/internal/collectors"
	domain "stocksense/internal/domain/analysis"
	"stocksense/internal/domain/debate"
	"stocksense/internal/metrics"
	"stocksense/pkg/logger"
)

// DebateStore persists completed debate results.
type DebateStore interface {
	SaveDebate(ctx context.Context, result *debate.Result) error
}

// EventPublisher emits completion events.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

// Evidence is the shared data both analysts argue over.
type Evidence struct {
	Headlines    []string
	Prices       []domain.OHLCV
	Fundamentals *domain.Fundamentals
	Sentiment    *domain.SentimentResult
}

// Empty reports whether no usable evidence was collected.
func (e *Evidence) Empty() bool {
	return len(e.Headlines) == 0 && len(e.Prices) == 0 &&
		(e.Fundamentals == nil || len(e.Fundamentals.Info) == 0)
}

// Pipeline runs the three-phase debate: opening cases in parallel,
// cross-rebuttals in parallel, then synthesis.
type Pipeline struct {
	news     collectors.NewsProvider
	market   collectors.MarketProvider
	analyzer *analysis.Analyzer
	bull     *BullAnalyst
	bear     *BearAnalyst
	synth    *Synthesizer
	store    DebateStore
	producer EventPublisher
	newsDays int
	period   string
	log      *logger.Logger
}

// NewPipeline wires the debate stages. Store and producer may be nil
// for callers that handle persistence themselves.
func NewPipeline(
	news collectors.NewsProvider,
	market collectors.MarketProvider,
	analyzer *analysis.Analyzer,
	bull *BullAnalyst,
	bear *BearAnalyst,
	synth *Synthesizer,
	store DebateStore,
	producer EventPublisher,
) *Pipeline {
	return &Pipeline{
		news:     news,
		market:   market,
		analyzer: analyzer,
		bull:     bull,
		bear:     bear,
		synth:    synth,
		store:    store,
		producer: producer,
		newsDays: 7,
		period:   "1mo",
		log:      logger.Get().With("component", "debate_pipeline"),
	}
}

// CollectData gathers headlines, prices, and fundamentals concurrently.
// Individual source failures are tolerated; the debate argues over
// whatever arrived.
func (p *Pipeline) CollectData(ctx context.Context, ticker string) *Evidence {
	ev := &Evidence{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		headlines, err := p.news.GetNews(gctx, ticker, p.newsDays)
		if err != nil {
			p.log.Warnf("News fetch failed for %s: %v", ticker, err)
			return nil
		}
		ev.Headlines = headlines
		return nil
	})
	g.Go(func() error {
		prices, err := p.market.GetPriceHistory(gctx, ticker, p.period)
		if err != nil {
			p.log.Warnf("Price fetch failed for %s: %v", ticker, err)
			return nil
		}
		ev.Prices = prices
		return nil
	})
	g.Go(func() error {
		fundamentals, err := p.market.GetFundamentals(gctx, ticker)
		if err != nil {
			p.log.Warnf("Fundamentals fetch failed for %s: %v", ticker, err)
			return nil
		}
		ev.Fundamentals = fundamentals
		return nil
	})
	_ = g.Wait()

	return ev
}

// AnalyzeSentiment fills in the sentiment view over the headlines.
func (p *Pipeline) AnalyzeSentiment(ctx context.Context, ticker string, ev *Evidence) {
	sentiment, err := p.analyzer.AnalyzeSentiment(ctx, ticker, ev.Headlines)
	if err != nil {
		p.log.Warnf("Sentiment analysis failed for %s: %v", ticker, err)
		return
	}
	ev.Sentiment = sentiment
}

// OpeningRound drafts both cases concurrently.
func (p *Pipeline) OpeningRound(ctx context.Context, ticker string, ev *Evidence) (*debate.BullCase, *debate.BearCase) {
	start := time.Now()
	defer func() {
		metrics.DebatePhaseDuration.WithLabelValues("opening").Observe(time.Since(start).Seconds())
	}()

	var bullCase *debate.BullCase
	var bearCase *debate.BearCase

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bullCase = p.bull.BuildCase(gctx, ticker, ev.Sentiment, ev.Headlines, ev.Fundamentals)
		return nil
	})
	g.Go(func() error {
		bearCase = p.bear.BuildCase(gctx, ticker, ev.Sentiment, ev.Headlines, ev.Fundamentals)
		return nil
	})
	_ = g.Wait()

	return bullCase, bearCase
}

// RebuttalRound runs both cross-examinations concurrently.
func (p *Pipeline) RebuttalRound(ctx context.Context, ticker string, bullCase *debate.BullCase, bearCase *debate.BearCase) *debate.Rebuttals {
	start := time.Now()
	defer func() {
		metrics.DebatePhaseDuration.WithLabelValues("rebuttal").Observe(time.Since(start).Seconds())
	}()

	rebuttals := &debate.Rebuttals{
		BearToBull: []debate.Rebuttal{},
		BullToBear: []debate.Rebuttal{},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := p.bear.Rebut(gctx, ticker, bullCase.KeyClaims)
		if err != nil {
			p.log.Warnf("Bear rebuttals failed for %s: %v", ticker, err)
			return nil
		}
		rebuttals.BearToBull = r
		return nil
	})
	g.Go(func() error {
		r, err := p.bull.Rebut(gctx, ticker, bearCase.KeyClaims)
		if err != nil {
			p.log.Warnf("Bull rebuttals failed for %s: %v", ticker, err)
			return nil
		}
		rebuttals.BullToBear = r
		return nil
	})
	_ = g.Wait()

	return rebuttals
}

// Synthesize renders the final verdict.
func (p *Pipeline) Synthesize(ctx context.Context, ticker, analysisID string, bullCase *debate.BullCase, bearCase *debate.BearCase, rebuttals *debate.Rebuttals) *debate.Verdict {
	return p.synth.Synthesize(ctx, ticker, analysisID, bullCase, bearCase, rebuttals)
}

// Run executes the complete debate for a ticker. The result is always
// non-nil: with no evidence at all the verdict degrades to a neutral
// Hold with placeholder cases rather than failing.
func (p *Pipeline) Run(ctx context.Context, ticker string) (*debate.Result, error) {
	normalized, err := domain.ValidateTicker(ticker)
	if err != nil {
		return nil, err
	}
	ticker = normalized

	ev := p.CollectData(ctx, ticker)

	result := &debate.Result{
		Ticker:       ticker,
		AnalysisType: "debate",
		Headlines:    ev.Headlines,
		Timestamp:    time.Now().UTC(),
	}

	if ev.Empty() {
		p.log.Warnf("No evidence collected for %s, returning fallback verdict", ticker)
		result.BullCase = fallbackBullCase(ticker, ev.Fundamentals)
		result.BearCase = fallbackBearCase(ticker, ev.Fundamentals)
		result.Rebuttals = &debate.Rebuttals{BearToBull: []debate.Rebuttal{}, BullToBear: []debate.Rebuttal{}}
		result.Verdict = FallbackVerdict(ticker)
		result.Error = "no data available for debate"
		metrics.DebateRuns.WithLabelValues("fallback").Inc()
		return result, nil
	}

	p.AnalyzeSentiment(ctx, ticker, ev)

	bullCase, bearCase := p.OpeningRound(ctx, ticker, ev)
	rebuttals := p.RebuttalRound(ctx, ticker, bullCase, bearCase)
	verdict := p.Synthesize(ctx, ticker, "", bullCase, bearCase, rebuttals)

	result.BullCase = bullCase
	result.BearCase = bearCase
	result.Rebuttals = rebuttals
	result.Verdict = verdict

	p.Persist(ctx, result)
	metrics.DebateRuns.WithLabelValues("success").Inc()
	return result, nil
}

// Persist saves the completed result and publishes the completion
// event. Both are best-effort; a dead store never voids a finished
// debate.
func (p *Pipeline) Persist(ctx context.Context, result *debate.Result) {
	if p.store != nil {
		if err := p.store.SaveDebate(ctx, result); err != nil {
			p.log.Errorf("Failed to persist debate for %s: %v", result.Ticker, err)
		}
	}
	if p.producer != nil {
		if err := p.producer.Publish(ctx, kafka.TopicDebateCompleted, result.Ticker, result); err != nil {
			p.log.Errorf("Failed to publish debate completion for %s: %v", result.Ticker, err)
			metrics.KafkaMessages.WithLabelValues(kafka.TopicDebateCompleted, "error").Inc()
		} else {
			metrics.KafkaMessages.WithLabelValues(kafka.TopicDebateCompleted, "success").Inc()
		}
	}
}
