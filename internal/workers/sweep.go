package workers

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"stocksense/internal/adapters/config"
	"stocksense/internal/adapters/redis"
	domain "stocksense/internal/domain/analysis"
	"stocksense/internal/monitor"
	"stocksense/internal/react"
)

// TickerSource lists the tickers the sweep must re-analyze.
type TickerSource interface {
	ActiveTickers(ctx context.Context) ([]string, error)
}

// SweepWorker periodically re-analyzes every ticker covered by an
// active thesis and runs the kill criteria monitor over the fresh
// result. Each ticker is analyzed once per sweep regardless of how many
// users hold a thesis on it; the monitor fans alerts out per thesis.
type SweepWorker struct {
	*BaseWorker
	tickers     TickerSource
	loop        *react.Loop
	monitor     *monitor.Service
	cache       *redis.Client
	debounceTTL time.Duration
	concurrency int
}

// NewSweepWorker creates the periodic kill criteria sweep.
func NewSweepWorker(tickers TickerSource, loop *react.Loop, mon *monitor.Service, cache *redis.Client, cfg config.MonitorConfig) *SweepWorker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	debounceTTL := cfg.DebounceTTL
	if debounceTTL <= 0 {
		debounceTTL = time.Hour
	}
	return &SweepWorker{
		BaseWorker:  NewBaseWorker("kill_criteria_sweep", cfg.SweepInterval, cfg.SweepEnabled),
		tickers:     tickers,
		loop:        loop,
		monitor:     mon,
		cache:       cache,
		debounceTTL: debounceTTL,
		concurrency: concurrency,
	}
}

// Run executes one sweep over every monitored ticker.
func (w *SweepWorker) Run(ctx context.Context) error {
	start := time.Now()

	tickers, err := w.tickers.ActiveTickers(ctx)
	if err != nil {
		w.RecordError(err, time.Since(start))
		return err
	}
	if len(tickers) == 0 {
		w.RecordRun(time.Since(start))
		return nil
	}

	w.Log().Infof("Sweeping %d monitored tickers", len(tickers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	for _, ticker := range tickers {
		ticker := ticker
		g.Go(func() error {
			w.sweepTicker(gctx, ticker)
			return nil
		})
	}
	_ = g.Wait()

	w.RecordRun(time.Since(start))
	return nil
}

func (w *SweepWorker) sweepTicker(ctx context.Context, ticker string) {
	// Debounce: skip tickers analyzed within the TTL, including by
	// other instances.
	fresh, err := w.cache.SetNX(ctx, "sweep:debounce:"+ticker, time.Now().Unix(), w.debounceTTL)
	if err != nil {
		w.Log().Warnf("Debounce check failed for %s, proceeding: %v", ticker, err)
	} else if !fresh {
		w.Log().Debugf("Skipping %s, analyzed within debounce window", ticker)
		return
	}

	// One analyzer per ticker across the fleet
	lockKey := "sweep:" + ticker
	acquired, err := w.cache.AcquireLock(ctx, lockKey, 10*time.Minute)
	if err != nil {
		w.Log().Warnf("Lock acquisition failed for %s: %v", ticker, err)
		return
	}
	if !acquired {
		w.Log().Debugf("Skipping %s, another instance holds the lock", ticker)
		return
	}
	defer func() {
		if err := w.cache.ReleaseLock(context.WithoutCancel(ctx), lockKey); err != nil {
			w.Log().Warnf("Failed to release lock for %s: %v", ticker, err)
		}
	}()

	result, err := w.loop.Run(ctx, ticker)
	if err != nil {
		w.Log().Errorf("Sweep analysis failed for %s: %v", ticker, err)
		return
	}

	w.checkResult(ctx, result)
}

func (w *SweepWorker) checkResult(ctx context.Context, result *domain.Result) {
	alerts, err := w.monitor.Check(ctx, result)
	if err != nil {
		w.Log().Errorf("Kill criteria check failed for %s: %v", result.Ticker, err)
		return
	}
	if len(alerts) > 0 {
		w.Log().Infof("Sweep raised %d alerts for %s", len(alerts), result.Ticker)
	}
}
