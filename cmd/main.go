package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	aiprovider "stocksense/internal/adapters/ai"
	"stocksense/internal/adapters/config"
	"stocksense/internal/adapters/embeddings"
	"stocksense/internal/adapters/errors/noop"
	"stocksense/internal/adapters/errors/sentry"
	"stocksense/internal/adapters/kafka"
	"stocksense/internal/adapters/postgres"
	"stocksense/internal/adapters/redis"
	"stocksense/internal/analysis"
	"stocksense/internal/api"
	"stocksense/internal/api/health"
	"stocksense/internal/collectors"
	"stocksense/internal/debate"
	"stocksense/internal/metrics"
	"stocksense/internal/monitor"
	"stocksense/internal/react"
	postgresrepo "stocksense/internal/repository/postgres"
	"stocksense/internal/stream"
	"stocksense/internal/workers"
	"stocksense/pkg/errors"
	"stocksense/pkg/logger"
)

const version = "0.1.0"

func main() {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	if err := initLogger(cfg); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s %s in %s mode", cfg.App.Name, version, cfg.App.Env)

	// Initialize error tracker
	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	// Register Prometheus metrics
	metrics.Init()

	// Databases
	pg, err := postgres.NewClient(cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer pg.Close()

	metrics.RegisterCustomCollector(metrics.NewCustomCollector(log, pg.DB()))

	cache, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer cache.Close()

	// Kafka producer
	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers: cfg.Kafka.Brokers,
		Async:   true,
	})
	defer producer.Close()

	// LLM provider with rate limiting and retries
	limiter := aiprovider.GetRateLimiter(aiprovider.ProviderNameOpenAI, aiprovider.ProviderRateLimitConfig{
		Enabled:      true,
		ReqPerMinute: 120,
		Burst:        20,
	})
	retry := aiprovider.RetryConfig{
		MaxAttempts: cfg.AI.MaxRetries,
		BaseDelay:   cfg.AI.RetryBaseDelay,
		MaxDelay:    cfg.AI.RetryMaxDelay,
	}
	provider := aiprovider.NewOpenAIProvider(cfg.AI.OpenAIKey, cfg.AI.RequestTimeout, limiter, retry)

	// Embeddings back the rebuttal pairing; the synthesizer falls back
	// to lexical matching without them
	var embedder embeddings.Provider
	if e, err := embeddings.NewOpenAIProvider(cfg.AI.OpenAIKey, cfg.AI.EmbeddingModel, cfg.AI.RequestTimeout); err != nil {
		log.Warnf("Embeddings unavailable, rebuttal pairing degrades to lexical matching: %v", err)
	} else {
		embedder = e
	}

	// Data collectors
	news := collectors.NewNewsAPIClient(cfg.News)
	market := collectors.NewYahooClient(cfg.Market)

	// Analysis core
	analyzer := analysis.NewAnalyzer(provider, cfg.AI)
	skeptic := analysis.NewSkeptic(provider, cfg.AI)
	toolset := react.NewToolset(news, market, analyzer, skeptic)
	loop := react.NewLoop(provider, toolset, cfg.AI)

	// Repositories
	analysisRepo := postgresrepo.NewAnalysisRepository(pg.DB())
	thesisRepo := postgresrepo.NewThesisRepository(pg.DB())
	alertRepo := postgresrepo.NewAlertRepository(pg.DB())

	// Debate pipeline
	bull := debate.NewBullAnalyst(provider, cfg.AI.Model)
	bear := debate.NewBearAnalyst(provider, cfg.AI.Model)
	synth := debate.NewSynthesizer(provider, embedder, cfg.AI.Model)
	pipeline := debate.NewPipeline(news, market, analyzer, bull, bear, synth, analysisRepo, producer)

	// Kill criteria monitor
	extractor := monitor.NewExtractor(provider, cfg.AI.Model)
	matcher := monitor.NewMatcher(provider, cfg.AI.Model)
	monitorSvc := monitor.NewService(extractor, matcher, thesisRepo, alertRepo, producer, cfg.Monitor)

	// Streaming generator
	generator := stream.NewGenerator(news, market, analyzer, skeptic, pipeline, analysisRepo, producer)

	// Background sweep
	scheduler := workers.NewScheduler()
	scheduler.RegisterWorker(workers.NewSweepWorker(thesisRepo, loop, monitorSvc, cache, cfg.Monitor))

	// HTTP surface
	handlers := api.NewHandlers(loop, pipeline, generator, analysisRepo, cache, alertRepo, monitorSvc, producer)
	healthHandler := health.New(log, pg.DB(), cache.Client(), cfg.App.Name, version)
	rateLimiter := api.NewRateLimiter(cache, cfg.RateLimit)
	server := api.NewServer(api.ServerConfig{
		HTTP:        cfg.HTTP,
		ServiceName: cfg.App.Name,
		Version:     version,
	}, handlers, healthHandler, rateLimiter, log)

	log.Info("System initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start workers: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	waitForShutdown(cancel, cfg, scheduler, server, serverErr, errorTracker, log)
}

// loadConfig loads application configuration from environment
func loadConfig() (*config.Config, error) {
	return config.Load()
}

// initLogger initializes structured logging
func initLogger(cfg *config.Config) error {
	return logger.Init(cfg.App.LogLevel, cfg.App.Env)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func waitForShutdown(
	cancel context.CancelFunc,
	cfg *config.Config,
	scheduler *workers.Scheduler,
	server *api.Server,
	serverErr <-chan error,
	errorTracker errors.Tracker,
	log *logger.Logger,
) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Shutting down...")
	case err := <-serverErr:
		if err != nil {
			log.Errorf("HTTP server failed: %v", err)
		}
	}

	cancel()

	if err := scheduler.Stop(); err != nil {
		log.Warnf("Worker shutdown incomplete: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("HTTP server shutdown incomplete: %v", err)
	}

	// Flush error tracker
	if errorTracker != nil {
		if err := errorTracker.Flush(shutdownCtx); err != nil {
			log.Warnf("Failed to flush error tracker: %v", err)
		}
	}

	log.Info("Shutdown complete")
}
