package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"stocksense/internal/adapters/config"
	"stocksense/internal/api/health"
	"stocksense/internal/metrics"
	"stocksense/pkg/errors"
	"stocksense/pkg/logger"
)

// ServerConfig contains configuration for HTTP server
type ServerConfig struct {
	HTTP        config.HTTPConfig
	ServiceName string
	Version     string
}

// Server wraps HTTP server with lifecycle management
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// NewServer creates and configures HTTP server with all routes
func NewServer(cfg ServerConfig, h *Handlers, healthHandler *health.Handler, limiter *RateLimiter, log *logger.Logger) *Server {
	r := mux.NewRouter()
	r.Use(MetricsMiddleware)

	// Health check endpoints (Kubernetes probes)
	r.HandleFunc("/health", healthHandler.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", healthHandler.HandleReadiness).Methods(http.MethodGet)
	r.HandleFunc("/live", healthHandler.HandleLiveness).Methods(http.MethodGet)

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// Domain routes sit behind the rate limiter; probes and metrics do not
	limited := r.NewRoute().Subrouter()
	if limiter != nil {
		limited.Use(limiter.Middleware)
	}

	// Debate routes register before the {ticker} captures so the
	// literal "debate" segment never binds as a ticker
	limited.HandleFunc("/analyze/debate/{ticker}", h.HandleDebate).Methods(http.MethodGet)
	limited.HandleFunc("/analyze/debate/{ticker}/stream", h.HandleDebateStream).Methods(http.MethodGet)
	limited.HandleFunc("/analyze/{ticker}", h.HandleAnalyze).Methods(http.MethodPost)
	limited.HandleFunc("/analyze/{ticker}/stream", h.HandleAnalyzeStream).Methods(http.MethodGet)
	limited.HandleFunc("/results/{ticker}", h.HandleGetResult).Methods(http.MethodGet)
	limited.HandleFunc("/results/{ticker}/debate", h.HandleGetDebateResult).Methods(http.MethodGet)
	limited.HandleFunc("/results/{ticker}", h.HandleDeleteResults).Methods(http.MethodDelete)
	limited.HandleFunc("/cached-tickers", h.HandleCachedTickers).Methods(http.MethodGet)
	limited.HandleFunc("/alerts", h.HandleListAlerts).Methods(http.MethodGet)
	limited.HandleFunc("/alerts/{id}/read", h.HandleMarkAlertRead).Methods(http.MethodPost)

	// Root endpoint (service info)
	r.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"service":"%s","version":"%s","status":"running"}`,
			cfg.ServiceName, cfg.Version)
	}).Methods(http.MethodGet)

	log.Infof("HTTP server configured on %s", cfg.HTTP.Addr())

	// WriteTimeout must outlast the slowest SSE stream; a full debate
	// with rebuttals can hold the connection open for minutes
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.WriteTimeout,
	}

	return &Server{
		httpServer: httpServer,
		log:        log,
	}
}

// Start begins listening for HTTP requests
// Blocks until server is stopped or encounters an error
func (s *Server) Start() error {
	s.log.Infof("Starting HTTP server on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http server failed")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
// Waits for active connections to complete within timeout
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Stopping HTTP server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "http server shutdown failed")
	}

	s.log.Info("✓ HTTP server stopped")
	return nil
}
