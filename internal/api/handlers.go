package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"stocksense/internal/adapters/kafka"
	domain "stocksense/internal/domain/analysis"
	domaindebate "stocksense/internal/domain/debate"
	"stocksense/internal/domain/thesis"
	"stocksense/internal/stream"
	"stocksense/pkg/errors"
	"stocksense/pkg/logger"
)

// AnalysisRunner executes one full reasoning loop for a ticker.
type AnalysisRunner interface {
	Run(ctx context.Context, ticker string) (*domain.Result, error)
}

// DebateRunner executes one full debate for a ticker.
type DebateRunner interface {
	Run(ctx context.Context, ticker string) (*domaindebate.Result, error)
}

// Streamer produces progress events for the SSE endpoints.
type Streamer interface {
	StreamAnalysis(ctx context.Context, ticker string) <-chan stream.Event
	StreamDebate(ctx context.Context, ticker string) <-chan stream.Event
}

// ResultStore reads and writes persisted analysis snapshots.
type ResultStore interface {
	SaveAnalysis(ctx context.Context, result *domain.Result) error
	GetLatestAnalysis(ctx context.Context, ticker string) (*domain.Record, error)
	GetLatestDebate(ctx context.Context, ticker string) (*domaindebate.Result, error)
	ListCachedTickers(ctx context.Context) ([]string, error)
	DeleteAnalyses(ctx context.Context, ticker string) (int64, error)
}

// AlertStore reads kill criteria alerts for the API surface.
type AlertStore interface {
	ListUnread(ctx context.Context, userID string) ([]thesis.Alert, error)
	MarkRead(ctx context.Context, alertID string) error
}

// KillMonitor checks a fresh analysis against one user's active theses.
type KillMonitor interface {
	CheckForUser(ctx context.Context, result *domain.Result, userID string) ([]thesis.Alert, error)
}

// HotCache is the Redis TTL cache fronting the Postgres snapshots.
type HotCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// EventPublisher emits completion events to Kafka.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

// analysisCacheTTL bounds staleness of the Redis hot cache; the
// Postgres snapshot behind it is append-only and never expires.
const analysisCacheTTL = 15 * time.Minute

// Handlers implements the HTTP endpoints over the orchestration core.
// Store, cache, producer and monitor are optional; endpoints degrade to
// compute-only behavior when they are nil.
type Handlers struct {
	loop     AnalysisRunner
	debate   DebateRunner
	streamer Streamer
	results  ResultStore
	cache    HotCache
	alerts   AlertStore
	monitor  KillMonitor
	producer EventPublisher
	log      *logger.Logger
}

// NewHandlers wires the endpoint implementations.
func NewHandlers(
	loop AnalysisRunner,
	debate DebateRunner,
	streamer Streamer,
	results ResultStore,
	cache HotCache,
	alerts AlertStore,
	monitor KillMonitor,
	producer EventPublisher,
) *Handlers {
	return &Handlers{
		loop:     loop,
		debate:   debate,
		streamer: streamer,
		results:  results,
		cache:    cache,
		alerts:   alerts,
		monitor:  monitor,
		producer: producer,
		log:      logger.Get().With("component", "api"),
	}
}

type analyzeResponse struct {
	Ticker string         `json:"ticker"`
	Cached bool           `json:"cached"`
	Result *domain.Result `json:"result"`
}

type deleteResponse struct {
	Ticker  string `json:"ticker"`
	Deleted int64  `json:"deleted"`
}

type tickersResponse struct {
	Tickers []string `json:"tickers"`
	Count   int      `json:"count"`
}

type alertsResponse struct {
	Alerts []thesis.Alert `json:"alerts"`
	Count  int            `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleAnalyze runs (or serves a cached) analysis for a ticker.
// POST /analyze/{ticker}?force=true bypasses the cache. Kill criteria
// checks run only for authenticated callers (identity forwarded by the
// gateway); the background sweep covers everyone else.
func (h *Handlers) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	ticker, err := domain.ValidateTicker(mux.Vars(r)["ticker"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	force := r.URL.Query().Get("force") == "true"
	if !force {
		if cached := h.lookupCached(r.Context(), ticker); cached != nil {
			writeJSON(w, http.StatusOK, analyzeResponse{Ticker: ticker, Cached: true, Result: cached})
			return
		}
	}

	result, err := h.loop.Run(r.Context(), ticker)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	h.afterAnalysis(r.Context(), result, callerID(r))
	writeJSON(w, http.StatusOK, analyzeResponse{Ticker: ticker, Result: result})
}

// lookupCached tries the Redis hot cache first, then the latest
// Postgres snapshot, warming the hot cache on a Postgres hit.
func (h *Handlers) lookupCached(ctx context.Context, ticker string) *domain.Result {
	key := analysisCacheKey(ticker)

	if h.cache != nil {
		var cached domain.Result
		if err := h.cache.Get(ctx, key, &cached); err == nil {
			return &cached
		}
	}

	if h.results == nil {
		return nil
	}
	record, err := h.results.GetLatestAnalysis(ctx, ticker)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			h.log.Warnf("Cache lookup failed for %s, re-analyzing: %v", ticker, err)
		}
		return nil
	}

	var cached domain.Result
	if len(record.Payload) == 0 || json.Unmarshal(record.Payload, &cached) != nil {
		h.log.Warnf("Cached analysis for %s has unreadable payload, re-analyzing", ticker)
		return nil
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, key, &cached, analysisCacheTTL); err != nil {
			h.log.Warnf("Failed to warm hot cache for %s: %v", ticker, err)
		}
	}
	return &cached
}

// afterAnalysis persists, publishes and monitors a fresh result.
// All side effects are best effort; the analysis itself already
// succeeded.
func (h *Handlers) afterAnalysis(ctx context.Context, result *domain.Result, userID string) {
	if h.results != nil {
		if err := h.results.SaveAnalysis(ctx, result); err != nil {
			h.log.Errorf("Failed to persist analysis for %s: %v", result.Ticker, err)
		}
	}
	if h.cache != nil {
		if err := h.cache.Set(ctx, analysisCacheKey(result.Ticker), result, analysisCacheTTL); err != nil {
			h.log.Warnf("Failed to cache analysis for %s: %v", result.Ticker, err)
		}
	}
	if h.producer != nil {
		if err := h.producer.Publish(ctx, kafka.TopicAnalysisCompleted, result.Ticker, result); err != nil {
			h.log.Warnf("Failed to publish completion event for %s: %v", result.Ticker, err)
		}
	}
	if h.monitor != nil && userID != "" {
		if _, err := h.monitor.CheckForUser(ctx, result, userID); err != nil {
			h.log.Errorf("Kill criteria check failed for %s: %v", result.Ticker, err)
		}
	}
}

func analysisCacheKey(ticker string) string {
	return "analysis:" + ticker
}

// callerID returns the authenticated user's id as forwarded by the
// gateway, or empty for anonymous requests. Token verification lives
// in the gateway, not here.
func callerID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// HandleAnalyzeStream streams analysis progress as SSE.
// GET /analyze/{ticker}/stream
func (h *Handlers) HandleAnalyzeStream(w http.ResponseWriter, r *http.Request) {
	h.streamEvents(w, r, h.streamer.StreamAnalysis)
}

// HandleDebate runs a full bull/bear debate for a ticker.
// POST /debate/{ticker}
func (h *Handlers) HandleDebate(w http.ResponseWriter, r *http.Request) {
	ticker, err := domain.ValidateTicker(mux.Vars(r)["ticker"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	result, err := h.debate.Run(r.Context(), ticker)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleDebateStream streams debate progress as SSE.
// GET /debate/{ticker}/stream
func (h *Handlers) HandleDebateStream(w http.ResponseWriter, r *http.Request) {
	h.streamEvents(w, r, h.streamer.StreamDebate)
}

// streamEvents drains a generator channel into an SSE response.
// Ticker validation happens inside the generator, which reports it as
// a terminal error event so streaming clients see a uniform protocol.
func (h *Handlers) streamEvents(w http.ResponseWriter, r *http.Request, start func(context.Context, string) <-chan stream.Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range start(r.Context(), mux.Vars(r)["ticker"]) {
		if _, err := w.Write([]byte(event.SSE())); err != nil {
			h.log.Debugf("SSE client disconnected: %v", err)
			return
		}
		flusher.Flush()
	}
}

// HandleGetResult returns the latest persisted analysis for a ticker.
// GET /results/{ticker}
func (h *Handlers) HandleGetResult(w http.ResponseWriter, r *http.Request) {
	ticker, err := domain.ValidateTicker(mux.Vars(r)["ticker"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	record, err := h.results.GetLatestAnalysis(r.Context(), ticker)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// HandleGetDebateResult returns the latest persisted debate verdict.
// GET /results/{ticker}/debate
func (h *Handlers) HandleGetDebateResult(w http.ResponseWriter, r *http.Request) {
	ticker, err := domain.ValidateTicker(mux.Vars(r)["ticker"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	result, err := h.results.GetLatestDebate(r.Context(), ticker)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleDeleteResults removes all persisted analyses for a ticker.
// DELETE /results/{ticker}
func (h *Handlers) HandleDeleteResults(w http.ResponseWriter, r *http.Request) {
	ticker, err := domain.ValidateTicker(mux.Vars(r)["ticker"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	deleted, err := h.results.DeleteAnalyses(r.Context(), ticker)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, deleteResponse{Ticker: ticker, Deleted: deleted})
}

// HandleCachedTickers lists tickers with at least one stored analysis.
// GET /cached-tickers
func (h *Handlers) HandleCachedTickers(w http.ResponseWriter, r *http.Request) {
	tickers, err := h.results.ListCachedTickers(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, tickersResponse{Tickers: tickers, Count: len(tickers)})
}

// HandleListAlerts returns the caller's unread kill criteria alerts.
// Identity comes from the gateway header, never from the request, so a
// caller can only read their own alerts.
// GET /alerts
func (h *Handlers) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return
	}

	alerts, err := h.alerts.ListUnread(r.Context(), userID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, alertsResponse{Alerts: alerts, Count: len(alerts)})
}

// HandleMarkAlertRead flags an alert as acknowledged.
// POST /alerts/{id}/read
func (h *Handlers) HandleMarkAlertRead(w http.ResponseWriter, r *http.Request) {
	alertID := mux.Vars(r)["id"]
	if alertID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "alert id is required"})
		return
	}

	if err := h.alerts.MarkRead(r.Context(), alertID); err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, errors.ErrInvalidTicker), errors.Is(err, errors.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, errors.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write
	default:
		log.Errorf("Request failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
