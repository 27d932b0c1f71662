package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocksense/internal/adapters/kafka"
	domain "stocksense/internal/domain/analysis"
	domaindebate "stocksense/internal/domain/debate"
	"stocksense/internal/domain/thesis"
	"stocksense/internal/stream"
	"stocksense/pkg/errors"
)

type mockLoop struct {
	result *domain.Result
	err    error
	calls  int
}

func (m *mockLoop) Run(ctx context.Context, ticker string) (*domain.Result, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockDebateRunner struct {
	result *domaindebate.Result
	err    error
	calls  int
}

func (m *mockDebateRunner) Run(ctx context.Context, ticker string) (*domaindebate.Result, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockStreamer struct {
	events []stream.Event
}

func (m *mockStreamer) emit(ctx context.Context, ticker string) <-chan stream.Event {
	ch := make(chan stream.Event, len(m.events))
	for _, e := range m.events {
		ch <- e
	}
	close(ch)
	return ch
}

func (m *mockStreamer) StreamAnalysis(ctx context.Context, ticker string) <-chan stream.Event {
	return m.emit(ctx, ticker)
}

func (m *mockStreamer) StreamDebate(ctx context.Context, ticker string) <-chan stream.Event {
	return m.emit(ctx, ticker)
}

type memResults struct {
	record      *domain.Record
	debate      *domaindebate.Result
	tickers     []string
	saved       []*domain.Result
	deleted     int64
	lookupErr   error
	saveCalls   int
	deleteCalls int
}

func (m *memResults) SaveAnalysis(ctx context.Context, result *domain.Result) error {
	m.saveCalls++
	m.saved = append(m.saved, result)
	return nil
}

func (m *memResults) GetLatestAnalysis(ctx context.Context, ticker string) (*domain.Record, error) {
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	if m.record == nil {
		return nil, errors.ErrNotFound
	}
	return m.record, nil
}

func (m *memResults) GetLatestDebate(ctx context.Context, ticker string) (*domaindebate.Result, error) {
	if m.debate == nil {
		return nil, errors.ErrNotFound
	}
	return m.debate, nil
}

func (m *memResults) ListCachedTickers(ctx context.Context) ([]string, error) {
	return m.tickers, nil
}

func (m *memResults) DeleteAnalyses(ctx context.Context, ticker string) (int64, error) {
	m.deleteCalls++
	return m.deleted, nil
}

type memAlerts struct {
	alerts []thesis.Alert
	read   []string
}

func (m *memAlerts) ListUnread(ctx context.Context, userID string) ([]thesis.Alert, error) {
	var out []thesis.Alert
	for _, a := range m.alerts {
		if a.UserID == userID && !a.IsRead {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAlerts) MarkRead(ctx context.Context, alertID string) error {
	m.read = append(m.read, alertID)
	return nil
}

type mockMonitor struct {
	checked []*domain.Result
	users   []string
}

func (m *mockMonitor) CheckForUser(ctx context.Context, result *domain.Result, userID string) ([]thesis.Alert, error) {
	m.checked = append(m.checked, result)
	m.users = append(m.users, userID)
	return nil, nil
}

type fakeHotCache struct {
	entries map[string]*domain.Result
	sets    int
}

func newFakeHotCache() *fakeHotCache {
	return &fakeHotCache{entries: map[string]*domain.Result{}}
}

func (f *fakeHotCache) Get(ctx context.Context, key string, dest interface{}) error {
	cached, ok := f.entries[key]
	if !ok {
		return errors.ErrNotFound
	}
	*dest.(*domain.Result) = *cached
	return nil
}

func (f *fakeHotCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.sets++
	if result, ok := value.(*domain.Result); ok {
		f.entries[key] = result
	}
	return nil
}

type capturingPublisher struct {
	topics []string
	keys   []string
}

func (p *capturingPublisher) Publish(ctx context.Context, topic, key string, event interface{}) error {
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, key)
	return nil
}

type testDeps struct {
	loop     *mockLoop
	debate   *mockDebateRunner
	streamer *mockStreamer
	results  *memResults
	cache    *fakeHotCache
	alerts   *memAlerts
	monitor  *mockMonitor
	producer *capturingPublisher
}

func newTestRouter(t *testing.T, deps testDeps) *mux.Router {
	t.Helper()

	if deps.loop == nil {
		deps.loop = &mockLoop{result: &domain.Result{Ticker: "AAPL"}}
	}
	if deps.debate == nil {
		deps.debate = &mockDebateRunner{result: &domaindebate.Result{Ticker: "AAPL"}}
	}
	if deps.streamer == nil {
		deps.streamer = &mockStreamer{}
	}
	if deps.results == nil {
		deps.results = &memResults{}
	}
	if deps.alerts == nil {
		deps.alerts = &memAlerts{}
	}
	if deps.monitor == nil {
		deps.monitor = &mockMonitor{}
	}
	if deps.producer == nil {
		deps.producer = &capturingPublisher{}
	}
	if deps.cache == nil {
		deps.cache = newFakeHotCache()
	}

	h := NewHandlers(deps.loop, deps.debate, deps.streamer, deps.results, deps.cache, deps.alerts, deps.monitor, deps.producer)

	r := mux.NewRouter()
	r.HandleFunc("/analyze/debate/{ticker}", h.HandleDebate).Methods(http.MethodGet)
	r.HandleFunc("/analyze/debate/{ticker}/stream", h.HandleDebateStream).Methods(http.MethodGet)
	r.HandleFunc("/analyze/{ticker}", h.HandleAnalyze).Methods(http.MethodPost)
	r.HandleFunc("/analyze/{ticker}/stream", h.HandleAnalyzeStream).Methods(http.MethodGet)
	r.HandleFunc("/results/{ticker}", h.HandleGetResult).Methods(http.MethodGet)
	r.HandleFunc("/results/{ticker}/debate", h.HandleGetDebateResult).Methods(http.MethodGet)
	r.HandleFunc("/results/{ticker}", h.HandleDeleteResults).Methods(http.MethodDelete)
	r.HandleFunc("/cached-tickers", h.HandleCachedTickers).Methods(http.MethodGet)
	r.HandleFunc("/alerts", h.HandleListAlerts).Methods(http.MethodGet)
	r.HandleFunc("/alerts/{id}/read", h.HandleMarkAlertRead).Methods(http.MethodPost)
	return r
}

func doRequest(t *testing.T, r *mux.Router, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func doAuthedRequest(t *testing.T, r *mux.Router, method, target, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("X-User-ID", userID)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandleAnalyze_InvalidTickerReturns400(t *testing.T) {
	loop := &mockLoop{}
	r := newTestRouter(t, testDeps{loop: loop})

	rec := doRequest(t, r, http.MethodPost, "/analyze/TOOLONG")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, loop.calls)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "too long")
}

func TestHandleAnalyze_CacheHitSkipsLoop(t *testing.T) {
	payload, err := json.Marshal(&domain.Result{Ticker: "AAPL", Summary: "cached summary"})
	require.NoError(t, err)

	loop := &mockLoop{}
	results := &memResults{record: &domain.Record{
		Ticker:    "AAPL",
		Summary:   "cached summary",
		Payload:   payload,
		CreatedAt: time.Now(),
	}}
	r := newTestRouter(t, testDeps{loop: loop, results: results})

	rec := doRequest(t, r, http.MethodPost, "/analyze/aapl")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, loop.calls)

	var body analyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Cached)
	assert.Equal(t, "AAPL", body.Ticker)
	require.NotNil(t, body.Result)
	assert.Equal(t, "cached summary", body.Result.Summary)
}

func TestHandleAnalyze_ForceBypassesCache(t *testing.T) {
	payload, err := json.Marshal(&domain.Result{Ticker: "AAPL"})
	require.NoError(t, err)

	loop := &mockLoop{result: &domain.Result{Ticker: "AAPL", Summary: "fresh"}}
	results := &memResults{record: &domain.Record{Ticker: "AAPL", Payload: payload}}
	monitor := &mockMonitor{}
	producer := &capturingPublisher{}
	r := newTestRouter(t, testDeps{loop: loop, results: results, monitor: monitor, producer: producer})

	rec := doAuthedRequest(t, r, http.MethodPost, "/analyze/AAPL?force=true", "u1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, loop.calls)
	assert.Equal(t, 1, results.saveCalls)
	require.Len(t, monitor.checked, 1)
	assert.Equal(t, "AAPL", monitor.checked[0].Ticker)
	assert.Equal(t, []string{"u1"}, monitor.users)
	require.Len(t, producer.topics, 1)
	assert.Equal(t, kafka.TopicAnalysisCompleted, producer.topics[0])
	assert.Equal(t, "AAPL", producer.keys[0])

	var body analyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Cached)
	assert.Equal(t, "fresh", body.Result.Summary)
}

func TestHandleAnalyze_AnonymousSkipsKillCriteria(t *testing.T) {
	loop := &mockLoop{result: &domain.Result{Ticker: "AAPL"}}
	monitor := &mockMonitor{}
	r := newTestRouter(t, testDeps{loop: loop, monitor: monitor})

	rec := doRequest(t, r, http.MethodPost, "/analyze/AAPL")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, loop.calls)
	assert.Empty(t, monitor.checked)
}

func TestHandleAnalyze_HotCacheHitSkipsEverything(t *testing.T) {
	loop := &mockLoop{}
	cache := newFakeHotCache()
	cache.entries["analysis:AAPL"] = &domain.Result{Ticker: "AAPL", Summary: "hot"}
	results := &memResults{lookupErr: errors.New("postgres must not be hit")}
	r := newTestRouter(t, testDeps{loop: loop, cache: cache, results: results})

	rec := doRequest(t, r, http.MethodPost, "/analyze/AAPL")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, loop.calls)

	var body analyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Cached)
	assert.Equal(t, "hot", body.Result.Summary)
}

func TestHandleAnalyze_PostgresHitWarmsHotCache(t *testing.T) {
	payload, err := json.Marshal(&domain.Result{Ticker: "AAPL", Summary: "cold"})
	require.NoError(t, err)

	cache := newFakeHotCache()
	results := &memResults{record: &domain.Record{Ticker: "AAPL", Payload: payload}}
	r := newTestRouter(t, testDeps{cache: cache, results: results})

	rec := doRequest(t, r, http.MethodPost, "/analyze/AAPL")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, cache.sets)
	require.Contains(t, cache.entries, "analysis:AAPL")
	assert.Equal(t, "cold", cache.entries["analysis:AAPL"].Summary)
}

func TestHandleAnalyze_CacheMissRunsLoop(t *testing.T) {
	loop := &mockLoop{result: &domain.Result{Ticker: "MSFT", Summary: "fresh"}}
	results := &memResults{}
	r := newTestRouter(t, testDeps{loop: loop, results: results})

	rec := doRequest(t, r, http.MethodPost, "/analyze/MSFT")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, loop.calls)
	assert.Equal(t, 1, results.saveCalls)
}

func TestHandleGetResult_NotFoundReturns404(t *testing.T) {
	r := newTestRouter(t, testDeps{})

	rec := doRequest(t, r, http.MethodGet, "/results/AAPL")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetDebateResult(t *testing.T) {
	results := &memResults{debate: &domaindebate.Result{Ticker: "NVDA"}}
	r := newTestRouter(t, testDeps{results: results})

	rec := doRequest(t, r, http.MethodGet, "/results/NVDA/debate")

	require.Equal(t, http.StatusOK, rec.Code)

	var body domaindebate.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NVDA", body.Ticker)
}

func TestHandleDeleteResults(t *testing.T) {
	results := &memResults{deleted: 3}
	r := newTestRouter(t, testDeps{results: results})

	rec := doRequest(t, r, http.MethodDelete, "/results/AAPL")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, results.deleteCalls)

	var body deleteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(3), body.Deleted)
	assert.Equal(t, "AAPL", body.Ticker)
}

func TestHandleCachedTickers(t *testing.T) {
	results := &memResults{tickers: []string{"AAPL", "MSFT"}}
	r := newTestRouter(t, testDeps{results: results})

	rec := doRequest(t, r, http.MethodGet, "/cached-tickers")

	require.Equal(t, http.StatusOK, rec.Code)

	var body tickersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, []string{"AAPL", "MSFT"}, body.Tickers)
}

func TestHandleListAlerts_RequiresIdentity(t *testing.T) {
	r := newTestRouter(t, testDeps{})

	rec := doRequest(t, r, http.MethodGet, "/alerts")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleListAlerts_IgnoresUserIDParameter(t *testing.T) {
	alerts := &memAlerts{alerts: []thesis.Alert{
		{ID: "a1", UserID: "u2", Ticker: "MSFT"},
	}}
	r := newTestRouter(t, testDeps{alerts: alerts})

	// A guessed user_id without the identity header reads nothing
	rec := doRequest(t, r, http.MethodGet, "/alerts?user_id=u2")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doAuthedRequest(t, r, http.MethodGet, "/alerts?user_id=u2", "u1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body alertsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Zero(t, body.Count, "the query parameter never selects another user's alerts")
}

func TestHandleListAlerts_ReturnsUnread(t *testing.T) {
	alerts := &memAlerts{alerts: []thesis.Alert{
		{ID: "a1", UserID: "u1", Ticker: "AAPL", Message: "Kill Criteria Triggered: margins compress"},
		{ID: "a2", UserID: "u1", Ticker: "AAPL", IsRead: true},
		{ID: "a3", UserID: "u2", Ticker: "MSFT"},
	}}
	r := newTestRouter(t, testDeps{alerts: alerts})

	rec := doAuthedRequest(t, r, http.MethodGet, "/alerts", "u1")

	require.Equal(t, http.StatusOK, rec.Code)

	var body alertsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "a1", body.Alerts[0].ID)
}

func TestHandleMarkAlertRead(t *testing.T) {
	alerts := &memAlerts{}
	r := newTestRouter(t, testDeps{alerts: alerts})

	rec := doRequest(t, r, http.MethodPost, "/alerts/a1/read")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a1"}, alerts.read)
}

func TestHandleDebate_RunsPipeline(t *testing.T) {
	debate := &mockDebateRunner{result: &domaindebate.Result{Ticker: "AAPL"}}
	r := newTestRouter(t, testDeps{debate: debate})

	rec := doRequest(t, r, http.MethodGet, "/analyze/debate/AAPL")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, debate.calls)
}

func TestHandleDebate_InvalidTicker(t *testing.T) {
	debate := &mockDebateRunner{}
	r := newTestRouter(t, testDeps{debate: debate})

	rec := doRequest(t, r, http.MethodGet, "/analyze/debate/123")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, debate.calls)
}

func TestHandleAnalyzeStream_WritesSSEFrames(t *testing.T) {
	streamer := &mockStreamer{events: []stream.Event{
		stream.NewEvent(stream.TypeStarted, 0.0, "Starting analysis for AAPL"),
		stream.NewEvent(stream.TypeCompleted, 1.0, "Analysis complete"),
	}}
	r := newTestRouter(t, testDeps{streamer: streamer})

	rec := doRequest(t, r, http.MethodGet, "/analyze/AAPL/stream")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	body := rec.Body.String()
	frames := strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n")
	require.Len(t, frames, 2)
	for _, frame := range frames {
		assert.True(t, strings.HasPrefix(frame, "data: "), "frame %q missing data prefix", frame)
	}
	assert.Contains(t, body, `"type":"started"`)
	assert.Contains(t, body, `"type":"completed"`)
}
