package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Reasoning loop metrics
	LoopRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksense_loop_runs_total",
			Help: "Total number of reasoning loop runs",
		},
		[]string{"status"}, // status: complete|max_iterations|error
	)

	LoopIterations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stocksense_loop_iterations",
			Help:    "Iterations consumed per reasoning loop run",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
		},
		[]string{"status"},
	)

	// Tool metrics
	ToolExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksense_tool_executions_total",
			Help: "Total number of tool executions",
		},
		[]string{"tool", "status"}, // status: success|error|cached
	)

	ToolLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stocksense_tool_latency_seconds",
			Help:    "Tool execution latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"tool"},
	)

	// LLM metrics
	LLMCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksense_llm_calls_total",
			Help: "Total number of LLM calls",
		},
		[]string{"component", "model", "status"}, // status: success|error|rate_limited
	)

	LLMLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stocksense_llm_latency_seconds",
			Help:    "LLM call latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"component", "model"},
	)

	LLMTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksense_llm_tokens_total",
			Help: "Total tokens used by LLM calls",
		},
		[]string{"component", "model", "type"}, // type: input|output
	)

	// Debate metrics
	DebateRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksense_debate_runs_total",
			Help: "Total number of debate pipeline runs",
		},
		[]string{"status"}, // status: success|fallback|error
	)

	DebatePhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stocksense_debate_phase_duration_seconds",
			Help:    "Debate phase duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"phase"}, // phase: opening|rebuttal|synthesis
	)

	// Monitor metrics
	AlertsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksense_alerts_created_total",
			Help: "Total number of kill criteria alerts created",
		},
		[]string{"ticker"},
	)

	SignalsExtracted = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stocksense_signals_extracted",
			Help:    "Signals extracted per analysis",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8},
		},
		[]string{"ticker"},
	)

	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksense_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stocksense_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stocksense_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	// HTTP metrics
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksense_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stocksense_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"route", "method"},
	)

	// Database metrics
	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksense_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"database", "operation", "status"}, // database: postgres|redis
	)

	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stocksense_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"database", "operation"},
	)

	// System metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksense_kafka_messages_total",
			Help: "Total Kafka messages produced",
		},
		[]string{"topic", "status"},
	)

	StreamsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stocksense_streams_active",
			Help: "Current number of active SSE streams",
		},
		[]string{"kind"}, // kind: analyze|debate
	)
)

// Init registers all metrics with Prometheus
func Init() {
	// Reasoning loop metrics
	prometheus.MustRegister(LoopRuns)
	prometheus.MustRegister(LoopIterations)

	// Tool metrics
	prometheus.MustRegister(ToolExecutions)
	prometheus.MustRegister(ToolLatency)

	// LLM metrics
	prometheus.MustRegister(LLMCalls)
	prometheus.MustRegister(LLMLatency)
	prometheus.MustRegister(LLMTokens)

	// Debate metrics
	prometheus.MustRegister(DebateRuns)
	prometheus.MustRegister(DebatePhaseDuration)

	// Monitor metrics
	prometheus.MustRegister(AlertsCreated)
	prometheus.MustRegister(SignalsExtracted)

	// Worker metrics
	prometheus.MustRegister(WorkerExecutions)
	prometheus.MustRegister(WorkerDuration)
	prometheus.MustRegister(WorkerLastRun)

	// HTTP metrics
	prometheus.MustRegister(HTTPRequests)
	prometheus.MustRegister(HTTPDuration)

	// Database metrics
	prometheus.MustRegister(DBQueries)
	prometheus.MustRegister(DBQueryDuration)

	// System metrics
	prometheus.MustRegister(KafkaMessages)
	prometheus.MustRegister(StreamsActive)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordToolExecution records a tool execution
func RecordToolExecution(tool string, latency time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	ToolExecutions.WithLabelValues(tool, status).Inc()
	ToolLatency.WithLabelValues(tool).Observe(latency.Seconds())
}

// RecordLLMCall records an LLM invocation
func RecordLLMCall(component, model string, latency time.Duration, inputTokens, outputTokens int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	LLMCalls.WithLabelValues(component, model, status).Inc()
	LLMLatency.WithLabelValues(component, model).Observe(latency.Seconds())

	if inputTokens > 0 {
		LLMTokens.WithLabelValues(component, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		LLMTokens.WithLabelValues(component, model, "output").Add(float64(outputTokens))
	}
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	WorkerExecutions.WithLabelValues(worker, status).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordDBQuery records a database query
func RecordDBQuery(database, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	DBQueries.WithLabelValues(database, operation, status).Inc()
	DBQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}
