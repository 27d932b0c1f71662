package metrics

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"stocksense/pkg/logger"
)

// CustomCollector exposes database-derived gauges on scrape instead of
// tracking them incrementally, so restarts never skew the counts.
type CustomCollector struct {
	log      *logger.Logger
	postgres *sqlx.DB

	analysesStored  *prometheus.Desc
	debatesStored   *prometheus.Desc
	tickersCached   *prometheus.Desc
	activeTheses    *prometheus.Desc
	unreadAlerts    *prometheus.Desc
	alertsLast24h   *prometheus.Desc
	analysesLast24h *prometheus.Desc
}

// NewCustomCollector creates a collector over the primary database
func NewCustomCollector(log *logger.Logger, postgres *sqlx.DB) *CustomCollector {
	return &CustomCollector{
		log:      log,
		postgres: postgres,

		analysesStored: prometheus.NewDesc(
			"stocksense_analyses_stored_total",
			"Total number of persisted analysis snapshots",
			nil, nil,
		),
		debatesStored: prometheus.NewDesc(
			"stocksense_debates_stored_total",
			"Total number of persisted debate verdicts",
			nil, nil,
		),
		tickersCached: prometheus.NewDesc(
			"stocksense_tickers_cached",
			"Distinct tickers with at least one stored analysis",
			nil, nil,
		),
		activeTheses: prometheus.NewDesc(
			"stocksense_active_theses",
			"Active theses with kill criteria under monitoring",
			nil, nil,
		),
		unreadAlerts: prometheus.NewDesc(
			"stocksense_unread_alerts",
			"Kill criteria alerts not yet acknowledged",
			nil, nil,
		),
		alertsLast24h: prometheus.NewDesc(
			"stocksense_alerts_24h",
			"Alerts created in the last 24 hours",
			nil, nil,
		),
		analysesLast24h: prometheus.NewDesc(
			"stocksense_analyses_24h",
			"Analyses persisted in the last 24 hours",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *CustomCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.analysesStored
	ch <- c.debatesStored
	ch <- c.tickersCached
	ch <- c.activeTheses
	ch <- c.unreadAlerts
	ch <- c.alertsLast24h
	ch <- c.analysesLast24h
}

// Collect implements prometheus.Collector
func (c *CustomCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.gauge(ctx, ch, c.analysesStored, "SELECT COUNT(*) FROM analysis_results")
	c.gauge(ctx, ch, c.debatesStored, "SELECT COUNT(*) FROM debate_results")
	c.gauge(ctx, ch, c.tickersCached, "SELECT COUNT(DISTINCT ticker) FROM analysis_results")
	c.gauge(ctx, ch, c.activeTheses,
		"SELECT COUNT(*) FROM theses WHERE status = 'active' AND array_length(kill_criteria, 1) > 0")
	c.gauge(ctx, ch, c.unreadAlerts, "SELECT COUNT(*) FROM alerts WHERE is_read = false")
	c.gauge(ctx, ch, c.alertsLast24h,
		"SELECT COUNT(*) FROM alerts WHERE created_at > NOW() - INTERVAL '24 hours'")
	c.gauge(ctx, ch, c.analysesLast24h,
		"SELECT COUNT(*) FROM analysis_results WHERE created_at > NOW() - INTERVAL '24 hours'")
}

func (c *CustomCollector) gauge(ctx context.Context, ch chan<- prometheus.Metric, desc *prometheus.Desc, query string) {
	var count int
	if err := c.postgres.GetContext(ctx, &count, query); err != nil {
		c.log.Error("Failed to collect database metric", "metric", desc.String(), "error", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(count))
}

// RegisterCustomCollector registers the custom collector
func RegisterCustomCollector(collector *CustomCollector) {
	prometheus.MustRegister(collector)
}
