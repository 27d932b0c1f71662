package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"stocksense/internal/domain/analysis"
	domaindebate "stocksense/internal/domain/debate"
	"stocksense/internal/metrics"
	"stocksense/pkg/errors"
)

// AnalysisRepository persists analysis and debate results. Rows are
// append-only; the newest row per ticker is the current cached result.
type AnalysisRepository struct {
	db DBTX
}

// NewAnalysisRepository creates a new analysis repository
func NewAnalysisRepository(db DBTX) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// SaveAnalysis inserts a completed analysis snapshot
func (r *AnalysisRepository) SaveAnalysis(ctx context.Context, result *analysis.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "encode analysis payload")
	}

	query := `
		INSERT INTO analysis_results (
			ticker, analysis_summary, sentiment_report, payload, created_at
		) VALUES (
			$1, $2, $3, $4, $5
		)`

	start := time.Now()
	_, err = r.db.ExecContext(ctx, query,
		result.Ticker, result.Summary, result.SentimentReport, payload, result.Timestamp,
	)
	metrics.RecordDBQuery("postgres", "save_analysis", time.Since(start), err)

	return err
}

// SaveDebate inserts a completed debate result
func (r *AnalysisRepository) SaveDebate(ctx context.Context, result *domaindebate.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "encode debate payload")
	}

	summary := ""
	if result.Verdict != nil {
		summary = result.Verdict.DebateSummary.Synthesis
	}

	query := `
		INSERT INTO debate_results (
			ticker, verdict_summary, payload, created_at
		) VALUES (
			$1, $2, $3, $4
		)`

	start := time.Now()
	_, err = r.db.ExecContext(ctx, query, result.Ticker, summary, payload, result.Timestamp)
	metrics.RecordDBQuery("postgres", "save_debate", time.Since(start), err)

	return err
}

// GetLatestAnalysis returns the newest analysis for a ticker
func (r *AnalysisRepository) GetLatestAnalysis(ctx context.Context, ticker string) (*analysis.Record, error) {
	var record analysis.Record

	query := `
		SELECT id, ticker, analysis_summary, sentiment_report, payload, created_at
		FROM analysis_results
		WHERE ticker = $1
		ORDER BY created_at DESC
		LIMIT 1`

	start := time.Now()
	err := r.db.GetContext(ctx, &record, query, ticker)
	metrics.RecordDBQuery("postgres", "get_latest_analysis", time.Since(start), err)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &record, nil
}

// GetLatestDebate returns the newest debate result for a ticker
func (r *AnalysisRepository) GetLatestDebate(ctx context.Context, ticker string) (*domaindebate.Result, error) {
	var payload json.RawMessage

	query := `
		SELECT payload
		FROM debate_results
		WHERE ticker = $1
		ORDER BY created_at DESC
		LIMIT 1`

	start := time.Now()
	err := r.db.GetContext(ctx, &payload, query, ticker)
	metrics.RecordDBQuery("postgres", "get_latest_debate", time.Since(start), err)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var result domaindebate.Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, errors.Wrap(err, "decode debate payload")
	}
	return &result, nil
}

// ListCachedTickers returns every ticker with at least one stored analysis
func (r *AnalysisRepository) ListCachedTickers(ctx context.Context) ([]string, error) {
	var tickers []string

	query := `
		SELECT DISTINCT ticker
		FROM analysis_results
		ORDER BY ticker ASC`

	start := time.Now()
	err := r.db.SelectContext(ctx, &tickers, query)
	metrics.RecordDBQuery("postgres", "list_cached_tickers", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	return tickers, nil
}

// DeleteAnalyses removes every stored analysis for a ticker and reports
// how many rows went away
func (r *AnalysisRepository) DeleteAnalyses(ctx context.Context, ticker string) (int64, error) {
	query := `DELETE FROM analysis_results WHERE ticker = $1`

	start := time.Now()
	res, err := r.db.ExecContext(ctx, query, ticker)
	metrics.RecordDBQuery("postgres", "delete_analyses", time.Since(start), err)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
