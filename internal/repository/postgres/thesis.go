package postgres

import (
	"context"
	"database/sql"
	"time"

	"stocksense/internal/domain/thesis"
	"stocksense/internal/metrics"
	"stocksense/pkg/errors"
)

// ThesisRepository reads user investment theses and their kill criteria
type ThesisRepository struct {
	db DBTX
}

// NewThesisRepository creates a new thesis repository
func NewThesisRepository(db DBTX) *ThesisRepository {
	return &ThesisRepository{db: db}
}

// ActiveWithKillCriteria returns active theses for a ticker that carry
// at least one kill criterion. Theses without criteria have nothing to
// monitor and are excluded at the query level.
func (r *ThesisRepository) ActiveWithKillCriteria(ctx context.Context, ticker string) ([]thesis.Thesis, error) {
	var theses []thesis.Thesis

	query := `
		SELECT id, user_id, ticker, status, summary, kill_criteria, created_at, updated_at
		FROM theses
		WHERE ticker = $1
		  AND status = $2
		  AND array_length(kill_criteria, 1) > 0
		ORDER BY created_at ASC`

	start := time.Now()
	err := r.db.SelectContext(ctx, &theses, query, ticker, thesis.StatusActive)
	metrics.RecordDBQuery("postgres", "active_theses", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	return theses, nil
}

// ActiveTickers returns the distinct tickers covered by active theses
// with kill criteria, for the periodic sweep.
func (r *ThesisRepository) ActiveTickers(ctx context.Context) ([]string, error) {
	var tickers []string

	query := `
		SELECT DISTINCT ticker
		FROM theses
		WHERE status = $1
		  AND array_length(kill_criteria, 1) > 0
		ORDER BY ticker ASC`

	start := time.Now()
	err := r.db.SelectContext(ctx, &tickers, query, thesis.StatusActive)
	metrics.RecordDBQuery("postgres", "active_tickers", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	return tickers, nil
}

// GetByID retrieves a thesis by ID
func (r *ThesisRepository) GetByID(ctx context.Context, id string) (*thesis.Thesis, error) {
	var th thesis.Thesis

	query := `
		SELECT id, user_id, ticker, status, summary, kill_criteria, created_at, updated_at
		FROM theses
		WHERE id = $1`

	start := time.Now()
	err := r.db.GetContext(ctx, &th, query, id)
	metrics.RecordDBQuery("postgres", "get_thesis", time.Since(start), err)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &th, nil
}
