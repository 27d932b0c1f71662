package collectors

import (
	"context"

	"stocksense/internal/domain/analysis"
)

// NewsProvider fetches recent headlines for a ticker.
type NewsProvider interface {
	// GetNews returns headline strings from the last `days` days.
	GetNews(ctx context.Context, ticker string, days int) ([]string, error)
}

// MarketProvider fetches price history and fundamentals for a ticker.
type MarketProvider interface {
	// GetPriceHistory returns daily OHLCV bars for the given period
	// (1d, 5d, 1mo, 3mo, 6mo, 1y, 2y, 5y, 10y, ytd, max).
	GetPriceHistory(ctx context.Context, ticker string, period string) ([]analysis.OHLCV, error)

	// GetFundamentals returns financial statements and key ratios.
	GetFundamentals(ctx context.Context, ticker string) (*analysis.Fundamentals, error)
}
