package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"stocksense/internal/adapters/config"
	"stocksense/internal/domain/analysis"
	"stocksense/pkg/errors"
	"stocksense/pkg/logger"
)

// YahooClient fetches price history and fundamentals from the Yahoo
// Finance chart and quoteSummary endpoints.
type YahooClient struct {
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

var _ MarketProvider = (*YahooClient)(nil)

// NewYahooClient creates a Yahoo Finance backed market provider.
func NewYahooClient(cfg config.MarketConfig) *YahooClient {
	return &YahooClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		log:     logger.Get().With("component", "market_collector"),
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// GetPriceHistory returns daily OHLCV bars for the given range.
func (c *YahooClient) GetPriceHistory(ctx context.Context, ticker string, period string) ([]analysis.OHLCV, error) {
	if period == "" {
		period = "1mo"
	}

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=1d", c.baseURL, ticker, period)

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var wire chartResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, errors.Wrap(err, "unmarshal chart response")
	}

	if wire.Chart.Error != nil {
		return nil, errors.Wrapf(errors.ErrExternal, "chart API error: %s - %s",
			wire.Chart.Error.Code, wire.Chart.Error.Description)
	}
	if len(wire.Chart.Result) == 0 || len(wire.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, errors.Wrapf(errors.ErrInsufficientData, "no price data for %s", ticker)
	}

	result := wire.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	bars := make([]analysis.OHLCV, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		// Partial bars (missing close) are skipped
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}
		bar := analysis.OHLCV{
			Date:  time.Unix(ts, 0).UTC().Format("2006-01-02"),
			Close: decimal.NewFromFloat(*quote.Close[i]),
		}
		if i < len(quote.Open) && quote.Open[i] != nil {
			bar.Open = decimal.NewFromFloat(*quote.Open[i])
		}
		if i < len(quote.High) && quote.High[i] != nil {
			bar.High = decimal.NewFromFloat(*quote.High[i])
		}
		if i < len(quote.Low) && quote.Low[i] != nil {
			bar.Low = decimal.NewFromFloat(*quote.Low[i])
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			bar.Volume = *quote.Volume[i]
		}
		bars = append(bars, bar)
	}

	if len(bars) == 0 {
		return nil, errors.Wrapf(errors.ErrInsufficientData, "no complete bars for %s", ticker)
	}

	c.log.Debugf("Fetched %d price bars for %s (%s)", len(bars), ticker, period)
	return bars, nil
}

type rawValue struct {
	Raw *float64 `json:"raw"`
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			SummaryDetail struct {
				TrailingPE   rawValue `json:"trailingPE"`
				ForwardPE    rawValue `json:"forwardPE"`
				MarketCap    rawValue `json:"marketCap"`
				PriceToBook  rawValue `json:"priceToBook"`
				DividendRate rawValue `json:"dividendRate"`
				Beta         rawValue `json:"beta"`
			} `json:"summaryDetail"`
			FinancialData struct {
				RevenueGrowth      rawValue `json:"revenueGrowth"`
				EarningsGrowth     rawValue `json:"earningsGrowth"`
				ProfitMargins      rawValue `json:"profitMargins"`
				OperatingMargins   rawValue `json:"operatingMargins"`
				GrossMargins       rawValue `json:"grossMargins"`
				DebtToEquity       rawValue `json:"debtToEquity"`
				CurrentRatio       rawValue `json:"currentRatio"`
				QuickRatio         rawValue `json:"quickRatio"`
				ReturnOnEquity     rawValue `json:"returnOnEquity"`
				FreeCashflow       rawValue `json:"freeCashflow"`
				TotalCash          rawValue `json:"totalCash"`
				TotalDebt          rawValue `json:"totalDebt"`
				TargetHighPrice    rawValue `json:"targetHighPrice"`
				TargetLowPrice     rawValue `json:"targetLowPrice"`
				TargetMeanPrice    rawValue `json:"targetMeanPrice"`
				RecommendationMean rawValue `json:"recommendationMean"`
				CurrentPrice       rawValue `json:"currentPrice"`
			} `json:"financialData"`
			DefaultKeyStatistics struct {
				TrailingEPS    rawValue `json:"trailingEps"`
				ForwardEPS     rawValue `json:"forwardEps"`
				PegRatio       rawValue `json:"pegRatio"`
				SharesOut      rawValue `json:"sharesOutstanding"`
				ShortPctFloat  rawValue `json:"shortPercentOfFloat"`
				HeldPctInsider rawValue `json:"heldPercentInsiders"`
			} `json:"defaultKeyStatistics"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

// GetFundamentals returns key ratios flattened into Fundamentals.Info.
// ETFs and funds typically have no financialData module; callers should
// treat that as a soft failure and continue without fundamentals.
func (c *YahooClient) GetFundamentals(ctx context.Context, ticker string) (*analysis.Fundamentals, error) {
	endpoint := fmt.Sprintf(
		"%s/v10/finance/quoteSummary/%s?modules=summaryDetail,financialData,defaultKeyStatistics",
		c.baseURL, ticker,
	)

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var wire quoteSummaryResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, errors.Wrap(err, "unmarshal quoteSummary response")
	}

	if wire.QuoteSummary.Error != nil {
		return nil, errors.Wrapf(errors.ErrExternal, "quoteSummary API error: %s - %s",
			wire.QuoteSummary.Error.Code, wire.QuoteSummary.Error.Description)
	}
	if len(wire.QuoteSummary.Result) == 0 {
		return nil, errors.Wrapf(errors.ErrInsufficientData, "no fundamental data for %s", ticker)
	}

	r := wire.QuoteSummary.Result[0]
	info := map[string]interface{}{}

	put := func(key string, v rawValue) {
		if v.Raw != nil {
			info[key] = *v.Raw
		}
	}

	put("pe_ratio", r.SummaryDetail.TrailingPE)
	put("forward_pe", r.SummaryDetail.ForwardPE)
	put("market_cap", r.SummaryDetail.MarketCap)
	put("price_to_book", r.SummaryDetail.PriceToBook)
	put("dividend_rate", r.SummaryDetail.DividendRate)
	put("beta", r.SummaryDetail.Beta)

	put("revenue_growth", r.FinancialData.RevenueGrowth)
	put("earnings_growth", r.FinancialData.EarningsGrowth)
	put("profit_margins", r.FinancialData.ProfitMargins)
	put("operating_margins", r.FinancialData.OperatingMargins)
	put("gross_margins", r.FinancialData.GrossMargins)
	put("debt_to_equity", r.FinancialData.DebtToEquity)
	put("current_ratio", r.FinancialData.CurrentRatio)
	put("quick_ratio", r.FinancialData.QuickRatio)
	put("return_on_equity", r.FinancialData.ReturnOnEquity)
	put("free_cashflow", r.FinancialData.FreeCashflow)
	put("total_cash", r.FinancialData.TotalCash)
	put("total_debt", r.FinancialData.TotalDebt)
	put("target_high", r.FinancialData.TargetHighPrice)
	put("target_low", r.FinancialData.TargetLowPrice)
	put("target_mean", r.FinancialData.TargetMeanPrice)
	put("recommendation_mean", r.FinancialData.RecommendationMean)
	put("current_price", r.FinancialData.CurrentPrice)

	put("trailing_eps", r.DefaultKeyStatistics.TrailingEPS)
	put("forward_eps", r.DefaultKeyStatistics.ForwardEPS)
	put("peg_ratio", r.DefaultKeyStatistics.PegRatio)
	put("shares_outstanding", r.DefaultKeyStatistics.SharesOut)
	put("short_percent_of_float", r.DefaultKeyStatistics.ShortPctFloat)
	put("held_percent_insiders", r.DefaultKeyStatistics.HeldPctInsider)

	if len(info) == 0 {
		return nil, errors.Wrapf(errors.ErrInsufficientData, "empty fundamental data for %s", ticker)
	}

	c.log.Debugf("Fetched %d fundamental metrics for %s", len(info), ticker)
	return &analysis.Fundamentals{Ticker: ticker, Info: info}, nil
}

func (c *YahooClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create market request")
	}
	req.Header.Set("User-Agent", "stocksense/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send market request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read market response")
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Wrapf(errors.ErrNotFound, "symbol not found: %s", endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(errors.ErrExternal, "market API error (%d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}
