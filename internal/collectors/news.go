package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"stocksense/internal/adapters/config"
	"stocksense/pkg/errors"
	"stocksense/pkg/logger"
)

// NewsAPIClient fetches headlines from the NewsAPI "everything" endpoint.
type NewsAPIClient struct {
	apiKey       string
	baseURL      string
	maxHeadlines int
	client       *http.Client
	log          *logger.Logger
}

var _ NewsProvider = (*NewsAPIClient)(nil)

// NewNewsAPIClient creates a NewsAPI-backed news provider.
func NewNewsAPIClient(cfg config.NewsConfig) *NewsAPIClient {
	maxHeadlines := cfg.MaxHeadlines
	if maxHeadlines <= 0 {
		maxHeadlines = 10
	}
	return &NewsAPIClient{
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		maxHeadlines: maxHeadlines,
		client:       &http.Client{Timeout: cfg.Timeout},
		log:          logger.Get().With("component", "news_collector"),
	}
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Title string `json:"title"`
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

// GetNews returns headline titles for the ticker from the last `days` days.
func (c *NewsAPIClient) GetNews(ctx context.Context, ticker string, days int) ([]string, error) {
	if c.apiKey == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "news API key not configured")
	}
	if days <= 0 {
		days = 7
	}

	from := time.Now().AddDate(0, 0, -days).Format("2006-01-02")

	params := url.Values{}
	params.Set("q", ticker)
	params.Set("from", from)
	params.Set("sortBy", "publishedAt")
	params.Set("language", "en")
	params.Set("pageSize", fmt.Sprintf("%d", c.maxHeadlines))
	params.Set("apiKey", c.apiKey)

	endpoint := fmt.Sprintf("%s/everything?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create news request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send news request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read news response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(errors.ErrExternal, "news API error (%d): %s", resp.StatusCode, string(body))
	}

	var wire newsAPIResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, errors.Wrap(err, "unmarshal news response")
	}

	if wire.Status != "ok" {
		return nil, errors.Wrapf(errors.ErrExternal, "news API error: %s - %s", wire.Code, wire.Message)
	}

	headlines := make([]string, 0, len(wire.Articles))
	for _, a := range wire.Articles {
		if a.Title == "" {
			continue
		}
		headlines = append(headlines, a.Title)
		if len(headlines) >= c.maxHeadlines {
			break
		}
	}

	c.log.Debugf("Fetched %d headlines for %s", len(headlines), ticker)
	return headlines, nil
}
