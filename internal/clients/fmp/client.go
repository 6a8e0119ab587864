// Package fmp provides a client for a Financial Modeling Prep style market data API
package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/bobmcallan/sift/internal/common"
	"github.com/bobmcallan/sift/internal/interfaces"
	"github.com/bobmcallan/sift/internal/models"
)

const (
	DefaultBaseURL   = "https://financialmodelingprep.com/api/v3"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second

	// retryElapsed caps the total time spent retrying one request.
	retryElapsed = 20 * time.Second
)

// flexFloat64 handles JSON values that may be either a number or a string.
type flexFloat64 float64

func (f *flexFloat64) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat64(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" || s == "N/A" {
			*f = 0
			return nil
		}
		num, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexFloat64(num)
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into float64", string(data))
}

// Client implements the MarketDataClient interface
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new market data client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// retryable reports whether the request that produced this error is worth
// retrying: throttling and upstream 5xx are, client errors are not.
func (e *APIError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// get performs a rate-limited GET request with exponential-backoff retries
// on transient failures.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	c.logger.Debug().Str("url", c.baseURL+path).Msg("Gateway API request")

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			apiErr := &APIError{
				StatusCode: resp.StatusCode,
				Message:    strings.TrimSpace(string(body)),
				Endpoint:   path,
			}
			if apiErr.retryable() {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}

		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = retryElapsed

	return backoff.Retry(operation, backoff.WithContext(bo, ctx))
}

// constituentResponse represents one index membership row
type constituentResponse struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Sector string `json:"sector"`
}

// GetConstituents retrieves the membership list of an index universe.
// Known index IDs: sp500, nasdaq, dowjones.
func (c *Client) GetConstituents(ctx context.Context, indexID string) ([]*models.Constituent, error) {
	indexID = strings.ToLower(strings.TrimSpace(indexID))
	switch indexID {
	case "sp500", "nasdaq", "dowjones":
	default:
		return nil, fmt.Errorf("unknown index %q", indexID)
	}

	path := fmt.Sprintf("/%s_constituent", indexID)

	var rows []constituentResponse
	if err := c.get(ctx, path, nil, &rows); err != nil {
		return nil, err
	}

	result := make([]*models.Constituent, len(rows))
	for i, row := range rows {
		result[i] = &models.Constituent{
			Symbol: row.Symbol,
			Name:   row.Name,
			Sector: row.Sector,
		}
	}

	c.logger.Debug().Str("index", indexID).Int("constituents", len(result)).Msg("Constituents retrieved")

	return result, nil
}

// quoteResponse represents one row of the batch quote endpoint
type quoteResponse struct {
	Symbol      string      `json:"symbol"`
	Name        string      `json:"name"`
	Price       float64     `json:"price"`
	MarketCap   flexFloat64 `json:"marketCap"`
	PriceAvg50  float64     `json:"priceAvg50"`
	PriceAvg200 float64     `json:"priceAvg200"`
	Volume      int64       `json:"volume"`
}

// GetBatchQuotes retrieves current quotes for the given symbols in one call.
// Symbols the provider does not know are absent from the returned map.
func (c *Client) GetBatchQuotes(ctx context.Context, symbols []string) (map[string]*models.Quote, error) {
	if len(symbols) == 0 {
		return map[string]*models.Quote{}, nil
	}

	path := fmt.Sprintf("/quote/%s", strings.Join(symbols, ","))

	var rows []quoteResponse
	if err := c.get(ctx, path, nil, &rows); err != nil {
		return nil, err
	}

	quotes := make(map[string]*models.Quote, len(rows))
	for _, row := range rows {
		quotes[row.Symbol] = &models.Quote{
			Symbol:      row.Symbol,
			Name:        row.Name,
			Price:       row.Price,
			MarketCap:   float64(row.MarketCap),
			PriceAvg50:  row.PriceAvg50,
			PriceAvg200: row.PriceAvg200,
			Volume:      row.Volume,
		}
	}

	return quotes, nil
}

// historicalResponse represents the historical price endpoint envelope
type historicalResponse struct {
	Symbol     string `json:"symbol"`
	Historical []struct {
		Date   string  `json:"date"`
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume int64   `json:"volume"`
	} `json:"historical"`
}

// GetHistoricalPrices retrieves daily OHLCV bars from the given date.
// The provider returns bars most-recent-first; no ordering is promised here.
// Callers sort ascending before analysis.
func (c *Client) GetHistoricalPrices(ctx context.Context, symbol string, from time.Time) ([]models.PricePoint, error) {
	params := url.Values{}
	if !from.IsZero() {
		params.Set("from", from.Format("2006-01-02"))
	}

	path := fmt.Sprintf("/historical-price-full/%s", symbol)

	var resp historicalResponse
	if err := c.get(ctx, path, params, &resp); err != nil {
		return nil, err
	}

	points := make([]models.PricePoint, 0, len(resp.Historical))
	for _, bar := range resp.Historical {
		date, err := time.Parse("2006-01-02", bar.Date)
		if err != nil {
			continue
		}
		points = append(points, models.PricePoint{
			Date:   date,
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: bar.Volume,
		})
	}

	return points, nil
}

// estimateResponse represents one forward annual analyst estimate row
type estimateResponse struct {
	Date                          string      `json:"date"`
	EstimatedRevenueAvg           flexFloat64 `json:"estimatedRevenueAvg"`
	EstimatedNetIncomeAvg         flexFloat64 `json:"estimatedNetIncomeAvg"`
	NumberAnalystEstimatedRevenue int         `json:"numberAnalystEstimatedRevenue"`
}

// GetForwardEstimates retrieves forward annual analyst estimate rows.
func (c *Client) GetForwardEstimates(ctx context.Context, symbol string, periods int) ([]models.ForwardEstimate, error) {
	if periods <= 0 {
		periods = 4
	}

	params := url.Values{}
	params.Set("period", "annual")
	params.Set("limit", strconv.Itoa(periods))

	path := fmt.Sprintf("/analyst-estimates/%s", symbol)

	var rows []estimateResponse
	if err := c.get(ctx, path, params, &rows); err != nil {
		return nil, err
	}

	estimates := make([]models.ForwardEstimate, 0, len(rows))
	for _, row := range rows {
		periodEnd, err := time.Parse("2006-01-02", row.Date)
		if err != nil {
			continue
		}
		estimates = append(estimates, models.ForwardEstimate{
			PeriodEnd:    periodEnd,
			RevenueAvg:   float64(row.EstimatedRevenueAvg),
			NetIncomeAvg: float64(row.EstimatedNetIncomeAvg),
			AnalystCount: row.NumberAnalystEstimatedRevenue,
		})
	}

	return estimates, nil
}

// Ensure Client implements MarketDataClient
var _ interfaces.MarketDataClient = (*Client)(nil)
