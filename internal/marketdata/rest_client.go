package marketdata

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"time"

	"paper-trading-ledger-go/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://data.alpaca.markets/v2"
	timeframeDay   = "1Day"
	pageLimit      = 10000
	maxRetries     = 3
)

// RestClientInterface defines the interface for the market data REST API client.
type RestClientInterface interface {
	GetDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error)
}

// RestClient is a client for the Alpaca market data REST API.
// It implements the RestClientInterface.
type RestClient struct {
	client    *resty.Client
	apiKey    string
	secretKey string
	feed      string
	logger    *zap.Logger
	limiter   *rate.Limiter
	backoff   time.Duration
}

// ensure RestClient implements the interface
var _ RestClientInterface = (*RestClient)(nil)

// NewRestClient creates a new market data REST API client.
func NewRestClient(cfg *config.Alpaca, logger *zap.Logger) *RestClient {
	url := cfg.BaseURL
	if url == "" {
		url = defaultBaseURL
	}
	if cfg.ApiKey == "" {
		logger.Warn("No Alpaca API key configured, market data requests will be rejected")
	}

	client := resty.New().
		SetBaseURL(url).
		SetTimeout(30 * time.Second)

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateLimitBurst
	if burst < 1 {
		burst = 1
	}

	return &RestClient{
		client:    client,
		apiKey:    cfg.ApiKey,
		secretKey: cfg.SecretKey,
		feed:      cfg.Feed,
		logger:    logger.Named("marketdata"),
		limiter:   rate.NewLimiter(limit, burst),
		backoff:   time.Second,
	}
}

// apiBar is a bar as encoded by the API.
type apiBar struct {
	T string  `json:"t"` // Timestamp
	O float64 `json:"o"` // Open
	H float64 `json:"h"` // High
	L float64 `json:"l"` // Low
	C float64 `json:"c"` // Close
	V float64 `json:"v"` // Volume
}

type barsResponse struct {
	Bars          map[string][]apiBar `json:"bars"`
	NextPageToken *string             `json:"next_page_token"`
}

// GetDailyBars fetches the daily bars for symbol between start and end, following pagination.
func (c *RestClient) GetDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	var bars []Bar
	pageToken := ""

	for {
		req := c.client.R().
			SetContext(ctx).
			SetHeader("APCA-API-KEY-ID", c.apiKey).
			SetHeader("APCA-API-SECRET-KEY", c.secretKey).
			SetQueryParams(map[string]string{
				"symbols":    symbol,
				"timeframe":  timeframeDay,
				"start":      start.UTC().Format(time.RFC3339),
				"end":        end.UTC().Format(time.RFC3339),
				"limit":      strconv.Itoa(pageLimit),
				"adjustment": "raw",
			}).
			SetResult(&barsResponse{})
		if c.feed != "" {
			req.SetQueryParam("feed", c.feed)
		}
		if pageToken != "" {
			req.SetQueryParam("page_token", pageToken)
		}

		resp, err := c.doRequest(ctx, http.MethodGet, "/stocks/bars", req)
		if err != nil {
			return nil, fmt.Errorf("failed to get bars for %s: %w", symbol, err)
		}

		result := resp.Result().(*barsResponse)
		for _, b := range result.Bars[symbol] {
			ts, err := time.Parse(time.RFC3339, b.T)
			if err != nil {
				return nil, fmt.Errorf("failed to parse bar timestamp %q for %s: %w", b.T, symbol, err)
			}
			bars = append(bars, Bar{
				Date:   sessionDate(ts),
				Open:   b.O,
				High:   b.H,
				Low:    b.L,
				Close:  b.C,
				Volume: b.V,
			})
		}

		if result.NextPageToken == nil || *result.NextPageToken == "" {
			break
		}
		pageToken = *result.NextPageToken
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// sessionDate maps a daily bar timestamp (midnight New York, expressed in UTC)
// to its calendar day.
func sessionDate(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if err == nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				if seconds, perr := strconv.Atoi(resp.Header().Get("Retry-After")); perr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 {
				shouldRetry = true
			}
			err = fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		} else if ctx.Err() != nil {
			return nil, ctx.Err()
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, err
		}

		if retryAfter == 0 {
			// Exponential backoff: 1x, 2x, 4x
			retryAfter = time.Duration(math.Pow(2, float64(i))) * c.backoff
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}
