package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"binance-recorder/internal/domain"
	"binance-recorder/internal/observability"
)

// Default configuration values.
const (
	DefaultRESTURL     = "https://api.binance.com"
	DefaultTimeout     = 10 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// Client implements MarketData over the exchange REST API.
type Client struct {
	baseURL     string
	apiKey      string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout on a copy of the current client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		hc := *c.client
		hc.Timeout = d
		c.client = &hc
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithAPIKey sends the key in X-MBX-APIKEY. Market data endpoints work without it.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a REST client for baseURL (DefaultRESTURL when empty).
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultRESTURL
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ MarketData = (*Client)(nil)

// APIError is an exchange rejection. It is not retried.
type APIError struct {
	Status int    `json:"-"`
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance api error %d (http %d): %s", e.Code, e.Status, e.Msg)
}

// retryable reports whether a response status should be retried.
// 418 is the exchange's escalation of 429 after ignored rate limits.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusTeapot || status >= 500
}

// get performs a GET with retries and exponential backoff, decoding the body into result.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordRESTCall(path, time.Since(start).Seconds(), err)
	}()

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		if c.apiKey != "" {
			req.Header.Set("X-MBX-APIKEY", c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if retryable(resp.StatusCode) {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
			if wait := retryAfter(resp.Header); wait > delay {
				delay = wait
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			apiErr := &APIError{Status: resp.StatusCode}
			if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Msg == "" {
				apiErr.Msg = strings.TrimSpace(string(body))
			}
			return apiErr
		}

		if result != nil {
			if err := json.Unmarshal(body, result); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// retryAfter parses the Retry-After header in seconds.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Ping checks REST connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.get(ctx, "/api/v3/ping", nil, nil)
}

// ServerTime returns the exchange clock in Unix ms.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	var result struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := c.get(ctx, "/api/v3/time", nil, &result); err != nil {
		return 0, err
	}
	return result.ServerTime, nil
}

// RecentTrades returns up to limit of the most recent trades.
// REST trades carry no buyer/seller order ids.
func (c *Client) RecentTrades(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var raw []restTrade
	if err := c.get(ctx, "/api/v3/trades", params, &raw); err != nil {
		return nil, err
	}

	trades := make([]*domain.Trade, 0, len(raw))
	for i := range raw {
		t, err := raw[i].toDomain()
		if err != nil {
			return nil, fmt.Errorf("decode trade %d: %w", raw[i].ID, err)
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// Klines returns one page of candles for the query.
// REST candles carry no first/last trade id.
func (c *Client) Klines(ctx context.Context, q KlineQuery) ([]*domain.Candle, error) {
	if q.Symbol == "" || q.Interval == "" {
		return nil, errors.New("klines: symbol and interval required")
	}

	params := url.Values{}
	params.Set("symbol", strings.ToUpper(q.Symbol))
	params.Set("interval", q.Interval)
	params.Set("startTime", strconv.FormatInt(q.StartTime, 10))
	if q.EndTime != nil {
		params.Set("endTime", strconv.FormatInt(*q.EndTime, 10))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	var rows []restKline
	if err := c.get(ctx, "/api/v3/klines", params, &rows); err != nil {
		return nil, err
	}

	candles := make([]*domain.Candle, 0, len(rows))
	for i, row := range rows {
		candle, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("decode kline row %d: %w", i, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}
