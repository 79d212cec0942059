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
	"time"

	"github.com/rs/zerolog"

	"cryptosim-bot/internal/market"
)

const (
	DefaultBaseURL = "https://api.binance.com"
	DefaultWSURL   = "wss://stream.binance.com:9443/ws"

	// maxKlinesPerRequest is the exchange's hard cap for one klines call.
	maxKlinesPerRequest = 1000
)

// ErrRateLimited is returned when the exchange answers 418 or 429
var ErrRateLimited = errors.New("binance rate limit exceeded")

// Client reads public market data from the Binance REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *RateLimiter
	logger     zerolog.Logger
}

// NewClient creates a new public market data client
func NewClient(baseURL string, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: NewRateLimiter(spotWeightPerMinute),
		logger: logger.With().Str("component", "binance-rest").Logger(),
	}
}

// GetKlines returns up to limit candles for a pair, oldest first. Limits
// above the per-request cap are served with a second, older page.
func (c *Client) GetKlines(ctx context.Context, pair, interval string, limit int) ([]market.Candle, error) {
	if limit <= maxKlinesPerRequest {
		return c.fetchKlines(ctx, pair, interval, limit, 0)
	}

	recent, err := c.fetchKlines(ctx, pair, interval, maxKlinesPerRequest, 0)
	if err != nil || len(recent) == 0 {
		return recent, err
	}

	olderLimit := limit - maxKlinesPerRequest
	if olderLimit > maxKlinesPerRequest {
		olderLimit = maxKlinesPerRequest
	}
	endTime := recent[0].Time*1000 - 1
	older, err := c.fetchKlines(ctx, pair, interval, olderLimit, endTime)
	if err != nil {
		return nil, err
	}
	return append(older, recent...), nil
}

func (c *Client) fetchKlines(ctx context.Context, pair, interval string, limit int, endTimeMs int64) ([]market.Candle, error) {
	params := url.Values{}
	params.Set("symbol", pair)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))
	if endTimeMs > 0 {
		params.Set("endTime", strconv.FormatInt(endTimeMs, 10))
	}

	if err := c.limiter.Wait(ctx, klinesWeight); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error building klines request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching klines: %w", err)
	}
	defer resp.Body.Close()

	c.limiter.UpdateFromHeader(resp.Header.Get(usedWeightHeader))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot {
		until := c.limiter.RecordBan(resp.Header.Get("Retry-After"))
		c.logger.Warn().Int("status", resp.StatusCode).Time("until", until).Msg("Rate limited by exchange, backing off")
		return nil, fmt.Errorf("%w (status %d)", ErrRateLimited, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	candles, err := ParseKlines(body)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().Str("pair", pair).Str("interval", interval).Int("count", len(candles)).Msg("Fetched klines")
	return candles, nil
}

// ParseKlines decodes the REST klines array format. Open times arrive in
// milliseconds and prices as strings.
func ParseKlines(body []byte) ([]market.Candle, error) {
	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}

	candles := make([]market.Candle, 0, len(rawKlines))
	for i, raw := range rawKlines {
		if len(raw) < 5 {
			return nil, fmt.Errorf("kline %d: expected at least 5 fields, got %d", i, len(raw))
		}
		openTime, ok := raw[0].(float64)
		if !ok {
			return nil, fmt.Errorf("kline %d: invalid open time %v", i, raw[0])
		}
		c := market.Candle{
			Time:  int64(openTime) / 1000,
			Open:  parseFloat(raw[1]),
			High:  parseFloat(raw[2]),
			Low:   parseFloat(raw[3]),
			Close: parseFloat(raw[4]),
		}
		if len(raw) > 5 {
			c.Volume = parseFloat(raw[5])
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	case float64:
		return val
	default:
		return 0
	}
}
