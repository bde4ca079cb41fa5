package kis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the production KIS open API endpoint.
	DefaultBaseURL = "https://openapi.koreainvestment.com:9443"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the vendor quote budget (requests per second).
	DefaultRateLimit = 2

	// MaxMultiQuote is the vendor cap on tickers per multi-quote call.
	MaxMultiQuote = 30
)

// Index codes for the venue index endpoint
const (
	IndexKOSPI  = "0001"
	IndexKOSDAQ = "1001"
)

// Client is a KIS open API client.
type Client struct {
	baseURL    string
	appKey     string
	appSecret  string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
	tokens     *tokenManager
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
// WithTimeout overrides the per-request HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates a new KIS API client.
func NewClient(appKey, appSecret string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		appKey:    appKey,
		appSecret: appSecret,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.tokens = newTokenManager(c.baseURL, appKey, appSecret, c.httpClient, c.logger)
	return c
}

// Warmup acquires the OAuth token up front so startup fails fast on bad
// credentials.
func (c *Client) Warmup(ctx context.Context) error {
	_, err := c.tokens.Token(ctx)
	return err
}

// Close releases the client. The token cache is memory-only.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// get performs an authenticated GET with the per-call tr_id header.
func (c *Client) get(ctx context.Context, path, trID string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &RateLimitError{RetryAfter: time.Second}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("authorization", "Bearer "+token)
	req.Header.Set("appkey", c.appKey)
	req.Header.Set("appsecret", c.appSecret)
	req.Header.Set("tr_id", trID)
	req.Header.Set("custtype", "P")

	if c.logger != nil {
		c.logger.Debug().
			Str("path", path).
			Str("tr_id", trID).
			Msg("KIS API request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{RetryAfter: time.Second}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// Expired or revoked token; drop it so the next call re-issues
		c.tokens.Invalidate()
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(raw),
			Endpoint:   path,
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to decode response envelope: %w", err)
	}
	if !env.ok() {
		if env.rateLimited() {
			return &RateLimitError{RetryAfter: time.Second}
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       env.MsgCd,
			Message:    env.Msg,
			Endpoint:   path,
		}
	}

	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetQuote retrieves a realtime quote for one ticker.
func (c *Client) GetQuote(ctx context.Context, ticker string) (*Quote, error) {
	params := url.Values{}
	params.Set("fid_cond_mrkt_div_code", "J")
	params.Set("fid_input_iscd", ticker)

	var resp quoteResponse
	if err := c.get(ctx, "/uapi/domestic-stock/v1/quotations/inquire-price",
		"FHKST01010100", params, &resp); err != nil {
		return nil, err
	}

	o := resp.Output
	return &Quote{
		Ticker:       ticker,
		Price:        o.Price.Float(),
		ChangeRate:   o.ChangeRate.Float(),
		ChangeAmount: o.ChangeAmount.Float(),
		Volume:       o.Volume.Int(),
		Open:         o.Open.Float(),
		High:         o.High.Float(),
		Low:          o.Low.Float(),
		TradingValue: o.TradingValue.Float(),
		PrevClose:    o.PrevClose.Float(),
	}, nil
}

// GetQuotes retrieves quotes for up to MaxMultiQuote tickers in one call.
func (c *Client) GetQuotes(ctx context.Context, tickers []string) ([]Quote, error) {
	if len(tickers) == 0 {
		return nil, nil
	}
	if len(tickers) > MaxMultiQuote {
		return nil, fmt.Errorf("multi-quote accepts at most %d tickers, got %d", MaxMultiQuote, len(tickers))
	}

	params := url.Values{}
	for i, t := range tickers {
		params.Set(fmt.Sprintf("fid_cond_mrkt_div_code_%d", i+1), "J")
		params.Set(fmt.Sprintf("fid_input_iscd_%d", i+1), t)
	}

	var resp multiQuoteResponse
	if err := c.get(ctx, "/uapi/domestic-stock/v1/quotations/intstock-multprice",
		"FHKST11300006", params, &resp); err != nil {
		return nil, err
	}

	quotes := make([]Quote, 0, len(resp.Output))
	for _, o := range resp.Output {
		quotes = append(quotes, o.normalize())
	}
	return quotes, nil
}

// GetIndex retrieves the venue index quote. Use IndexKOSPI or IndexKOSDAQ.
func (c *Client) GetIndex(ctx context.Context, indexCode string) (*IndexQuote, error) {
	params := url.Values{}
	params.Set("fid_cond_mrkt_div_code", "U")
	params.Set("fid_input_iscd", indexCode)

	var resp indexResponse
	if err := c.get(ctx, "/uapi/domestic-stock/v1/quotations/inquire-index-price",
		"FHPUP02100000", params, &resp); err != nil {
		return nil, err
	}

	o := resp.Output
	return &IndexQuote{
		Close:        o.Close.Float(),
		ChangePoints: o.ChangePoints.Float(),
		ChangeRate:   o.ChangeRate.Float(),
		TradingValue: o.TradingValue.Float(),
		Advancing:    int(o.Advancing.Int()),
		Declining:    int(o.Declining.Int()),
		Unchanged:    int(o.Unchanged.Int()),
	}, nil
}

// GetDailyBars retrieves daily OHLCV bars for a ticker over [start, end],
// both YYYYMMDD, oldest last per vendor convention.
func (c *Client) GetDailyBars(ctx context.Context, ticker, start, end string) ([]DailyBar, error) {
	params := url.Values{}
	params.Set("fid_cond_mrkt_div_code", "J")
	params.Set("fid_input_iscd", ticker)
	params.Set("fid_input_date_1", start)
	params.Set("fid_input_date_2", end)
	params.Set("fid_period_div_code", "D")
	params.Set("fid_org_adj_prc", "0") // adjusted close

	var resp dailyChartResponse
	if err := c.get(ctx, "/uapi/domestic-stock/v1/quotations/inquire-daily-itemchartprice",
		"FHKST03010100", params, &resp); err != nil {
		return nil, err
	}

	bars := make([]DailyBar, 0, len(resp.Output))
	for _, o := range resp.Output {
		if o.Date == "" {
			continue
		}
		bars = append(bars, DailyBar{
			Date:   o.Date,
			Open:   o.Open.Float(),
			High:   o.High.Float(),
			Low:    o.Low.Float(),
			Close:  o.Close.Float(),
			Volume: o.Volume.Int(),
		})
	}
	return bars, nil
}
