// Package krx provides a client for the KRX market data endpoints used for
// daily snapshots, per-ticker history, and venue index statistics.
package krx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the KRX data portal JSON gateway.
	DefaultBaseURL = "http://data.krx.co.kr/comm/bldAttendant/getJsonData.cmd"

	// refererURL must accompany every request or the gateway rejects it.
	refererURL = "http://data.krx.co.kr/contents/MDC/MDI/mdiLoader"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is a polite request budget (requests per second).
	DefaultRateLimit = 2
)

// Screen ids for the JSON gateway
const (
	bldSnapshot  = "dbms/MDC/STAT/standard/MDCSTAT01501" // all stocks, one date
	bldHistory   = "dbms/MDC/STAT/standard/MDCSTAT01701" // one stock, date range
	bldIndex     = "dbms/MDC/STAT/standard/MDCSTAT00301" // index close/change
	bldFlow      = "dbms/MDC/STAT/standard/MDCSTAT02201" // investor net value
	bldValuation = "dbms/MDC/STAT/standard/MDCSTAT03501" // PER/PBR/dividend per stock
)

// Venue market ids
const (
	MarketKOSPI  = "STK"
	MarketKOSDAQ = "KSQ"
)

// Client is a KRX data portal client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom gateway URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
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

// NewClient creates a new KRX client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// post submits one screen query as form data.
func (c *Client) post(ctx context.Context, bld string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	params.Set("bld", bld)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL,
		strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", refererURL)

	if c.logger != nil {
		c.logger.Debug().Str("bld", bld).Msg("KRX data request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("KRX gateway error: status %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetSnapshot retrieves every listed stock's OHLCV plus cap for one date
// (YYYYMMDD) on one venue.
func (c *Client) GetSnapshot(ctx context.Context, date, market string) ([]SnapshotRow, error) {
	params := url.Values{}
	params.Set("mktId", market)
	params.Set("trdDd", date)
	params.Set("share", "1")
	params.Set("money", "1")

	var resp snapshotResponse
	if err := c.post(ctx, bldSnapshot, params, &resp); err != nil {
		return nil, err
	}

	rows := make([]SnapshotRow, 0, len(resp.Block))
	for _, r := range resp.Block {
		rows = append(rows, r.normalize())
	}
	return rows, nil
}

// GetHistory retrieves daily OHLCV bars for one issue over [start, end],
// both YYYYMMDD. isuCd is the full KRX issue code (e.g. KR7005930003);
// when only a short ticker is known pass it through ShortIssueCode.
func (c *Client) GetHistory(ctx context.Context, isuCd, start, end string) ([]HistoryBar, error) {
	params := url.Values{}
	params.Set("isuCd", isuCd)
	params.Set("strtDd", start)
	params.Set("endDd", end)
	params.Set("share", "1")
	params.Set("money", "1")

	var resp historyResponse
	if err := c.post(ctx, bldHistory, params, &resp); err != nil {
		return nil, err
	}

	bars := make([]HistoryBar, 0, len(resp.Block))
	for _, r := range resp.Block {
		bars = append(bars, r.normalize())
	}
	return bars, nil
}

// GetIndex retrieves the venue index close and change for one date.
func (c *Client) GetIndex(ctx context.Context, date, market string) (*IndexRow, error) {
	params := url.Values{}
	params.Set("idxIndMidclssCd", indexClass(market))
	params.Set("trdDd", date)

	var resp indexResponse
	if err := c.post(ctx, bldIndex, params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Block) == 0 {
		return nil, fmt.Errorf("KRX index response empty for %s/%s", market, date)
	}

	// The headline venue index is the first row of its class
	row := resp.Block[0].normalize()
	return &row, nil
}

// GetInvestorFlow retrieves net trading value by investor class for one
// date on one venue, in KRW.
func (c *Client) GetInvestorFlow(ctx context.Context, date, market string) (*InvestorFlow, error) {
	params := url.Values{}
	params.Set("mktId", market)
	params.Set("strtDd", date)
	params.Set("endDd", date)
	params.Set("inqTpCd", "2") // net value
	params.Set("trdVolVal", "2")
	params.Set("askBid", "3")

	var resp flowResponse
	if err := c.post(ctx, bldFlow, params, &resp); err != nil {
		return nil, err
	}

	flow := &InvestorFlow{}
	for _, r := range resp.Block {
		switch {
		case strings.Contains(r.InvestorName, "외국인"):
			flow.Foreign += r.NetValue.Float()
		case strings.Contains(r.InvestorName, "기관"):
			flow.Institution += r.NetValue.Float()
		case strings.Contains(r.InvestorName, "개인"):
			flow.Individual += r.NetValue.Float()
		}
	}
	return flow, nil
}

// GetValuations retrieves per-stock valuation metrics (EPS, PER, BPS,
// PBR, DPS, dividend yield) for one date on one venue.
func (c *Client) GetValuations(ctx context.Context, date, market string) ([]ValuationRow, error) {
	params := url.Values{}
	params.Set("mktId", market)
	params.Set("trdDd", date)
	params.Set("searchType", "1")

	var resp valuationResponse
	if err := c.post(ctx, bldValuation, params, &resp); err != nil {
		return nil, err
	}

	rows := make([]ValuationRow, 0, len(resp.Block))
	for _, r := range resp.Block {
		rows = append(rows, r.normalize())
	}
	return rows, nil
}

func indexClass(market string) string {
	if market == MarketKOSDAQ {
		return "02"
	}
	return "01"
}

// ShortIssueCode converts a 6-digit ticker to the full KRX issue code used
// by the history screen.
func ShortIssueCode(ticker string) string {
	return "KR7" + ticker + "003"
}
