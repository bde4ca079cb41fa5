package kis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
)

// DefaultWSURL is the production KIS realtime websocket endpoint.
const DefaultWSURL = "ws://ops.koreainvestment.com:21000"

// trRealtimePrice is the realtime execution-price subscription id
const trRealtimePrice = "H0STCNT0"

// Tick is one realtime execution delivered over the websocket
type Tick struct {
	Ticker     string
	Price      float64
	ChangeRate float64
	Volume     int64
}

// StreamClient is the websocket tick feed. It is a secondary path next to
// the REST poller; the poller remains the source of record.
type StreamClient struct {
	wsURL  string
	rest   *Client
	logger arbor.ILogger

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  bool
	tickers map[string]struct{}
}

// NewStreamClient creates a websocket client bound to a REST client for
// approval-key issuance.
func NewStreamClient(wsURL string, rest *Client, logger arbor.ILogger) *StreamClient {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	return &StreamClient{
		wsURL:   wsURL,
		rest:    rest,
		logger:  logger,
		tickers: make(map[string]struct{}),
	}
}

// approvalKey issues the websocket approval key over REST. The key is
// single-use per connection, so there is nothing to cache.
func (s *StreamClient) approvalKey(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     s.rest.appKey,
		"secretkey":  s.rest.appSecret,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.rest.baseURL+"/oauth2/Approval", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create approval request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.rest.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute approval request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(raw),
			Endpoint:   "/oauth2/Approval",
		}
	}

	var ar approvalResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return "", fmt.Errorf("failed to decode approval response: %w", err)
	}
	if ar.ApprovalKey == "" {
		return "", fmt.Errorf("approval response carried no approval_key")
	}
	return ar.ApprovalKey, nil
}

// Connect dials the websocket and subscribes to the given tickers.
func (s *StreamClient) Connect(ctx context.Context, tickers []string) error {
	key, err := s.approvalKey(ctx)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial websocket: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.closed = false
	s.mu.Unlock()

	for _, t := range tickers {
		if err := s.subscribe(key, t); err != nil {
			conn.Close()
			return err
		}
		s.mu.Lock()
		s.tickers[t] = struct{}{}
		s.mu.Unlock()
	}

	s.logger.Info().Int("tickers", len(tickers)).Msg("KIS websocket connected")
	return nil
}

func (s *StreamClient) subscribe(approvalKey, ticker string) error {
	msg := map[string]any{
		"header": map[string]string{
			"approval_key": approvalKey,
			"custtype":     "P",
			"tr_type":      "1", // subscribe
			"content-type": "utf-8",
		},
		"body": map[string]any{
			"input": map[string]string{
				"tr_id":  trRealtimePrice,
				"tr_key": ticker,
			},
		},
	}
	return s.conn.WriteJSON(msg)
}

// Run reads ticks until the context ends or the connection drops, invoking
// handler for each parsed execution. Control frames are skipped.
func (s *StreamClient) Run(ctx context.Context, handler func(Tick)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("websocket read failed: %w", err)
		}

		// Data frames are pipe-delimited with a 0|TRID|count| prefix;
		// everything else (JSON control frames, pingpong) is skipped.
		tick, ok := parseTickFrame(string(raw))
		if !ok {
			continue
		}
		handler(tick)
	}
}

// parseTickFrame decodes one realtime execution frame
func parseTickFrame(frame string) (Tick, bool) {
	if !strings.HasPrefix(frame, "0|"+trRealtimePrice+"|") {
		return Tick{}, false
	}
	parts := strings.SplitN(frame, "|", 4)
	if len(parts) < 4 {
		return Tick{}, false
	}
	// Caret-delimited record: ticker^time^price^sign^diff^rate^...^volume(13th)
	fields := strings.Split(parts[3], "^")
	if len(fields) < 14 {
		return Tick{}, false
	}
	return Tick{
		Ticker:     fields[0],
		Price:      numStr(fields[2]).Float(),
		ChangeRate: numStr(fields[5]).Float(),
		Volume:     numStr(fields[13]).Int(),
	}, true
}

// Close shuts the websocket down.
func (s *StreamClient) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
