package kis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// refreshMargin forces a refresh this long before expiry
	refreshMargin = time.Hour

	// tokenRetryWait is the vendor-mandated wait between acquisition attempts
	tokenRetryWait = 60 * time.Second

	tokenMaxAttempts = 3
)

// tokenManager caches the OAuth access token in memory and refreshes it
// before expiry. The vendor throttles token issuance to one per minute,
// so acquisition goes through its own limiter.
type tokenManager struct {
	baseURL    string
	appKey     string
	appSecret  string
	httpClient *http.Client
	logger     arbor.ILogger

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	issueLimiter *rate.Limiter
}

func newTokenManager(baseURL, appKey, appSecret string, httpClient *http.Client, logger arbor.ILogger) *tokenManager {
	return &tokenManager{
		baseURL:      baseURL,
		appKey:       appKey,
		appSecret:    appSecret,
		httpClient:   httpClient,
		logger:       logger,
		issueLimiter: rate.NewLimiter(rate.Every(time.Minute), 1),
	}
}

// Token returns a valid access token, refreshing when less than
// refreshMargin remains.
func (m *tokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && time.Until(m.expiresAt) > refreshMargin {
		return m.token, nil
	}

	var lastErr error
	for attempt := 1; attempt <= tokenMaxAttempts; attempt++ {
		if err := m.issueLimiter.Wait(ctx); err != nil {
			return "", err
		}

		token, expiresIn, err := m.issue(ctx)
		if err == nil {
			m.token = token
			m.expiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second)
			m.logger.Info().
				Str("expires_at", m.expiresAt.Format(time.RFC3339)).
				Msg("KIS access token acquired")
			return m.token, nil
		}
		lastErr = err

		m.logger.Warn().Err(err).
			Int("attempt", attempt).
			Msg("KIS token acquisition failed")

		if attempt < tokenMaxAttempts {
			select {
			case <-time.After(tokenRetryWait):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}

	return "", &TokenError{Attempts: tokenMaxAttempts, Err: lastErr}
}

// Invalidate drops the cached token so the next call re-issues
func (m *tokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.expiresAt = time.Time{}
}

func (m *tokenManager) issue(ctx context.Context) (string, int64, error) {
	body, err := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     m.appKey,
		"appsecret":  m.appSecret,
	})
	if err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.baseURL+"/oauth2/tokenP", bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("failed to execute token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", 0, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(raw),
			Endpoint:   "/oauth2/tokenP",
		}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", 0, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", 0, fmt.Errorf("token response carried no access_token")
	}
	return tr.AccessToken, tr.ExpiresIn, nil
}
