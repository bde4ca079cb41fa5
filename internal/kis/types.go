// Package kis provides a client for the Korea Investment & Securities
// open API. This package centralizes all KIS API interactions.
package kis

import (
	"fmt"
	"time"
)

// APIError represents an error from the KIS API.
type APIError struct {
	StatusCode int
	Code       string // msg_cd from the response body
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("KIS API error: %s (status: %d, code: %s, endpoint: %s)",
		e.Message, e.StatusCode, e.Code, e.Endpoint)
}

// RateLimitError represents a vendor rate limit rejection.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("KIS rate limit exceeded, retry after %v", e.RetryAfter)
}

// TokenError represents an OAuth token acquisition failure.
type TokenError struct {
	Attempts int
	Err      error
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("KIS token acquisition failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TokenError) Unwrap() error { return e.Err }
