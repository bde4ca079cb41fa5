package marketdata

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/common"
)

const (
	retryAttempts = 3
	retryBase     = 2 * time.Second
)

// withRetry runs a vendor call with exponential backoff on transient
// failures. Validation and not-found errors pass through untouched.
func withRetry(ctx context.Context, logger arbor.ILogger, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			backoff := retryBase * time.Duration(1<<(attempt-1))
			logger.Warn().
				Str("op", op).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Err(lastErr).
				Msg("Retrying vendor call")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if common.IsValidation(lastErr) {
			return lastErr
		}
	}
	return &common.TransientError{Op: op, Err: lastErr}
}
