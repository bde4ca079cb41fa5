package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsOverloadError(t *testing.T) {
	assert.True(t, IsOverloadError(errors.New("Error 429, Message: quota exceeded")))
	assert.True(t, IsOverloadError(errors.New("RESOURCE_EXHAUSTED")))
	assert.True(t, IsOverloadError(errors.New("api_error: Overloaded")))
	assert.True(t, IsOverloadError(errors.New("503 Service Unavailable")))
	assert.False(t, IsOverloadError(errors.New("invalid request")))
	assert.False(t, IsOverloadError(nil))
}

func TestExtractRetryDelay(t *testing.T) {
	err := errors.New("Error 429, Message: ... Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED")
	delay := ExtractRetryDelay(err)
	assert.InDelta(t, 45.387, delay.Seconds(), 0.001)

	assert.Zero(t, ExtractRetryDelay(errors.New("no delay here")))
	assert.Zero(t, ExtractRetryDelay(nil))
}

func TestCalculateBackoff_GrowsAndCaps(t *testing.T) {
	cfg := &RetryConfig{
		MaxRetries:        5,
		InitialBackoff:    2 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}

	// Jitter is ±25%, so check envelopes rather than exact values
	b0 := cfg.CalculateBackoff(0, 0)
	assert.GreaterOrEqual(t, b0, 1500*time.Millisecond)
	assert.LessOrEqual(t, b0, 2500*time.Millisecond)

	b4 := cfg.CalculateBackoff(4, 0)
	assert.LessOrEqual(t, b4, time.Duration(float64(30*time.Second)*1.25))
}

func TestSlidingWindowLimiter_AllowsBurstThenBlocks(t *testing.T) {
	l := newSlidingWindowLimiter(3, 200*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	// Fourth request waits for the window to slide
	require.NoError(t, l.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestSlidingWindowLimiter_ContextCancel(t *testing.T) {
	l := newSlidingWindowLimiter(1, time.Minute)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
