package llm

import (
	"context"
	"sync"
	"time"
)

// slidingWindowLimiter enforces the shared LLM request budget: at most
// maxRequests inside any trailing window. All providers share one
// instance so the budget holds across report, analysis, and ranker calls.
type slidingWindowLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	stamps      []time.Time
}

func newSlidingWindowLimiter(maxRequests int, window time.Duration) *slidingWindowLimiter {
	return &slidingWindowLimiter{
		maxRequests: maxRequests,
		window:      window,
	}
}

// Wait blocks until a request slot opens or the context ends.
func (l *slidingWindowLimiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := time.Now()
		l.evict(now)

		if len(l.stamps) < l.maxRequests {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			return nil
		}

		// Oldest stamp leaving the window opens the next slot
		wait := l.stamps[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *slidingWindowLimiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && l.stamps[i].Before(cutoff) {
		i++
	}
	l.stamps = l.stamps[i:]
}
