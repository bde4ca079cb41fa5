package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/common"
	"github.com/ternarybob/specula/internal/interfaces"
)

// NewLLMService constructs the configured provider behind the shared
// sliding-window budget and retry policy.
func NewLLMService(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (interfaces.LLMService, error) {
	requestsPerMin := cfg.LLM.RequestsPerMin
	if requestsPerMin <= 0 {
		requestsPerMin = 60
	}
	limiter := newSlidingWindowLimiter(requestsPerMin, time.Minute)

	retry := NewDefaultRetryConfig()
	if cfg.LLM.MaxRetries > 0 {
		retry.MaxRetries = cfg.LLM.MaxRetries
	}

	logger.Info().
		Str("provider", string(cfg.LLM.DefaultProvider)).
		Int("requests_per_min", requestsPerMin).
		Msg("Initializing LLM service")

	switch cfg.LLM.DefaultProvider {
	case common.LLMProviderClaude:
		return NewClaudeService(&cfg.Claude, limiter, retry, logger)
	case common.LLMProviderGemini, "":
		return NewGeminiService(ctx, &cfg.Gemini, limiter, retry, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLM.DefaultProvider)
	}
}
