package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/common"
	"github.com/ternarybob/specula/internal/interfaces"
)

// ClaudeService implements interfaces.LLMService on the Anthropic API.
// Claude carries no web-search retrieval here, so the Grounding option is
// accepted and ignored.
type ClaudeService struct {
	client    anthropic.Client
	model     string
	maxTokens int
	temp      float32
	limiter   *slidingWindowLimiter
	retry     *RetryConfig
	logger    arbor.ILogger
}

// NewClaudeService creates a Claude-backed LLM service sharing the given
// request limiter.
func NewClaudeService(config *common.ClaudeConfig, limiter *slidingWindowLimiter, retry *RetryConfig, logger arbor.ILogger) (*ClaudeService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	client := anthropic.NewClient(
		option.WithAPIKey(config.APIKey),
	)

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	return &ClaudeService{
		client:    client,
		model:     config.Model,
		maxTokens: maxTokens,
		temp:      config.Temperature,
		limiter:   limiter,
		retry:     retry,
		logger:    logger,
	}, nil
}

// Provider returns the provider id
func (s *ClaudeService) Provider() string { return "claude" }

// Chat runs one completion under the shared budget with overload retry.
func (s *ClaudeService) Chat(ctx context.Context, prompt string, opts interfaces.ChatOptions) (*interfaces.ChatResult, error) {
	temp := opts.Temperature
	if temp <= 0 {
		temp = s.temp
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: int64(s.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if temp > 0 {
		params.Temperature = anthropic.Float(float64(temp))
	}
	if opts.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: opts.System},
		}
	}

	var resp *anthropic.Message
	var apiErr error
	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, apiErr = s.client.Messages.New(ctx, params)
		if apiErr == nil {
			break
		}
		if attempt == s.retry.MaxRetries {
			break
		}

		var backoff time.Duration
		if IsOverloadError(apiErr) {
			backoff = s.retry.CalculateBackoff(attempt, 0)
		} else {
			backoff = time.Duration(attempt+1) * 2 * time.Second
		}

		s.logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Retrying Claude API call")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if apiErr != nil {
		return nil, &common.TransientError{Op: "claude chat", Err: apiErr}
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("empty response from Claude API")
	}

	return &interfaces.ChatResult{
		Text:       text.String(),
		Model:      s.model,
		TokensUsed: int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}, nil
}
