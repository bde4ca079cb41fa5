package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/common"
	"github.com/ternarybob/specula/internal/interfaces"
	"google.golang.org/genai"
)

// GeminiService implements interfaces.LLMService on the Gemini API.
type GeminiService struct {
	client  *genai.Client
	model   string
	temp    float32
	limiter *slidingWindowLimiter
	retry   *RetryConfig
	logger  arbor.ILogger
}

// NewGeminiService creates a Gemini-backed LLM service sharing the given
// request limiter.
func NewGeminiService(ctx context.Context, config *common.GeminiConfig, limiter *slidingWindowLimiter, retry *RetryConfig, logger arbor.ILogger) (*GeminiService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiService{
		client:  client,
		model:   config.Model,
		temp:    config.Temperature,
		limiter: limiter,
		retry:   retry,
		logger:  logger,
	}, nil
}

// Provider returns the provider id
func (s *GeminiService) Provider() string { return "gemini" }

// Chat runs one completion under the shared budget with overload retry.
func (s *GeminiService) Chat(ctx context.Context, prompt string, opts interfaces.ChatOptions) (*interfaces.ChatResult, error) {
	temp := opts.Temperature
	if temp <= 0 {
		temp = s.temp
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temp),
	}
	if opts.System != "" {
		config.SystemInstruction = genai.NewContentFromText(opts.System, genai.RoleUser)
	}
	if opts.Grounding {
		config.Tools = []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}},
		}
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	var resp *genai.GenerateContentResponse
	var apiErr error
	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, apiErr = s.client.Models.GenerateContent(ctx, s.model, contents, config)
		if apiErr == nil {
			break
		}
		if attempt == s.retry.MaxRetries {
			break
		}

		var backoff time.Duration
		if IsOverloadError(apiErr) {
			backoff = s.retry.CalculateBackoff(attempt, ExtractRetryDelay(apiErr))
		} else {
			backoff = time.Duration(attempt+1) * 2 * time.Second
		}

		s.logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Retrying Gemini API call")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if apiErr != nil {
		return nil, &common.TransientError{Op: "gemini chat", Err: apiErr}
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("empty response from Gemini API")
	}

	result := &interfaces.ChatResult{
		Text:  text,
		Model: s.model,
	}
	if resp.UsageMetadata != nil {
		result.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return result, nil
}
