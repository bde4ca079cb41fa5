package interfaces

import (
	"context"
)

// ChatOptions tunes one LLM completion
type ChatOptions struct {
	System      string
	Temperature float32
	// Grounding enables the provider's web-search retrieval mode.
	Grounding bool
}

// ChatResult carries the completion text plus provider usage metadata
type ChatResult struct {
	Text       string
	Model      string
	TokensUsed int
}

// LLMService is the provider-neutral completion interface. Implementations
// enforce the shared request budget and retry transient overload.
type LLMService interface {
	Chat(ctx context.Context, prompt string, opts ChatOptions) (*ChatResult, error)
	Provider() string
}

// Embedder produces sentence embeddings for news deduplication.
// Available reports whether real embeddings are served; when false the
// caller must skip dedup (identity behavior).
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Available() bool
}
