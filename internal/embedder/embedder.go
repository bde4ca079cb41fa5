// Package embedder talks to a local sentence-embedding server used for
// news deduplication. When the server is unreachable the service reports
// unavailable and callers skip dedup entirely.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/common"
	"github.com/ternarybob/specula/internal/interfaces"
)

const (
	// DefaultTimeout is the per-request HTTP timeout
	DefaultTimeout = 30 * time.Second

	// healthCacheTTL bounds how often the health probe re-runs
	healthCacheTTL = 60 * time.Second
)

// Service is an HTTP client for the embedding server
type Service struct {
	serverURL  string
	model      string
	httpClient *http.Client
	logger     arbor.ILogger

	mu          sync.RWMutex
	healthy     bool
	lastChecked time.Time
}

// NewService creates a new embedding client from config
func NewService(config *common.EmbeddingConfig, logger arbor.ILogger) interfaces.Embedder {
	return &Service{
		serverURL: config.ServerURL,
		model:     config.Model,
		httpClient: &http.Client{
			Timeout: common.DurationOr(config.RequestTimeout, DefaultTimeout),
		},
		logger: logger,
	}
}

type embedRequest struct {
	Model  string   `json:"model"`
	Inputs []string `json:"inputs"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns one vector per input text, in order
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embedRequest{Model: s.model, Inputs: texts})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.serverURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.markUnhealthy()
		return nil, &common.TransientError{Op: "embed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		s.markUnhealthy()
		return nil, fmt.Errorf("embedding server error: status %d: %s", resp.StatusCode, string(raw))
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("failed to decode embeddings: %w", err)
	}
	if len(er.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d",
			len(er.Embeddings), len(texts))
	}
	return er.Embeddings, nil
}

// Available probes the server health, cached for healthCacheTTL
func (s *Service) Available() bool {
	if s.serverURL == "" {
		return false
	}

	s.mu.RLock()
	if time.Since(s.lastChecked) < healthCacheTTL {
		healthy := s.healthy
		s.mu.RUnlock()
		return healthy
	}
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.serverURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := s.httpClient.Do(req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastChecked = time.Now()
	if err != nil {
		s.healthy = false
		return false
	}
	resp.Body.Close()
	s.healthy = resp.StatusCode == http.StatusOK
	return s.healthy
}

func (s *Service) markUnhealthy() {
	s.mu.Lock()
	s.healthy = false
	s.lastChecked = time.Now()
	s.mu.Unlock()
}

// CosineSimilarity returns the cosine of the angle between two vectors,
// 0 for mismatched or zero vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
