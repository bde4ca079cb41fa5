package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/common"
)

func TestEmbed_RoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/embed":
			var req embedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			resp := embedResponse{Embeddings: make([][]float32, len(req.Inputs))}
			for i := range req.Inputs {
				resp.Embeddings[i] = []float32{float32(i), 1}
			}
			json.NewEncoder(w).Encode(resp)
		}
	}))
	defer server.Close()

	svc := NewService(&common.EmbeddingConfig{
		ServerURL: server.URL,
		Model:     "jhgan/ko-sbert-sts",
	}, arbor.NewLogger())

	assert.True(t, svc.Available())

	vecs, err := svc.Embed(context.Background(), []string{"삼성전자 실적", "반도체 수요"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0, 1}, vecs[0])
}

func TestAvailable_NoServer(t *testing.T) {
	svc := NewService(&common.EmbeddingConfig{ServerURL: ""}, arbor.NewLogger())
	assert.False(t, svc.Available())
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	// Degenerate inputs
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, CosineSimilarity(nil, nil))
}
