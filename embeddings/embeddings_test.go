package embeddings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/agentic-rag/config"
)

func TestNewEmbedderDefaults(t *testing.T) {
	cfg := config.Config{
		Embeddings: config.EmbeddingsConfig{
			Provider:  config.ProviderOllama,
			Model:     "nomic-embed-text",
			Dimension: 3,
		},
		OllamaHost: "http://localhost:11434",
	}

	embedder, err := NewEmbedder(cfg)
	require.NoError(t, err)
	assert.NotNil(t, embedder)
}

func TestNewEmbedderOpenAIMissingKey(t *testing.T) {
	cfg := config.Config{
		Embeddings: config.EmbeddingsConfig{
			Provider:  config.ProviderOpenAI,
			Model:     "text-embedding-3-small",
			Dimension: 1536,
		},
	}

	_, err := NewEmbedder(cfg)
	assert.Error(t, err)
}

func TestOpenAIEmbedderOrdersByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}
		]}`))
	}))
	defer server.Close()

	embedder := NewOpenAIEmbedder(Options{Model: "m", Dimension: 2, OpenAIAPIKey: "k", OpenAIBaseURL: server.URL + "/v1"})
	vectors, err := embedder.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)
}

func TestOpenAIEmbedderChecksDimension(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[1,0,0]}]}`))
	}))
	defer server.Close()

	provider := NewOpenAIEmbedder(Options{Model: "m", OpenAIAPIKey: "k", OpenAIBaseURL: server.URL + "/v1"})
	_, err := Checked("openai", provider, 2, 0).Embed(context.Background(), []string{"only"})
	assert.ErrorContains(t, err, "dimension mismatch")
}

type countingEmbedder struct {
	batches [][]string
	short   bool
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.batches = append(c.batches, texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(c.batches)), float32(i)}
	}
	if c.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func TestCheckedSkipsEmptyInput(t *testing.T) {
	provider := &countingEmbedder{}
	vectors, err := Checked("test", provider, 2, 0).Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
	assert.Empty(t, provider.batches)
}

func TestCheckedSplitsIntoBatches(t *testing.T) {
	provider := &countingEmbedder{}
	vectors, err := Checked("test", provider, 2, 2).Embed(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, provider.batches)
	assert.Equal(t, [][]float32{{1, 0}, {1, 1}, {2, 0}, {2, 1}, {3, 0}}, vectors)
}

func TestCheckedRejectsCountMismatch(t *testing.T) {
	provider := &countingEmbedder{short: true}
	_, err := Checked("test", provider, 0, 0).Embed(context.Background(), []string{"a", "b"})
	assert.ErrorContains(t, err, "returned 1 embeddings for 2 inputs")
}
