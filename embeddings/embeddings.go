package embeddings

import (
	"context"
	"fmt"

	"github.com/fabfab/agentic-rag/config"
)

// DefaultBatchSize caps the number of texts sent in one provider call.
const DefaultBatchSize = 256

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Options struct {
	Provider  string
	Model     string
	Dimension int
	BatchSize int

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// NewEmbedder returns the configured provider wrapped so that every call is
// split into batches and every vector is checked against the dimension.
func NewEmbedder(cfg config.Config) (Embedder, error) {
	opts := Options{
		Provider:      cfg.Embeddings.Provider,
		Model:         cfg.Embeddings.Model,
		Dimension:     cfg.Embeddings.Dimension,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}

	var (
		provider Embedder
		err      error
	)
	switch opts.Provider {
	case config.ProviderOllama:
		provider, err = NewOllamaEmbedder(opts)
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		provider = NewOpenAIEmbedder(opts)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", opts.Provider)
	}
	if err != nil {
		return nil, err
	}
	return Checked(opts.Provider, provider, opts.Dimension, opts.BatchSize), nil
}

type checked struct {
	name      string
	next      Embedder
	dimension int
	batchSize int
}

// Checked wraps an embedder with batching and result validation. A dimension
// of zero disables the dimension check.
func Checked(name string, next Embedder, dimension, batchSize int) Embedder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &checked{name: name, next: next, dimension: dimension, batchSize: batchSize}
}

func (c *checked) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		batch, err := c.next.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("%s returned %d embeddings for %d inputs", c.name, len(batch), end-start)
		}
		for i, vec := range batch {
			if c.dimension > 0 && len(vec) != c.dimension {
				return nil, fmt.Errorf("%s embedding %d dimension mismatch: expected %d, got %d", c.name, start+i, c.dimension, len(vec))
			}
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}
