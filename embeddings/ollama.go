package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms/ollama"
)

type ollamaEmbedder struct {
	client *ollama.LLM
}

func NewOllamaEmbedder(opts Options) (Embedder, error) {
	host := strings.TrimRight(opts.OllamaHost, "/")
	if host == "" {
		host = "http://localhost:11434"
	}

	client, err := ollama.New(ollama.WithModel(opts.Model), ollama.WithServerURL(host))
	if err != nil {
		return nil, fmt.Errorf("create ollama embedder: %w", err)
	}

	return &ollamaEmbedder{client: client}, nil
}

func (e *ollamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := e.client.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("call ollama embeddings API: %w", err)
	}
	return vectors, nil
}
