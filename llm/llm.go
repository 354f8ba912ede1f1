package llm

import (
	"context"
	"fmt"

	"github.com/fabfab/agentic-rag/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

type Client interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

type Options struct {
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// NewClient builds a client for one agent capability, using the model
// configured for that capability.
func NewClient(cfg config.Config, capability string) (Client, error) {
	opts := Options{
		Provider:      cfg.LLM.Provider,
		Model:         cfg.ModelFor(capability),
		MaxTokens:     cfg.LLM.MaxTokens,
		Temperature:   cfg.LLM.Temperature,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}

	return newClient(opts)
}

func newClient(opts Options) (Client, error) {
	switch opts.Provider {
	case config.ProviderOllama:
		return NewOllamaClient(opts)
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		return NewOpenAIClient(opts), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", opts.Provider)
	}
}

// Clients maps each capability to its client.
type Clients map[string]Client

// For returns the client for a capability, or nil if it was not built.
func (c Clients) For(capability string) Client {
	return c[capability]
}

// NewClients builds a client for every capability. Capabilities configured
// with the same model share one client.
func NewClients(cfg config.Config) (Clients, error) {
	clients := make(Clients, len(config.Capabilities))
	byModel := make(map[string]Client)
	for _, capability := range config.Capabilities {
		model := cfg.ModelFor(capability)
		if client, ok := byModel[model]; ok {
			clients[capability] = client
			continue
		}
		client, err := NewClient(cfg, capability)
		if err != nil {
			return nil, fmt.Errorf("llm setup for %s: %w", capability, err)
		}
		byModel[model] = client
		clients[capability] = client
	}
	return clients, nil
}
