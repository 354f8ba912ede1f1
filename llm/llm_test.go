package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/fabfab/agentic-rag/config"
)

func TestNewClientRequiresOpenAIKey(t *testing.T) {
	cfg := config.Config{LLM: config.LLMConfig{Provider: config.ProviderOpenAI, Model: "gpt"}}
	_, err := NewClient(cfg, config.CapabilityRouter)
	assert.Error(t, err)
}

func TestNewClientRejectsUnknownProvider(t *testing.T) {
	cfg := config.Config{LLM: config.LLMConfig{Provider: "mystery"}}
	_, err := NewClient(cfg, config.CapabilityRouter)
	assert.ErrorContains(t, err, "unknown llm provider")
}

func TestNewClientBuildsOllama(t *testing.T) {
	cfg := config.Config{
		LLM:        config.LLMConfig{Provider: config.ProviderOllama, Model: "llama3"},
		OllamaHost: "http://localhost:11434/",
	}
	client, err := NewClient(cfg, config.CapabilityGrader)
	require.NoError(t, err)
	assert.IsType(t, &ollamaClient{}, client)
}

func TestOpenAIClientUsesCapabilityModel(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"vectorstore"}}]}`))
	}))
	defer server.Close()

	cfg := config.Config{
		LLM: config.LLMConfig{
			Provider:  config.ProviderOpenAI,
			Model:     "shared",
			Models:    map[string]string{config.CapabilityRouter: "router-model"},
			MaxTokens: 64,
		},
		OpenAIAPIKey:  "test",
		OpenAIBaseURL: server.URL + "/v1",
	}

	client, err := NewClient(cfg, config.CapabilityRouter)
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), []Message{
		{Role: RoleSystem, Content: "route"},
		{Role: RoleUser, Content: "question"},
	})
	require.NoError(t, err)
	assert.Equal(t, "vectorstore", out)
	assert.Equal(t, "router-model", received["model"])
	assert.EqualValues(t, 64, received["max_tokens"])

	msgs, ok := received["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestOpenAIClientErrorsOnNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(Options{Model: "m", OpenAIAPIKey: "k", OpenAIBaseURL: server.URL + "/v1"})
	_, err := client.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	assert.ErrorContains(t, err, "no choices")
}

func TestToMessageContentMapsRoles(t *testing.T) {
	content := toMessageContent([]Message{
		{Role: RoleSystem, Content: "s"},
		{Role: RoleUser, Content: "u"},
		{Role: RoleAssistant, Content: "a"},
	})

	require.Len(t, content, 3)
	assert.Equal(t, llms.ChatMessageTypeSystem, content[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, content[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, content[2].Role)
	assert.Equal(t, llms.TextContent{Text: "u"}, content[1].Parts[0])
}

func TestNewClientsSharesClientPerModel(t *testing.T) {
	cfg := config.Config{
		LLM: config.LLMConfig{
			Provider: config.ProviderOllama,
			Model:    "llama3",
			Models:   map[string]string{config.CapabilityTranslator: "codellama"},
		},
		OllamaHost: "http://localhost:11434",
	}

	clients, err := NewClients(cfg)
	require.NoError(t, err)
	require.Len(t, clients, len(config.Capabilities))

	assert.Same(t, clients.For(config.CapabilityRouter), clients.For(config.CapabilityReviewer))
	assert.NotSame(t, clients.For(config.CapabilityRouter), clients.For(config.CapabilityTranslator))
	assert.Nil(t, clients.For("UNKNOWN_LLM"))
}

func TestNewClientsNamesFailingCapability(t *testing.T) {
	cfg := config.Config{LLM: config.LLMConfig{Provider: config.ProviderOpenAI, Model: "gpt"}}
	_, err := NewClients(cfg)
	assert.ErrorContains(t, err, config.CapabilityRouter)
}

func TestOpenAIClientReportsTruncation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"finish_reason":"length","message":{"role":"assistant","content":""}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(Options{Model: "m", OpenAIAPIKey: "k", OpenAIBaseURL: server.URL + "/v1"})
	_, err := client.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	assert.ErrorContains(t, err, "token limit")
}

func TestToChatMessagesSkipsEmptyContent(t *testing.T) {
	out := toChatMessages([]Message{
		{Role: RoleSystem, Content: "  "},
		{Role: RoleUser, Content: "question"},
	})
	require.Len(t, out, 1)
	assert.Equal(t, RoleUser, out[0].Role)
}
