package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

type ollamaClient struct {
	model       llms.Model
	maxTokens   int
	temperature float64
}

func NewOllamaClient(opts Options) (Client, error) {
	host := strings.TrimRight(opts.OllamaHost, "/")
	if host == "" {
		host = "http://localhost:11434"
	}

	model, err := ollama.New(ollama.WithModel(opts.Model), ollama.WithServerURL(host))
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}

	return &ollamaClient{
		model:       model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}, nil
}

func (c *ollamaClient) Generate(ctx context.Context, messages []Message) (string, error) {
	callOpts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if c.maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(c.maxTokens))
	}

	resp, err := c.model.GenerateContent(ctx, toMessageContent(messages), callOpts...)
	if err != nil {
		return "", fmt.Errorf("call ollama chat API: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("ollama returned no choices")
	}

	return resp.Choices[0].Content, nil
}

func toMessageContent(messages []Message) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		role := llms.ChatMessageTypeHuman
		switch msg.Role {
		case RoleSystem:
			role = llms.ChatMessageTypeSystem
		case RoleAssistant:
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, msg.Content))
	}
	return content
}
