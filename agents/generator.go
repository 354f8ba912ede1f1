package agents

import (
	"context"
	"fmt"

	"github.com/fabfab/agentic-rag/llm"
	"github.com/fabfab/agentic-rag/rag"
)

const generatorPrompt = `You are a customer support assistant answering questions with the supplied context.
Use three sentences maximum and keep the answer concise.
If the context does not contain the answer, say that you don't know.`

type Generator struct {
	client llm.Client
}

func NewGenerator(client llm.Client) *Generator {
	return &Generator{client: client}
}

// Generate is called with an empty document list when retrieval produced
// nothing usable; the prompt still asks the model to admit uncertainty.
func (g *Generator) Generate(ctx context.Context, question string, docs []rag.Document) (string, error) {
	prompt := fmt.Sprintf("Question:\n%s\n\nContext:\n%s", question, formatDocuments(docs))
	out, err := complete(ctx, g.client, generatorPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return out, nil
}

var _ rag.Generator = (*Generator)(nil)
