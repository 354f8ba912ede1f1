package agents

import (
	"context"
	"fmt"

	"github.com/fabfab/agentic-rag/llm"
	"github.com/fabfab/agentic-rag/rag"
)

const groundednessPrompt = `You check whether an answer is grounded in and supported by a set of facts
and whether it addresses the question.
Reply with a single word, yes or no.`

type GroundednessGrader struct {
	client llm.Client
}

func NewGroundednessGrader(client llm.Client) *GroundednessGrader {
	return &GroundednessGrader{client: client}
}

func (g *GroundednessGrader) GradeGroundedness(ctx context.Context, question string, docs []rag.Document, generation string) (rag.Verdict, error) {
	prompt := fmt.Sprintf("Facts:\n%s\n\nQuestion:\n%s\n\nAnswer:\n%s", formatDocuments(docs), question, generation)
	out, err := complete(ctx, g.client, groundednessPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("grade groundedness: %w", err)
	}
	return ParseVerdict(out)
}

var _ rag.GroundednessGrader = (*GroundednessGrader)(nil)
