package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/fabfab/agentic-rag/llm"
	"github.com/fabfab/agentic-rag/rag"
)

const irrelevantMarker = "IRRELEVANT"

const reviewerPrompt = `You review a support answer before it is sent to a customer.
If the answer already covers the question, return it unchanged.
If it is relevant but poorly worded, rewrite it concisely and return only the rewritten answer.
If it does not address the question at all, reply with the single word IRRELEVANT.`

type Reviewer struct {
	client llm.Client
}

func NewReviewer(client llm.Client) *Reviewer {
	return &Reviewer{client: client}
}

func (r *Reviewer) Review(ctx context.Context, question, generation string) (rag.Review, error) {
	prompt := fmt.Sprintf("Question:\n%s\n\nAnswer:\n%s", question, generation)
	out, err := complete(ctx, r.client, reviewerPrompt, prompt)
	if err != nil {
		return rag.Review{}, fmt.Errorf("review answer: %w", err)
	}
	return parseReview(out), nil
}

func parseReview(out string) rag.Review {
	text := strings.TrimSpace(out)
	normalized := strings.ToLower(strings.Trim(text, " .!\"'"))

	switch {
	case text == "",
		strings.EqualFold(strings.Trim(text, " ."), irrelevantMarker),
		strings.HasPrefix(normalized, "sorry, contact customer support"):
		return rag.Review{Relevant: false}
	default:
		return rag.Review{Answer: text, Relevant: true}
	}
}

var _ rag.Reviewer = (*Reviewer)(nil)
