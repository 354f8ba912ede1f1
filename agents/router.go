package agents

import (
	"context"

	"github.com/fabfab/agentic-rag/llm"
	"github.com/fabfab/agentic-rag/rag"
)

const routerPrompt = `You route customer questions for an online store to a data source.
Answer with exactly one word:
- vectorstore: policies, shipping, returns, warranties, FAQs and other store documentation.
- cypher_db: products, prices, stock levels, categories, orders and other catalogue facts.
- websearch: anything else, including current events and general knowledge.`

type Router struct {
	client llm.Client
}

func NewRouter(client llm.Client) *Router {
	return &Router{client: client}
}

// Route never falls back to a default route. An unreachable model or a label
// outside the known set is reported as a RoutingError.
func (r *Router) Route(ctx context.Context, question string) (rag.RouteDecision, error) {
	out, err := complete(ctx, r.client, routerPrompt, question)
	if err != nil {
		return "", &rag.RoutingError{Err: err}
	}
	return rag.ParseRouteDecision(stripCodeFence(out))
}

var _ rag.Router = (*Router)(nil)
