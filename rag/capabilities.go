package rag

import "context"

// Router classifies a question into one of the retrieval routes.
type Router interface {
	Route(ctx context.Context, question string) (RouteDecision, error)
}

// VectorSearcher runs a semantic similarity search.
type VectorSearcher interface {
	Search(ctx context.Context, query string) (RetrievalResult, error)
}

// BatchVectorSearcher returns one result per query, in query order.
type BatchVectorSearcher interface {
	VectorSearcher
	SearchBatch(ctx context.Context, queries []string) ([]RetrievalResult, error)
}

// Translator turns a natural-language question into a read-only Cypher query.
// It returns ErrTranslationDeclined rather than a malformed query.
type Translator interface {
	Translate(ctx context.Context, question string) (string, error)
}

// StructuredQueryExecutor runs a translated query against the graph database.
type StructuredQueryExecutor interface {
	Execute(ctx context.Context, query string) (RetrievalResult, error)
}

// WebSearcher searches the web for the exact question text.
type WebSearcher interface {
	Search(ctx context.Context, question string) (RetrievalResult, error)
}

type RelevanceGrader interface {
	GradeRelevance(ctx context.Context, question string, doc Document) (Verdict, error)
}

type Generator interface {
	Generate(ctx context.Context, question string, docs []Document) (string, error)
}

// VariantGenerator reformulates a question into alternative phrasings.
type VariantGenerator interface {
	Expand(ctx context.Context, question string) ([]string, error)
}

type GroundednessGrader interface {
	GradeGroundedness(ctx context.Context, question string, docs []Document, generation string) (Verdict, error)
}

type Reviewer interface {
	Review(ctx context.Context, question, generation string) (Review, error)
}
