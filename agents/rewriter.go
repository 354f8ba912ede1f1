package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/fabfab/agentic-rag/llm"
	"github.com/fabfab/agentic-rag/rag"
)

const DefaultVariantCount = 5

const rewriterPrompt = `You rewrite a user question into %d different versions to improve document retrieval
from a vector database. Vary wording, synonyms and level of detail while keeping the intent.
Return one question per line with no numbering and no commentary.`

// QueryRewriter produces alternative phrasings of a question. A reply with
// fewer than count usable variants is accepted as long as it has one.
type QueryRewriter struct {
	client llm.Client
	count  int
	logger *zap.Logger
}

func NewQueryRewriter(client llm.Client, count int) *QueryRewriter {
	if count <= 0 {
		count = DefaultVariantCount
	}
	return &QueryRewriter{client: client, count: count, logger: zap.NewNop()}
}

func (r *QueryRewriter) WithLogger(logger *zap.Logger) *QueryRewriter {
	if logger != nil {
		r.logger = logger
	}
	return r
}

func (r *QueryRewriter) Expand(ctx context.Context, question string) ([]string, error) {
	out, err := complete(ctx, r.client, fmt.Sprintf(rewriterPrompt, r.count), question)
	if err != nil {
		return nil, fmt.Errorf("rewrite question: %w", err)
	}

	variants := ParseVariants(out, question, r.count)
	if len(variants) == 0 {
		return nil, fmt.Errorf("rewrite question: model returned no usable variants")
	}
	if len(variants) < r.count {
		r.logger.Warn("fewer variants than requested",
			zap.Int("requested", r.count),
			zap.Int("received", len(variants)),
		)
	}
	return variants, nil
}

var listMarker = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.):]|\(\d+\))\s*`)

// ParseVariants splits model output into at most limit distinct questions.
// List markers and quotes are removed; duplicates (case-insensitive) and
// copies of the original question are dropped.
func ParseVariants(raw, original string, limit int) []string {
	seen := map[string]struct{}{
		strings.ToLower(strings.TrimSpace(original)): {},
	}

	variants := make([]string, 0, limit)
	for _, line := range strings.Split(stripCodeFence(raw), "\n") {
		line = listMarker.ReplaceAllString(line, "")
		line = strings.Trim(strings.TrimSpace(line), `"'`)
		if line == "" {
			continue
		}
		key := strings.ToLower(line)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		variants = append(variants, line)
		if limit > 0 && len(variants) == limit {
			break
		}
	}
	return variants
}

var _ rag.VariantGenerator = (*QueryRewriter)(nil)
