package agents

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/fabfab/agentic-rag/llm"
	"github.com/fabfab/agentic-rag/rag"
)

const relevancePrompt = `You grade whether a retrieved document is relevant to a user question.
The test is lenient: if the document contains keywords or meaning related to the question, it is relevant.
Reply with a single word, yes or no.`

type RelevanceGrader struct {
	client llm.Client
}

func NewRelevanceGrader(client llm.Client) *RelevanceGrader {
	return &RelevanceGrader{client: client}
}

func (g *RelevanceGrader) GradeRelevance(ctx context.Context, question string, doc rag.Document) (rag.Verdict, error) {
	prompt := fmt.Sprintf("Question:\n%s\n\nDocument:\n%s", question, strings.TrimSpace(doc.Content))
	out, err := complete(ctx, g.client, relevancePrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("grade relevance: %w", err)
	}
	return ParseVerdict(out)
}

// KeywordRelevanceGrader marks a document relevant when it shares at least
// MinOverlap non-stopword terms with the question.
type KeywordRelevanceGrader struct {
	MinOverlap int
}

func NewKeywordRelevanceGrader() *KeywordRelevanceGrader {
	return &KeywordRelevanceGrader{MinOverlap: 1}
}

func (g *KeywordRelevanceGrader) GradeRelevance(_ context.Context, question string, doc rag.Document) (rag.Verdict, error) {
	need := g.MinOverlap
	if need <= 0 {
		need = 1
	}

	docTerms := make(map[string]struct{})
	for _, term := range terms(doc.Content) {
		docTerms[term] = struct{}{}
	}

	matched := 0
	for _, term := range unique(terms(question)) {
		if _, ok := docTerms[term]; ok {
			matched++
			if matched >= need {
				return rag.VerdictYes, nil
			}
		}
	}
	return rag.VerdictNo, nil
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "can": {}, "do": {}, "does": {}, "for": {},
	"how": {}, "i": {}, "in": {}, "is": {}, "it": {}, "me": {}, "my": {}, "of": {},
	"on": {}, "or": {}, "the": {}, "to": {}, "what": {}, "when": {}, "where": {},
	"which": {}, "who": {}, "why": {}, "with": {}, "you": {}, "your": {}, "we": {},
	"our": {}, "have": {}, "has": {}, "be": {}, "this": {}, "that": {}, "there": {},
}

func terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

func unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

var (
	_ rag.RelevanceGrader = (*RelevanceGrader)(nil)
	_ rag.RelevanceGrader = (*KeywordRelevanceGrader)(nil)
)
