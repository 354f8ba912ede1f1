package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/fabfab/agentic-rag/llm"
	"github.com/fabfab/agentic-rag/rag"
)

const declineSentence = "Sorry! unable to find a valid response"

const translatorPrompt = `You translate customer questions into read-only Cypher queries for a Neo4j database.
Use only the node labels, relationship types and properties listed in the schema.
Never write data: no CREATE, MERGE, DELETE, SET, REMOVE or DROP.
Do not guess the meaning of acronyms or product codes you do not recognise.
Return only the Cypher query. If the question cannot be answered from the schema, reply exactly:
` + declineSentence + `

Schema:
%s`

// SchemaSource describes the graph so the model can stay within it.
type SchemaSource interface {
	DescribeSchema(ctx context.Context) (string, error)
}

type CypherTranslator struct {
	client llm.Client
	schema SchemaSource
}

func NewCypherTranslator(client llm.Client, schema SchemaSource) *CypherTranslator {
	return &CypherTranslator{client: client, schema: schema}
}

func (t *CypherTranslator) Translate(ctx context.Context, question string) (string, error) {
	schema := "(schema unavailable)"
	if t.schema != nil {
		described, err := t.schema.DescribeSchema(ctx)
		if err != nil {
			return "", &rag.RetrievalError{Source: "neo4j schema", Err: err}
		}
		if strings.TrimSpace(described) != "" {
			schema = described
		}
	}

	out, err := complete(ctx, t.client, fmt.Sprintf(translatorPrompt, schema), question)
	if err != nil {
		return "", fmt.Errorf("translate question: %w", err)
	}
	return ValidateCypher(out)
}

var (
	readClause   = regexp.MustCompile(`(?i)^(MATCH|OPTIONAL\s+MATCH|WITH|UNWIND|RETURN)\b`)
	writeClause  = regexp.MustCompile(`(?i)\b(CREATE|MERGE|DELETE|DETACH|SET|REMOVE|DROP|FOREACH|LOAD\s+CSV)\b`)
	returnClause = regexp.MustCompile(`(?i)\bRETURN\b`)
	literal      = regexp.MustCompile(`'(?:[^'\\]|\\.)*'|"(?:[^"\\]|\\.)*"`)
)

// ValidateCypher cleans model output and returns ErrTranslationDeclined
// unless it is a single read-only query.
func ValidateCypher(raw string) (string, error) {
	query := stripCodeFence(raw)
	query = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(query), ";"))

	if query == "" {
		return "", fmt.Errorf("%w: empty query", rag.ErrTranslationDeclined)
	}
	if strings.HasPrefix(strings.ToLower(query), "sorry") {
		return "", fmt.Errorf("%w: model declined", rag.ErrTranslationDeclined)
	}
	if !readClause.MatchString(query) {
		return "", fmt.Errorf("%w: not a read query", rag.ErrTranslationDeclined)
	}

	bare := literal.ReplaceAllString(query, "''")
	if strings.Contains(bare, ";") {
		return "", fmt.Errorf("%w: multiple statements", rag.ErrTranslationDeclined)
	}
	if clause := writeClause.FindString(bare); clause != "" {
		return "", fmt.Errorf("%w: write clause %s", rag.ErrTranslationDeclined, strings.ToUpper(clause))
	}
	if !returnClause.MatchString(bare) {
		return "", fmt.Errorf("%w: query returns nothing", rag.ErrTranslationDeclined)
	}

	return query, nil
}

var _ rag.Translator = (*CypherTranslator)(nil)
