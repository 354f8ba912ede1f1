package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fabfab/agentic-rag/rag"
)

const (
	defaultGraphRowLimit = 25
	sourceNeo4j          = "neo4j"
)

// Neo4jExecutor runs translated Cypher in read sessions and turns
// each returned record into a document.
type Neo4jExecutor struct {
	driver   neo4j.DriverWithContext
	database string
	rowLimit int
}

func NewNeo4jExecutor(driver neo4j.DriverWithContext, database string, rowLimit int) *Neo4jExecutor {
	if rowLimit <= 0 {
		rowLimit = defaultGraphRowLimit
	}
	return &Neo4jExecutor{driver: driver, database: database, rowLimit: rowLimit}
}

func (e *Neo4jExecutor) Execute(ctx context.Context, query string) (rag.RetrievalResult, error) {
	if e.driver == nil {
		return rag.RetrievalResult{}, &rag.RetrievalError{Source: sourceNeo4j, Err: fmt.Errorf("neo4j driver is nil")}
	}

	session := e.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: e.database,
	})
	defer session.Close(ctx)

	// Auto-commit: the driver does not retry a failed query.
	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return rag.RetrievalResult{}, &rag.RetrievalError{Source: sourceNeo4j, Err: fmt.Errorf("run cypher query: %w", err)}
	}

	docs := make([]rag.Document, 0)
	for len(docs) < e.rowLimit && result.Next(ctx) {
		record := result.Record()
		content := FormatRecord(record.Keys, record.Values)
		if content == "" {
			continue
		}
		docs = append(docs, rag.Document{Content: content, Source: sourceNeo4j})
	}
	if err := result.Err(); err != nil {
		return rag.RetrievalResult{}, &rag.RetrievalError{Source: sourceNeo4j, Err: fmt.Errorf("neo4j result error: %w", err)}
	}

	return rag.RetrievalResult{Query: query, Documents: docs}, nil
}

// FormatRecord renders a record as "key: value" lines. Null values are
// skipped; a record with nothing but nulls renders as an empty string.
func FormatRecord(keys []string, values []any) string {
	lines := make([]string, 0, len(keys))
	for i, key := range keys {
		if i >= len(values) || values[i] == nil {
			continue
		}
		lines = append(lines, key+": "+formatValue(values[i]))
	}
	return strings.Join(lines, "\n")
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case neo4j.Node:
		return fmt.Sprintf("(%s %s)", strings.Join(v.Labels, ":"), formatProps(v.Props))
	case neo4j.Relationship:
		return fmt.Sprintf("[%s %s]", v.Type, formatProps(v.Props))
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = formatValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		return formatProps(v)
	default:
		return fmt.Sprint(v)
	}
}

func formatProps(props map[string]any) string {
	keys := make([]string, 0, len(props))
	for key := range props {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, key := range keys {
		parts[i] = key + ": " + formatValue(props[key])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

var _ rag.StructuredQueryExecutor = (*Neo4jExecutor)(nil)
