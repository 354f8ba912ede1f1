package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const (
	nodePropertiesQuery = `
		MATCH (n)
		WITH n LIMIT $sample
		UNWIND labels(n) AS label
		UNWIND keys(n) AS key
		RETURN label, collect(DISTINCT key) AS keys`

	relationshipsQuery = `
		MATCH (a)-[r]->(b)
		WITH a, r, b LIMIT $sample
		RETURN DISTINCT head(labels(a)) AS from, type(r) AS rel, head(labels(b)) AS to`

	defaultSchemaSample = 1000
)

// Relationship is one (from)-[type]->(to) pattern present in the graph.
type Relationship struct {
	From string
	Type string
	To   string
}

// SchemaDescriber samples the graph and renders a schema summary for prompts.
type SchemaDescriber struct {
	driver   neo4j.DriverWithContext
	database string
	sample   int
}

func NewSchemaDescriber(driver neo4j.DriverWithContext, database string) *SchemaDescriber {
	return &SchemaDescriber{driver: driver, database: database, sample: defaultSchemaSample}
}

func (s *SchemaDescriber) DescribeSchema(ctx context.Context) (string, error) {
	if s.driver == nil {
		return "", fmt.Errorf("neo4j driver is nil")
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	nodes := make(map[string][]string)
	params := map[string]any{"sample": s.sample}

	result, err := session.Run(ctx, nodePropertiesQuery, params)
	if err != nil {
		return "", fmt.Errorf("read node properties: %w", err)
	}
	for result.Next(ctx) {
		record := result.Record()
		label, _, _ := neo4j.GetRecordValue[string](record, "label")
		keys, _, _ := neo4j.GetRecordValue[[]any](record, "keys")
		for _, key := range keys {
			if name, ok := key.(string); ok {
				nodes[label] = append(nodes[label], name)
			}
		}
	}
	if err := result.Err(); err != nil {
		return "", fmt.Errorf("read node properties: %w", err)
	}

	var rels []Relationship
	result, err = session.Run(ctx, relationshipsQuery, params)
	if err != nil {
		return "", fmt.Errorf("read relationships: %w", err)
	}
	for result.Next(ctx) {
		record := result.Record()
		from, _, _ := neo4j.GetRecordValue[string](record, "from")
		rel, _, _ := neo4j.GetRecordValue[string](record, "rel")
		to, _, _ := neo4j.GetRecordValue[string](record, "to")
		rels = append(rels, Relationship{From: from, Type: rel, To: to})
	}
	if err := result.Err(); err != nil {
		return "", fmt.Errorf("read relationships: %w", err)
	}

	return FormatSchema(nodes, rels), nil
}

// FormatSchema renders labels, their properties and relationship patterns in
// a stable order.
func FormatSchema(nodes map[string][]string, rels []Relationship) string {
	if len(nodes) == 0 && len(rels) == 0 {
		return "The graph is empty."
	}

	var b strings.Builder
	b.WriteString("Node labels and properties:\n")

	labels := make([]string, 0, len(nodes))
	for label := range nodes {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		props := append([]string(nil), nodes[label]...)
		sort.Strings(props)
		fmt.Fprintf(&b, "- %s {%s}\n", label, strings.Join(props, ", "))
	}

	if len(rels) > 0 {
		sorted := append([]Relationship(nil), rels...)
		sort.Slice(sorted, func(i, j int) bool {
			if sorted[i].From != sorted[j].From {
				return sorted[i].From < sorted[j].From
			}
			if sorted[i].Type != sorted[j].Type {
				return sorted[i].Type < sorted[j].Type
			}
			return sorted[i].To < sorted[j].To
		})

		b.WriteString("Relationships:\n")
		for _, rel := range sorted {
			fmt.Fprintf(&b, "- (:%s)-[:%s]->(:%s)\n", rel.From, rel.Type, rel.To)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
