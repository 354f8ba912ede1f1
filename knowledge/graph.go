// Package knowledge maintains the Neo4j side of the corpus: document graphs
// produced by ingestion, record nodes loaded from tabular files and the schema
// summary handed to the Cypher translator.
package knowledge

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type Document struct {
	ID       string
	Path     string
	Title    string
	Format   string
	SHA      string
	Folder   string
	Chunks   []Chunk
	Sections []Section
	Topics   []Topic
}

type Chunk struct {
	ID        string
	Index     int
	Text      string
	SectionID string
}

type Section struct {
	ID    string
	Title string
	Level int
	Order int
}

type Topic struct {
	Name string
}

// SyncDocument replaces the graph of one document: its folder, sections,
// topics and chunks. Orphaned topics are removed afterwards.
func SyncDocument(ctx context.Context, driver neo4j.DriverWithContext, doc Document) error {
	if driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}
	if doc.ID == "" {
		return fmt.Errorf("document id is empty")
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, writeDocument(ctx, tx, doc)
	})
	if err != nil {
		return err
	}

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, runErr := tx.Run(ctx, `
			MATCH (t:Topic)
			WHERE NOT (t)<-[:HAS_TOPIC]-(:Document)
			DELETE t
		`, nil)
		return nil, runErr
	})
	if err != nil {
		return fmt.Errorf("remove orphaned topics: %w", err)
	}
	return nil
}

func writeDocument(ctx context.Context, tx neo4j.ManagedTransaction, doc Document) error {
	params := map[string]any{
		"id":     doc.ID,
		"path":   doc.Path,
		"title":  doc.Title,
		"format": doc.Format,
		"sha":    doc.SHA,
		"folder": doc.Folder,
	}

	if _, err := tx.Run(ctx, `
		MERGE (d:Document {id: $id})
		SET d.path = $path,
		    d.title = $title,
		    d.format = $format,
		    d.sha256 = $sha,
		    d.updated_at = datetime()
	`, params); err != nil {
		return fmt.Errorf("upsert document node: %w", err)
	}

	if _, err := tx.Run(ctx, `
		MATCH (d:Document {id: $id})-[r:IN_FOLDER]->(f:Folder)
		DELETE r
		WITH f
		WHERE NOT (f)<-[:IN_FOLDER]-(:Document)
		DETACH DELETE f
	`, params); err != nil {
		return fmt.Errorf("remove stale folder relation: %w", err)
	}
	if doc.Folder != "" {
		if _, err := tx.Run(ctx, `
			MATCH (d:Document {id: $id})
			MERGE (f:Folder {name: $folder})
			MERGE (d)-[:IN_FOLDER]->(f)
		`, params); err != nil {
			return fmt.Errorf("upsert folder relation: %w", err)
		}
	}

	cleanup := []struct {
		query string
		what  string
	}{
		{`MATCH (d:Document {id: $id})-[:HAS_SECTION]->(s:Section) DETACH DELETE s`, "sections"},
		{`MATCH (d:Document {id: $id})-[r:HAS_TOPIC]->(:Topic) DELETE r`, "topics"},
		{`MATCH (d:Document {id: $id})-[:HAS_CHUNK]->(c:Chunk) DETACH DELETE c`, "chunks"},
	}
	for _, step := range cleanup {
		if _, err := tx.Run(ctx, step.query, map[string]any{"id": doc.ID}); err != nil {
			return fmt.Errorf("clear existing %s: %w", step.what, err)
		}
	}

	if len(doc.Sections) > 0 {
		sections := make([]map[string]any, len(doc.Sections))
		for i, section := range doc.Sections {
			sections[i] = map[string]any{
				"id":    section.ID,
				"title": section.Title,
				"level": section.Level,
				"order": section.Order,
			}
		}
		if _, err := tx.Run(ctx, `
			MATCH (d:Document {id: $doc_id})
			UNWIND $sections AS section
			MERGE (s:Section {id: section.id})
			SET s.title = section.title,
			    s.level = section.level,
			    s.order = section.order
			MERGE (d)-[:HAS_SECTION {order: section.order}]->(s)
		`, map[string]any{"doc_id": doc.ID, "sections": sections}); err != nil {
			return fmt.Errorf("upsert sections: %w", err)
		}
	}

	topics := make([]string, 0, len(doc.Topics))
	for _, topic := range doc.Topics {
		if topic.Name != "" {
			topics = append(topics, topic.Name)
		}
	}
	if len(topics) > 0 {
		if _, err := tx.Run(ctx, `
			MATCH (d:Document {id: $doc_id})
			UNWIND $topics AS name
			MERGE (t:Topic {name: name})
			MERGE (d)-[:HAS_TOPIC]->(t)
		`, map[string]any{"doc_id": doc.ID, "topics": topics}); err != nil {
			return fmt.Errorf("upsert topics: %w", err)
		}
	}

	if len(doc.Chunks) > 0 {
		chunks := make([]map[string]any, len(doc.Chunks))
		for i, chunk := range doc.Chunks {
			chunks[i] = map[string]any{
				"id":         chunk.ID,
				"index":      chunk.Index,
				"text":       chunk.Text,
				"section_id": chunk.SectionID,
			}
		}
		if _, err := tx.Run(ctx, `
			MATCH (d:Document {id: $doc_id})
			UNWIND $chunks AS chunk
			MERGE (c:Chunk {id: chunk.id})
			SET c.index = chunk.index,
			    c.text = chunk.text
			MERGE (d)-[:HAS_CHUNK {order: chunk.index}]->(c)
			WITH c, chunk
			WHERE chunk.section_id <> ''
			MATCH (s:Section {id: chunk.section_id})
			MERGE (s)-[:HAS_CHUNK {order: chunk.index}]->(c)
		`, map[string]any{"doc_id": doc.ID, "chunks": chunks}); err != nil {
			return fmt.Errorf("upsert chunks: %w", err)
		}
	}

	return nil
}

// corpusLabels are the node labels owned by document ingestion.
var corpusLabels = []string{"Document", "Chunk", "Section", "Topic", "Folder"}

// Purge deletes every document graph node plus the nodes of each record label.
func Purge(ctx context.Context, driver neo4j.DriverWithContext, recordLabels ...string) error {
	if driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	labels := append([]string{}, corpusLabels...)
	for _, label := range recordLabels {
		if err := ValidateLabel(label); err != nil {
			return err
		}
		labels = append(labels, label)
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	for _, label := range labels {
		query := fmt.Sprintf("MATCH (n:`%s`) DETACH DELETE n", label)
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			result, err := tx.Run(ctx, query, nil)
			if err != nil {
				return nil, err
			}
			return result.Consume(ctx)
		})
		if err != nil {
			return fmt.Errorf("delete %s nodes: %w", label, err)
		}
	}
	return nil
}
