package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// SchemaStatements returns the DDL executed by EnsureRAGSchema, in order.
func SchemaStatements(dimension int) []string {
	return []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		`CREATE TABLE IF NOT EXISTS rag_documents (
			id UUID PRIMARY KEY,
			source_path TEXT UNIQUE NOT NULL,
			title TEXT,
			format TEXT NOT NULL DEFAULT 'markdown',
			sha256 TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS rag_chunks (
			id UUID PRIMARY KEY,
			document_id UUID NOT NULL REFERENCES rag_documents(id) ON DELETE CASCADE,
			chunk_index INT NOT NULL,
			section_order INT,
			section_level INT,
			section_title TEXT,
			content TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(document_id, chunk_index)
		)`, dimension),
		"ALTER TABLE rag_documents ADD COLUMN IF NOT EXISTS format TEXT NOT NULL DEFAULT 'markdown'",
		"CREATE INDEX IF NOT EXISTS idx_rag_chunks_document ON rag_chunks(document_id)",
		"CREATE INDEX IF NOT EXISTS idx_rag_chunks_embedding ON rag_chunks USING ivfflat (embedding vector_l2_ops)",
		"CREATE INDEX IF NOT EXISTS idx_rag_chunks_section ON rag_chunks(document_id, section_order)",
	}
}

// EnsureRAGSchema creates the pgvector extension, tables and indexes used by
// ingestion and vector search.
func EnsureRAGSchema(ctx context.Context, db Execer, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	if db == nil {
		return fmt.Errorf("postgres connection is nil")
	}

	for _, stmt := range SchemaStatements(dimension) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}

// TruncateRAG removes every ingested document and chunk.
func TruncateRAG(ctx context.Context, db Execer) error {
	if db == nil {
		return fmt.Errorf("postgres connection is nil")
	}
	if _, err := db.Exec(ctx, "TRUNCATE rag_chunks, rag_documents"); err != nil {
		return fmt.Errorf("truncate rag tables: %w", err)
	}
	return nil
}
