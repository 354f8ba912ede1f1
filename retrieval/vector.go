// Package retrieval adapts the evidence sources (pgvector, Neo4j and Brave web
// search) to the pipeline's retrieval interfaces.
package retrieval

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"

	"github.com/fabfab/agentic-rag/embeddings"
	"github.com/fabfab/agentic-rag/rag"
)

const (
	defaultSimilarityLimit  = 5
	defaultBatchParallelism = 5
	sourcePgvector          = "pgvector"
)

// DB is the subset of pgxpool.Pool the vector store needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type VectorStoreConfig struct {
	Limit       int
	Parallelism int
}

type PostgresVectorStore struct {
	db          DB
	embedder    embeddings.Embedder
	limit       int
	parallelism int
}

func NewPostgresVectorStore(db DB, embedder embeddings.Embedder, cfg VectorStoreConfig) *PostgresVectorStore {
	if cfg.Limit <= 0 {
		cfg.Limit = defaultSimilarityLimit
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultBatchParallelism
	}
	return &PostgresVectorStore{
		db:          db,
		embedder:    embedder,
		limit:       cfg.Limit,
		parallelism: cfg.Parallelism,
	}
}

func (s *PostgresVectorStore) Search(ctx context.Context, query string) (rag.RetrievalResult, error) {
	results, err := s.SearchBatch(ctx, []string{query})
	if err != nil {
		return rag.RetrievalResult{}, err
	}
	return results[0], nil
}

// SearchBatch embeds every query in one call, then runs the similarity
// searches concurrently. Results are returned in query order.
func (s *PostgresVectorStore) SearchBatch(ctx context.Context, queries []string) ([]rag.RetrievalResult, error) {
	if len(queries) == 0 {
		return nil, nil
	}
	if s.db == nil {
		return nil, retrievalErr(fmt.Errorf("postgres pool is nil"))
	}
	if s.embedder == nil {
		return nil, retrievalErr(fmt.Errorf("embedder is not configured"))
	}

	vectors, err := s.embedder.Embed(ctx, queries)
	if err != nil {
		return nil, retrievalErr(fmt.Errorf("embed queries: %w", err))
	}
	if len(vectors) != len(queries) {
		return nil, retrievalErr(fmt.Errorf("embedder returned %d vectors for %d queries", len(vectors), len(queries)))
	}

	results := make([]rag.RetrievalResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i := range queries {
		g.Go(func() error {
			docs, err := s.similarChunks(gctx, vectors[i])
			if err != nil {
				return err
			}
			results[i] = rag.RetrievalResult{Query: queries[i], Documents: docs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, retrievalErr(err)
	}

	return results, nil
}

func (s *PostgresVectorStore) similarChunks(ctx context.Context, embedding []float32) (docs []rag.Document, err error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("embedding is empty")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	probes := s.limit * 10
	if probes < 10 {
		probes = 10
	}
	if _, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL ivfflat.probes = %d", probes)); err != nil {
		return nil, fmt.Errorf("set ivfflat probes: %w", err)
	}

	rows, err := tx.Query(ctx, similarChunksQuery, pgvector.NewVector(embedding), s.limit)
	if err != nil {
		return nil, fmt.Errorf("query similar chunks: %w", err)
	}

	docs = make([]rag.Document, 0, s.limit)
	for rows.Next() {
		var (
			chunkID, documentID, title, path, content string
			distance                                  float64
		)
		if err = rows.Scan(&chunkID, &documentID, &title, &path, &content, &distance); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan similar chunk: %w", err)
		}
		docs = append(docs, rag.Document{
			Content: content,
			Source:  path,
			Metadata: map[string]string{
				"chunk_id":    chunkID,
				"document_id": documentID,
				"title":       title,
				"score":       strconv.FormatFloat(1/(1+distance), 'f', 4, 64),
			},
		})
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("read similar chunks: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return docs, nil
}

const similarChunksQuery = `
	SELECT
		rc.id::text,
		rc.document_id::text,
		COALESCE(rd.title, ''),
		rd.source_path,
		rc.content,
		(rc.embedding <-> $1::vector) AS distance
	FROM rag_chunks rc
	JOIN rag_documents rd ON rd.id = rc.document_id
	ORDER BY rc.embedding <-> $1::vector
	LIMIT $2`

func retrievalErr(err error) error {
	return &rag.RetrievalError{Source: sourcePgvector, Err: err}
}

var _ rag.BatchVectorSearcher = (*PostgresVectorStore)(nil)
