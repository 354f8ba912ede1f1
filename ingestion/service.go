package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	stdpath "path"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/fabfab/agentic-rag/database"
	"github.com/fabfab/agentic-rag/embeddings"
	"github.com/fabfab/agentic-rag/knowledge"
)

// DB is the subset of pgxpool.Pool ingestion needs.
type DB interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Graph receives document graphs and record nodes. *knowledge.Store
// implements it.
type Graph interface {
	SyncDocument(ctx context.Context, doc knowledge.Document) error
	SyncRecords(ctx context.Context, records knowledge.Records) (int, error)
	Purge(ctx context.Context, recordLabels ...string) error
}

type Option func(*Service)

// WithRecordLabel loads CSV rows as graph nodes with this label.
func WithRecordLabel(label string) Option {
	return func(s *Service) {
		s.recordLabel = label
	}
}

func WithChunking(size, overlap int) Option {
	return func(s *Service) {
		if size > 0 {
			s.chunking.size = size
		}
		if overlap >= 0 {
			s.chunking.overlap = overlap
		}
	}
}

// Summary counts what one IngestDirectory call did.
type Summary struct {
	Files     int
	Ingested  int
	Unchanged int
	Failed    int
	Chunks    int
	Records   int
}

type Service struct {
	db          DB
	graph       Graph
	embedder    embeddings.Embedder
	logger      *zap.Logger
	dimension   int
	recordLabel string
	chunking    chunking
}

func NewService(db DB, graph Graph, embedder embeddings.Embedder, logger *zap.Logger, dimension int, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:        db,
		graph:     graph,
		embedder:  embedder,
		logger:    logger.With(zap.String("component", "ingestion")),
		dimension: dimension,
		chunking:  chunking{size: defaultChunkSize, overlap: defaultChunkOverlap},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestDirectory ingests every supported file under dir. A file that fails is
// logged and skipped; the call fails only when nothing could be ingested.
func (s *Service) IngestDirectory(ctx context.Context, dir string) error {
	_, err := s.Ingest(ctx, dir)
	return err
}

func (s *Service) Ingest(ctx context.Context, dir string) (Summary, error) {
	var summary Summary

	if s.embedder == nil {
		return summary, fmt.Errorf("embedder not configured")
	}
	if s.db == nil || s.graph == nil {
		return summary, fmt.Errorf("stores not configured")
	}
	if s.recordLabel != "" {
		if err := knowledge.ValidateLabel(s.recordLabel); err != nil {
			return summary, err
		}
	}
	if err := database.EnsureRAGSchema(ctx, s.db, s.dimension); err != nil {
		return summary, fmt.Errorf("ensure schema: %w", err)
	}

	if _, err := os.Stat(dir); err != nil {
		return summary, fmt.Errorf("data directory: %w", err)
	}

	paths, err := collectFiles(dir)
	if err != nil {
		return summary, err
	}
	if len(paths) == 0 {
		s.logger.Info("no supported files found", zap.String("dir", dir))
		return summary, nil
	}

	var errs []error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		summary.Files++
		result, err := s.ingestFile(ctx, dir, path)
		if err != nil {
			summary.Failed++
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			s.logger.Warn("ingest failed", zap.String("path", path), zap.Error(err))
			continue
		}
		if result.changed {
			summary.Ingested++
		} else {
			summary.Unchanged++
		}
		summary.Chunks += result.chunks
		summary.Records += result.records
	}

	s.logger.Info("ingestion finished",
		zap.Int("files", summary.Files),
		zap.Int("ingested", summary.Ingested),
		zap.Int("unchanged", summary.Unchanged),
		zap.Int("failed", summary.Failed),
		zap.Int("chunks", summary.Chunks),
		zap.Int("records", summary.Records),
	)

	if summary.Failed == summary.Files {
		return summary, fmt.Errorf("no files ingested: %w", errors.Join(errs...))
	}
	return summary, nil
}

// Clear empties both stores.
func (s *Service) Clear(ctx context.Context) error {
	if s.db == nil || s.graph == nil {
		return fmt.Errorf("stores not configured")
	}
	if err := database.TruncateRAG(ctx, s.db); err != nil {
		return err
	}
	s.logger.Info("cleared postgres rag_documents and rag_chunks")

	labels := make([]string, 0, 1)
	if s.recordLabel != "" {
		labels = append(labels, s.recordLabel)
	}
	if err := s.graph.Purge(ctx, labels...); err != nil {
		return fmt.Errorf("clear neo4j: %w", err)
	}
	s.logger.Info("cleared neo4j documents", zap.Strings("record_labels", labels))
	return nil
}

func collectFiles(dir string) ([]string, error) {
	paths := make([]string, 0)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() && DetectFormat(path) != FormatUnknown {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk data directory: %w", err)
	}
	return paths, nil
}

type fileResult struct {
	changed bool
	chunks  int
	records int
}

func (s *Service) ingestFile(ctx context.Context, root, path string) (result fileResult, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return result, fmt.Errorf("read file: %w", err)
	}

	relPath, relErr := filepath.Rel(root, path)
	if relErr != nil {
		relPath = path
	}
	relPath = filepath.ToSlash(relPath)
	folder := stdpath.Dir(relPath)
	if folder == "." || folder == "/" {
		folder = ""
	}

	format := DetectFormat(path)
	parser, err := parserFor(format, s.chunking)
	if err != nil {
		return result, err
	}
	parsed, err := parser.Parse(ctx, DocumentPayload{Path: relPath, Format: format, Data: data})
	if err != nil {
		return result, err
	}
	if len(parsed.Fragments) == 0 {
		s.logger.Info("skip empty document", zap.String("path", relPath))
		return result, nil
	}

	hash := sha256.Sum256(data)
	hashHex := hex.EncodeToString(hash[:])

	texts := make([]string, len(parsed.Fragments))
	for i, fragment := range parsed.Fragments {
		texts[i] = fragment.Text
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return result, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				s.logger.Warn("rollback failed", zap.Error(rbErr))
			}
		}
	}()

	docID, changed, err := upsertDocument(ctx, tx, relPath, parsed.Title, string(format), hashHex)
	if err != nil {
		return result, err
	}
	if !changed {
		if err = tx.Commit(ctx); err != nil {
			return result, fmt.Errorf("commit transaction: %w", err)
		}
		s.logger.Debug("no updates required", zap.String("path", relPath))
		return result, nil
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return result, fmt.Errorf("generate embeddings: %w", err)
	}
	if len(vectors) != len(texts) {
		return result, fmt.Errorf("embedding count mismatch: have %d chunks, %d embeddings", len(texts), len(vectors))
	}

	if _, err = tx.Exec(ctx, "DELETE FROM rag_chunks WHERE document_id = $1", docID); err != nil {
		return result, fmt.Errorf("clear existing chunks: %w", err)
	}

	sectionIDs := make(map[int]string, len(parsed.Sections))
	sections := make([]knowledge.Section, len(parsed.Sections))
	for i, section := range parsed.Sections {
		id := uuid.NewString()
		sectionIDs[section.Order] = id
		sections[i] = knowledge.Section{ID: id, Title: section.Title, Level: section.Level, Order: section.Order}
	}

	chunkNodes := make([]knowledge.Chunk, 0, len(parsed.Fragments))
	for idx, fragment := range parsed.Fragments {
		chunkID := uuid.New()
		if _, err = tx.Exec(ctx, `
			INSERT INTO rag_chunks (id, document_id, chunk_index, section_order, section_level, section_title, content, embedding, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		`, chunkID, docID, idx, fragment.Section.Order, fragment.Section.Level, fragment.Section.Title, fragment.Text, pgvector.NewVector(vectors[idx])); err != nil {
			return result, fmt.Errorf("insert chunk %d: %w", idx, err)
		}

		sectionID := ""
		if len(parsed.Sections) > 0 {
			sectionID = sectionIDs[fragment.Section.Order]
		}
		chunkNodes = append(chunkNodes, knowledge.Chunk{ID: chunkID.String(), Index: idx, Text: fragment.Text, SectionID: sectionID})
	}

	topics := make([]knowledge.Topic, len(parsed.Topics))
	for i, topic := range parsed.Topics {
		topics[i] = knowledge.Topic{Name: topic.Name}
	}

	// Synced before the commit: a failed sync rolls back the stored hash.
	if err = s.graph.SyncDocument(ctx, knowledge.Document{
		ID:       docID.String(),
		Path:     relPath,
		Title:    parsed.Title,
		Format:   string(format),
		SHA:      hashHex,
		Folder:   folder,
		Chunks:   chunkNodes,
		Sections: sections,
		Topics:   topics,
	}); err != nil {
		return result, fmt.Errorf("sync knowledge graph: %w", err)
	}

	records := 0
	if parsed.Table != nil && s.recordLabel != "" {
		records, err = s.graph.SyncRecords(ctx, knowledge.Records{
			Label:   s.recordLabel,
			Source:  relPath,
			Headers: parsed.Table.Headers,
			Rows:    parsed.Table.Rows,
		})
		if err != nil {
			return result, fmt.Errorf("sync %s records: %w", s.recordLabel, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return result, fmt.Errorf("commit transaction: %w", err)
	}

	result = fileResult{changed: true, chunks: len(chunkNodes), records: records}
	s.logger.Info("ingested document",
		zap.String("path", relPath),
		zap.String("format", string(format)),
		zap.Int("chunks", result.chunks),
		zap.Int("records", result.records),
	)
	return result, nil
}

func upsertDocument(ctx context.Context, tx pgx.Tx, path, title, format, sha string) (uuid.UUID, bool, error) {
	var (
		docID        uuid.UUID
		existingHash string
	)

	err := tx.QueryRow(ctx, "SELECT id, sha256 FROM rag_documents WHERE source_path = $1", path).Scan(&docID, &existingHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			newID := uuid.New()
			if _, execErr := tx.Exec(ctx, `
				INSERT INTO rag_documents (id, source_path, title, format, sha256, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
			`, newID, path, title, format, sha); execErr != nil {
				return uuid.Nil, false, fmt.Errorf("insert document: %w", execErr)
			}
			return newID, true, nil
		}
		return uuid.Nil, false, fmt.Errorf("query document: %w", err)
	}

	if existingHash == sha {
		return docID, false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE rag_documents
		SET title = $2,
		    format = $3,
		    sha256 = $4,
		    updated_at = NOW()
		WHERE id = $1
	`, docID, title, format, sha); err != nil {
		return uuid.Nil, false, fmt.Errorf("update document: %w", err)
	}

	return docID, true, nil
}
