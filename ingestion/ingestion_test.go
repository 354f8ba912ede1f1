package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/agentic-rag/database"
	"github.com/fabfab/agentic-rag/knowledge"
)

func TestChunkMarkdownRespectsOverlap(t *testing.T) {
	text := "# Title\n\n" +
		"## Section One\n\n" +
		"Paragraph one." +
		"\n\n" +
		"Paragraph two is quite a bit longer than the first paragraph and should trigger a split." +
		"\n\n" +
		"Paragraph three." +
		"\n\n" +
		"Paragraph four."

	fragments, sections, topics := ChunkMarkdown(text, 50, 10)
	require.Len(t, fragments, 3)
	assert.NotEqual(t, fragments[0].Text, fragments[1].Text)
	assert.Equal(t, "Paragraph three.\n\nParagraph four.", fragments[2].Text)
	assert.Equal(t, "Section One", fragments[0].Section.Title)

	require.Len(t, sections, 2)
	assert.Equal(t, SectionMeta{Title: "Title", Level: 1, Order: 0}, sections[0])
	assert.Equal(t, []TopicMeta{{Name: "Section One"}}, topics)
}

func TestChunkMarkdownCarriesShortParagraph(t *testing.T) {
	text := "Alpha.\n\nBeta paragraph that is long enough to force a split here."

	fragments, _, _ := ChunkMarkdown(text, 20, 10)
	require.Len(t, fragments, 2)
	assert.Equal(t, "Alpha.", fragments[0].Text)
	assert.Equal(t, "Alpha.\n\nBeta paragraph that is long enough to force a split here.", fragments[1].Text)
}

func TestChunkMarkdownSplitsOnSections(t *testing.T) {
	text := "## One\n\nfirst\n\n## Two\n\nsecond"

	fragments, sections, topics := ChunkMarkdown(text, 1000, 0)
	require.Len(t, fragments, 2)
	assert.Equal(t, "One", fragments[0].Section.Title)
	assert.Equal(t, "Two", fragments[1].Section.Title)
	assert.Len(t, sections, 2)
	assert.Len(t, topics, 2)
}

func TestChunkMarkdownHandlesEmpty(t *testing.T) {
	fragments, sections, topics := ChunkMarkdown("\n\n", 100, 20)
	assert.Empty(t, fragments)
	assert.Empty(t, sections)
	assert.Empty(t, topics)
}

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "Heading One", ExtractTitle("Some intro\n# Heading One\nMore text", "fallback"))
	assert.Equal(t, "fallback", ExtractTitle("no heading", "fallback"))
}

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		path string
		want DocumentFormat
	}{
		{"a/b/readme.MD", FormatMarkdown},
		{"notes.txt", FormatText},
		{"manual.pdf", FormatPDF},
		{"products.csv", FormatCSV},
		{"image.png", FormatUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DetectFormat(tc.path), tc.path)
	}
}

func TestCSVParser(t *testing.T) {
	data := []byte("Name,Price\nWidget,9.99\nGadget,4.50,extra\n")

	doc, err := csvParser{chunking{size: 1000}}.Parse(context.Background(), DocumentPayload{Path: "catalog/products.csv", Data: data})
	require.NoError(t, err)

	assert.Equal(t, "products", doc.Title)
	require.NotNil(t, doc.Table)
	assert.Equal(t, []string{"Name", "Price"}, doc.Table.Headers)
	assert.Len(t, doc.Table.Rows, 2)
	assert.Equal(t, []TopicMeta{{Name: "Name"}, {Name: "Price"}}, doc.Topics)

	require.Len(t, doc.Fragments, 1)
	assert.Equal(t, "Row 1\nName: Widget\nPrice: 9.99\n\nRow 2\nName: Gadget\nPrice: 4.50\nExtra 3: extra", doc.Fragments[0].Text)
}

func TestTextParser(t *testing.T) {
	data := []byte("\r\nRelease notes  \r\n\r\nFixed the router.\r\n")

	doc, err := textParser{chunking{size: 1000}}.Parse(context.Background(), DocumentPayload{Path: "notes.txt", Data: data})
	require.NoError(t, err)
	assert.Equal(t, "Release notes", doc.Title)
	require.Len(t, doc.Fragments, 1)
	assert.Equal(t, "Release notes\n\nFixed the router.", doc.Fragments[0].Text)
}

func TestPDFParserRejectsGarbage(t *testing.T) {
	_, err := pdfParser{chunking{size: 1000}}.Parse(context.Background(), DocumentPayload{Path: "x.pdf", Data: []byte("not a pdf")})
	require.Error(t, err)
}

func TestParserForUnknownFormat(t *testing.T) {
	_, err := parserFor(FormatUnknown, chunking{})
	require.Error(t, err)
}

type stubEmbedder struct {
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

type fakeGraph struct {
	docs     []knowledge.Document
	records  []knowledge.Records
	purged   [][]string
	failDocs int
}

func (g *fakeGraph) SyncDocument(_ context.Context, doc knowledge.Document) error {
	if g.failDocs > 0 {
		g.failDocs--
		return errors.New("neo4j unavailable")
	}
	g.docs = append(g.docs, doc)
	return nil
}

func (g *fakeGraph) SyncRecords(_ context.Context, records knowledge.Records) (int, error) {
	g.records = append(g.records, records)
	return len(records.Rows), nil
}

func (g *fakeGraph) Purge(_ context.Context, labels ...string) error {
	g.purged = append(g.purged, labels)
	return nil
}

func sha256Hex(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func expectSchema(mock pgxmock.PgxPoolIface, dimension int) {
	for _, stmt := range database.SchemaStatements(dimension) {
		mock.ExpectExec(regexp.QuoteMeta(stmt)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
}

func TestIngestDirectoryMissingEmbedder(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, 128)
	require.Error(t, svc.IngestDirectory(context.Background(), "./does-not-matter"))
}

func TestIngestCSVWithRecords(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "catalog"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "catalog", "products.csv"), []byte("Name,Price\nWidget,9.99\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89}, 0o644))

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectSchema(mock, 3)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, sha256 FROM rag_documents").
		WithArgs("catalog/products.csv").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO rag_documents").
		WithArgs(pgxmock.AnyArg(), "catalog/products.csv", "products", "csv", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM rag_chunks").
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO rag_chunks").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), 0, 0, 1, "Rows", "Row 1\nName: Widget\nPrice: 9.99", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	graph := &fakeGraph{}
	embedder := &stubEmbedder{}
	svc := NewService(mock, graph, embedder, nil, 3, WithRecordLabel("Product"))

	summary, err := svc.Ingest(context.Background(), dir)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, Summary{Files: 1, Ingested: 1, Chunks: 1, Records: 1}, summary)
	assert.Equal(t, 1, embedder.calls)

	require.Len(t, graph.docs, 1)
	doc := graph.docs[0]
	assert.Equal(t, "catalog", doc.Folder)
	assert.Equal(t, "csv", doc.Format)
	require.Len(t, doc.Chunks, 1)
	require.Len(t, doc.Sections, 1)
	assert.Equal(t, doc.Sections[0].ID, doc.Chunks[0].SectionID)

	require.Len(t, graph.records, 1)
	assert.Equal(t, "Product", graph.records[0].Label)
	assert.Equal(t, "catalog/products.csv", graph.records[0].Source)
}

func TestIngestSkipsUnchangedDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "guide.md"), []byte("# Guide\n\nReset the router."), 0o644))

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectSchema(mock, 3)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, sha256 FROM rag_documents").
		WithArgs("guide.md").
		WillReturnRows(pgxmock.NewRows([]string{"id", "sha256"}).AddRow(
			uuid.NewString(), sha256Hex("# Guide\n\nReset the router."),
		))
	mock.ExpectCommit()

	graph := &fakeGraph{}
	embedder := &stubEmbedder{}
	summary, err := NewService(mock, graph, embedder, nil, 3).Ingest(context.Background(), dir)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 1, summary.Unchanged)
	assert.Equal(t, 0, embedder.calls)
	assert.Empty(t, graph.docs)
}

func TestIngestRetriesAfterGraphSyncFailure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "guide.md"), []byte("# Guide\n\nReset the router."), 0o644))

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectFreshDocument := func() {
		expectSchema(mock, 3)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, sha256 FROM rag_documents").
			WithArgs("guide.md").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectExec("INSERT INTO rag_documents").
			WithArgs(pgxmock.AnyArg(), "guide.md", "Guide", "markdown", sha256Hex("# Guide\n\nReset the router.")).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("DELETE FROM rag_chunks").
			WithArgs(pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mock.ExpectExec("INSERT INTO rag_chunks").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), 0, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	graph := &fakeGraph{failDocs: 1}
	svc := NewService(mock, graph, &stubEmbedder{}, nil, 3)

	expectFreshDocument()
	mock.ExpectRollback()
	summary, err := svc.Ingest(context.Background(), dir)
	require.Error(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Empty(t, graph.docs)

	// The hash was rolled back, so the file is not treated as unchanged.
	expectFreshDocument()
	mock.ExpectCommit()
	summary, err = svc.Ingest(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Ingested)
	require.Len(t, graph.docs, 1)
	assert.Equal(t, "guide.md", graph.docs[0].Path)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestFailsWhenEveryFileFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.pdf"), []byte("garbage"), 0o644))

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	expectSchema(mock, 3)

	summary, err := NewService(mock, &fakeGraph{}, &stubEmbedder{}, nil, 3).Ingest(context.Background(), dir)
	require.Error(t, err)
	assert.Equal(t, 1, summary.Failed)
}

func TestIngestRejectsInvalidLabel(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	svc := NewService(mock, &fakeGraph{}, &stubEmbedder{}, nil, 3, WithRecordLabel("bad label"))
	_, err = svc.Ingest(context.Background(), t.TempDir())
	require.Error(t, err)
}

func TestClear(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("TRUNCATE rag_chunks, rag_documents").WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))

	graph := &fakeGraph{}
	require.NoError(t, NewService(mock, graph, nil, nil, 3, WithRecordLabel("Product")).Clear(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, [][]string{{"Product"}}, graph.purged)
}

func TestClearStopsOnPostgresError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("TRUNCATE").WillReturnError(errors.New("locked"))

	graph := &fakeGraph{}
	require.Error(t, NewService(mock, graph, nil, nil, 3).Clear(context.Background()))
	assert.Empty(t, graph.purged)
}
