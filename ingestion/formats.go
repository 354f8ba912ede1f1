// Package ingestion parses documents, chunks them and persists the chunks to
// pgvector and the knowledge graph.
package ingestion

import (
	"path/filepath"
	"strings"
)

// DocumentFormat enumerates supported document payload formats.
type DocumentFormat string

const (
	FormatUnknown  DocumentFormat = ""
	FormatMarkdown DocumentFormat = "markdown"
	FormatText     DocumentFormat = "text"
	FormatPDF      DocumentFormat = "pdf"
	FormatCSV      DocumentFormat = "csv"
)

// DetectFormat infers a document format from the path's extension.
func DetectFormat(path string) DocumentFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".txt", ".text":
		return FormatText
	case ".pdf":
		return FormatPDF
	case ".csv":
		return FormatCSV
	default:
		return FormatUnknown
	}
}

// DocumentPayload is a file read from the data directory.
type DocumentPayload struct {
	Path   string
	Format DocumentFormat
	Data   []byte
}
