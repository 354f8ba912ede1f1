package ingestion

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

type DocumentParser interface {
	Parse(ctx context.Context, payload DocumentPayload) (*ParsedDocument, error)
}

// Table holds the raw rows of a tabular document.
type Table struct {
	Headers []string
	Rows    [][]string
}

type ParsedDocument struct {
	Title     string
	Fragments []ChunkFragment
	Sections  []SectionMeta
	Topics    []TopicMeta
	Table     *Table
}

type chunking struct {
	size    int
	overlap int
}

func parserFor(format DocumentFormat, c chunking) (DocumentParser, error) {
	switch format {
	case FormatMarkdown:
		return markdownParser{c}, nil
	case FormatText:
		return textParser{c}, nil
	case FormatPDF:
		return pdfParser{c}, nil
	case FormatCSV:
		return csvParser{c}, nil
	default:
		return nil, fmt.Errorf("unsupported document format %q", format)
	}
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

type markdownParser struct{ chunking }

func (p markdownParser) Parse(_ context.Context, payload DocumentPayload) (*ParsedDocument, error) {
	content := string(payload.Data)
	fragments, sections, topics := ChunkMarkdown(content, p.size, p.overlap)

	return &ParsedDocument{
		Title:     ExtractTitle(content, baseName(payload.Path)),
		Fragments: fragments,
		Sections:  sections,
		Topics:    topics,
	}, nil
}

type textParser struct{ chunking }

func (p textParser) Parse(_ context.Context, payload DocumentPayload) (*ParsedDocument, error) {
	content := normalizePlainText(string(payload.Data))
	title := firstNonEmptyLine(content)
	if title == "" {
		title = baseName(payload.Path)
	}

	fragments, sections := ChunkPlainText(content, title, p.size, p.overlap)
	return &ParsedDocument{Title: title, Fragments: fragments, Sections: sections}, nil
}

// pdfParser extracts text page by page. Each page becomes a section.
type pdfParser struct{ chunking }

func (p pdfParser) Parse(ctx context.Context, payload DocumentPayload) (*ParsedDocument, error) {
	reader, err := pdf.NewReader(bytes.NewReader(payload.Data), int64(len(payload.Data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	title := ""
	sections := make([]SectionMeta, 0, reader.NumPage())
	paragraphs := make([]paragraphWithSection, 0)

	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract pdf page %d: %w", i, err)
		}
		text = normalizePlainText(text)
		if strings.TrimSpace(text) == "" {
			continue
		}
		if title == "" {
			title = firstNonEmptyLine(text)
		}

		section := SectionMeta{Title: fmt.Sprintf("Page %d", i), Level: 1, Order: len(sections)}
		sections = append(sections, section)
		for _, block := range strings.Split(text, "\n\n") {
			if block = strings.TrimSpace(block); block != "" {
				paragraphs = append(paragraphs, paragraphWithSection{Text: block, Section: section})
			}
		}
	}

	if title == "" {
		title = baseName(payload.Path)
	}
	if len(paragraphs) == 0 {
		return &ParsedDocument{Title: title}, nil
	}

	return &ParsedDocument{
		Title:     title,
		Fragments: chunkParagraphs(paragraphs, p.size, p.overlap),
		Sections:  sections,
	}, nil
}

// csvParser renders each row as "header: value" lines for embedding and keeps
// the raw table for graph record nodes.
type csvParser struct{ chunking }

func (p csvParser) Parse(_ context.Context, payload DocumentPayload) (*ParsedDocument, error) {
	reader := csv.NewReader(bytes.NewReader(payload.Data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	title := baseName(payload.Path)
	if len(records) == 0 {
		return &ParsedDocument{Title: title}, nil
	}

	headers := records[0]
	rows := records[1:]

	section := SectionMeta{Title: "Rows", Level: 1, Order: 0}
	topics := make([]TopicMeta, 0, len(headers))
	for _, header := range headers {
		if header = strings.TrimSpace(header); header != "" {
			topics = append(topics, TopicMeta{Name: header})
		}
	}

	paragraphs := make([]paragraphWithSection, 0, len(rows))
	for idx, row := range rows {
		paragraphs = append(paragraphs, paragraphWithSection{
			Text:    formatCSVRow(headers, row, idx),
			Section: section,
		})
	}

	doc := &ParsedDocument{
		Title:    title,
		Sections: []SectionMeta{section},
		Topics:   topics,
		Table:    &Table{Headers: headers, Rows: rows},
	}
	if len(paragraphs) > 0 {
		doc.Fragments = chunkParagraphs(paragraphs, p.size, p.overlap)
	}
	return doc, nil
}

func normalizePlainText(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

func firstNonEmptyLine(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func formatCSVRow(headers, row []string, idx int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Row %d", idx+1)

	for i, value := range row {
		header := ""
		if i < len(headers) {
			header = strings.TrimSpace(headers[i])
		}
		switch {
		case i >= len(headers):
			header = fmt.Sprintf("Extra %d", i+1)
		case header == "":
			header = fmt.Sprintf("Column %d", i+1)
		}
		fmt.Fprintf(&b, "\n%s: %s", header, strings.TrimSpace(value))
	}
	return b.String()
}
