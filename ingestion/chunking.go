package ingestion

import (
	"strings"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// SectionMeta describes the heading a chunk belongs to.
type SectionMeta struct {
	Title string
	Level int
	Order int
}

type TopicMeta struct {
	Name string
}

// ChunkFragment is one chunk of text with the section it came from.
type ChunkFragment struct {
	Text    string
	Section SectionMeta
}

type paragraphWithSection struct {
	Text    string
	Section SectionMeta
}

func ExtractTitle(content, fallback string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			if title := strings.TrimSpace(strings.TrimLeft(trimmed, "#")); title != "" {
				return title
			}
		}
	}
	return fallback
}

// ChunkMarkdown splits markdown into paragraph-aligned chunks of roughly
// target bytes. Headings open sections; level-2 headings also become topics.
func ChunkMarkdown(content string, target, overlap int) ([]ChunkFragment, []SectionMeta, []TopicMeta) {
	clean := strings.ReplaceAll(content, "\r\n", "\n")

	sections := make([]SectionMeta, 0)
	topics := make([]TopicMeta, 0)
	seenTopics := make(map[string]struct{})
	paragraphs := make([]paragraphWithSection, 0)

	var current SectionMeta
	for _, block := range strings.Split(clean, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}

		if level, title, ok := parseHeading(block); ok {
			current = SectionMeta{Title: title, Level: level, Order: len(sections)}
			sections = append(sections, current)
			if level == 2 {
				key := strings.ToLower(title)
				if _, dup := seenTopics[key]; !dup {
					seenTopics[key] = struct{}{}
					topics = append(topics, TopicMeta{Name: title})
				}
			}
			if rest := strings.TrimSpace(block[strings.Index(block+"\n", "\n"):]); rest != "" {
				paragraphs = append(paragraphs, paragraphWithSection{Text: rest, Section: current})
			}
			continue
		}

		paragraphs = append(paragraphs, paragraphWithSection{Text: block, Section: current})
	}

	if len(paragraphs) == 0 {
		return nil, nil, nil
	}
	return chunkParagraphs(paragraphs, target, overlap), sections, topics
}

// ChunkPlainText chunks text without headings under a single section.
func ChunkPlainText(content, title string, target, overlap int) ([]ChunkFragment, []SectionMeta) {
	section := SectionMeta{Title: title, Level: 1, Order: 0}

	paragraphs := make([]paragraphWithSection, 0)
	for _, block := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n") {
		if block = strings.TrimSpace(block); block != "" {
			paragraphs = append(paragraphs, paragraphWithSection{Text: block, Section: section})
		}
	}
	if len(paragraphs) == 0 {
		return nil, nil
	}
	return chunkParagraphs(paragraphs, target, overlap), []SectionMeta{section}
}

// chunkParagraphs packs paragraphs into chunks. A chunk never spans sections.
// When overlap is positive the last paragraph of a chunk is repeated at the
// start of the next one, provided it fits in overlap bytes.
func chunkParagraphs(paragraphs []paragraphWithSection, target, overlap int) []ChunkFragment {
	fragments := make([]ChunkFragment, 0)
	current := make([]string, 0)
	currentLen := 0
	var section SectionMeta

	flush := func() {
		if len(current) > 0 {
			fragments = append(fragments, ChunkFragment{Text: strings.Join(current, "\n\n"), Section: section})
		}
	}

	for _, p := range paragraphs {
		if len(current) > 0 && p.Section != section {
			flush()
			current = current[:0]
			currentLen = 0
		}
		section = p.Section

		if len(current) > 0 && currentLen+len(p.Text) > target {
			flush()
			last := current[len(current)-1]
			current = current[:0]
			currentLen = 0
			if overlap > 0 && len(last) <= overlap {
				current = append(current, last)
				currentLen = len(last)
			}
		}

		current = append(current, p.Text)
		currentLen += len(p.Text)
	}
	flush()

	return fragments
}

func parseHeading(block string) (int, string, bool) {
	line := block
	if i := strings.IndexByte(block, '\n'); i >= 0 {
		line = block[:i]
	}
	line = strings.TrimSpace(line)

	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level == len(line) || line[level] != ' ' {
		return 0, "", false
	}
	return level, strings.TrimSpace(line[level:]), true
}
