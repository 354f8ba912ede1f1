// Package agents implements the pipeline capabilities on top of an llm.Client.
// Each agent owns its prompt and the parsing of the model's reply.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/fabfab/agentic-rag/llm"
	"github.com/fabfab/agentic-rag/rag"
)

func complete(ctx context.Context, client llm.Client, system, user string) (string, error) {
	if client == nil {
		return "", fmt.Errorf("llm client is not configured")
	}
	out, err := client.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

var leadingWord = regexp.MustCompile(`^[^a-zA-Z]*([a-zA-Z]+)`)

// ParseVerdict accepts a yes/no word (any case, trailing punctuation) or a
// JSON object with a "score" or "binary_score" field. Common variants such
// as "nope" or "not relevant" are read by their leading word.
func ParseVerdict(raw string) (rag.Verdict, error) {
	text := stripCodeFence(raw)

	if strings.HasPrefix(text, "{") {
		var payload map[string]any
		if err := json.Unmarshal([]byte(text), &payload); err == nil {
			for _, key := range []string{"score", "binary_score"} {
				if value, ok := payload[key].(string); ok {
					text = value
					break
				}
			}
		}
	}

	match := leadingWord.FindStringSubmatch(text)
	if match == nil {
		return "", fmt.Errorf("unparseable verdict %q", raw)
	}
	switch strings.ToLower(match[1]) {
	case "yes", "yeah", "yep", "true", "relevant", "grounded":
		return rag.VerdictYes, nil
	case "no", "nope", "not", "false", "irrelevant", "ungrounded":
		return rag.VerdictNo, nil
	default:
		return "", fmt.Errorf("unparseable verdict %q", raw)
	}
}

func stripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if newline := strings.Index(text, "\n"); newline >= 0 {
		text = text[newline+1:]
	} else {
		text = ""
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func formatDocuments(docs []rag.Document) string {
	if len(docs) == 0 {
		return "(no documents)"
	}
	var sb strings.Builder
	for i, doc := range docs {
		fmt.Fprintf(&sb, "Document %d", i+1)
		if doc.Source != "" {
			fmt.Fprintf(&sb, " (%s)", doc.Source)
		}
		sb.WriteString(":\n")
		sb.WriteString(strings.TrimSpace(doc.Content))
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}
