package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

var labelPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidateLabel rejects labels that cannot be interpolated into Cypher.
func ValidateLabel(label string) error {
	if !labelPattern.MatchString(label) {
		return fmt.Errorf("invalid node label %q", label)
	}
	return nil
}

// Records is a table loaded into the graph, one node per row.
type Records struct {
	Label   string
	Source  string
	Headers []string
	Rows    [][]string
}

// PropertyKey turns a column header into a Cypher property name:
// "Unit Price ($)" becomes "unit_price".
func PropertyKey(header string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.TrimSpace(header) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if underscore && b.Len() > 0 {
				b.WriteByte('_')
			}
			underscore = false
			b.WriteRune(unicode.ToLower(r))
		default:
			underscore = true
		}
	}

	key := b.String()
	if key == "" {
		return ""
	}
	if unicode.IsDigit(rune(key[0])) {
		key = "col_" + key
	}
	return key
}

// properties converts each row into a property map. Numeric cells are stored
// as numbers so the translator can compare them.
func (r Records) properties() []map[string]any {
	keys := make([]string, len(r.Headers))
	for i, header := range r.Headers {
		keys[i] = PropertyKey(header)
		if keys[i] == "" {
			keys[i] = fmt.Sprintf("column_%d", i+1)
		}
	}

	rows := make([]map[string]any, 0, len(r.Rows))
	for idx, row := range r.Rows {
		props := make(map[string]any, len(keys)+2)
		for i, key := range keys {
			if i >= len(row) {
				break
			}
			props[key] = cellValue(row[i])
		}
		props["record_id"] = recordID(r.Source, idx)
		props["source"] = r.Source
		rows = append(rows, props)
	}
	return rows
}

func cellValue(raw string) any {
	value := strings.TrimSpace(raw)
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

func recordID(source string, row int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", source, row)))
	return hex.EncodeToString(sum[:16])
}

// SyncRecords upserts one node per row under the record label. Nodes are keyed
// by source path and row number so re-ingesting a file replaces its rows.
func SyncRecords(ctx context.Context, driver neo4j.DriverWithContext, records Records) (int, error) {
	if driver == nil {
		return 0, fmt.Errorf("neo4j driver is nil")
	}
	if err := ValidateLabel(records.Label); err != nil {
		return 0, err
	}

	rows := records.properties()
	if len(rows) == 0 {
		return 0, nil
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	label := records.Label
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, fmt.Sprintf(
			"MATCH (n:`%s` {source: $source}) WHERE NOT n.record_id IN $ids DETACH DELETE n", label,
		), map[string]any{"source": records.Source, "ids": recordIDs(rows)}); err != nil {
			return nil, fmt.Errorf("remove stale %s rows: %w", label, err)
		}

		upsert := "UNWIND $rows AS row MERGE (n:`" + label + "` {record_id: row.record_id}) SET n = row"
		if _, err := tx.Run(ctx, upsert, map[string]any{"rows": rows}); err != nil {
			return nil, fmt.Errorf("upsert %s rows: %w", label, err)
		}
		return nil, nil
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func recordIDs(rows []map[string]any) []string {
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row["record_id"].(string)
	}
	return ids
}
