// package formatter renders cached records as JSON, CSV, Markdown or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/desertthunder/songbook/internal/models"
	"github.com/desertthunder/songbook/internal/shared"
)

// Format is an output format name.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

// ParseFormat converts a format name, accepting "md" and "txt" as aliases.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "json", "":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "text", "txt":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, name)
	}
}

// Render formats the payload of collection c.
func Render(f Format, c models.Collection, p models.Payload) ([]byte, error) {
	switch f {
	case FormatJSON:
		return ToJSON(p)
	case FormatCSV:
		return ToCSV(c, p.Records)
	case FormatMarkdown:
		return ToMarkdown(c, p.Records)
	case FormatText:
		return ToText(c, p.Records)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, f)
	}
}

// ToJSON renders the payload as indented JSON, keeping its object or array shape.
func ToJSON(p models.Payload) ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// Columns returns the union of record fields: the collection's key field first, the rest sorted.
func Columns(c models.Collection, records []models.Record) []string {
	key := c.KeyField()
	seen := map[string]bool{key: true}
	var rest []string

	for _, r := range records {
		for field := range r {
			if !seen[field] {
				seen[field] = true
				rest = append(rest, field)
			}
		}
	}
	sort.Strings(rest)

	return append([]string{key}, rest...)
}

// ToCSV renders records with one column per field. Nested values are written as JSON.
func ToCSV(c models.Collection, records []models.Record) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	columns := Columns(c, records)
	if err := writer.Write(columns); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, r := range records {
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = cell(r[col])
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ToMarkdown renders records as a Markdown table under a collection heading.
func ToMarkdown(c models.Collection, records []models.Record) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", c)
	fmt.Fprintf(&buf, "**Records**: %d\n\n", len(records))

	if len(records) == 0 {
		return buf.Bytes(), nil
	}

	columns := Columns(c, records)
	buf.WriteString("| " + strings.Join(columns, " | ") + " |\n")
	buf.WriteString("|" + strings.Repeat(" --- |", len(columns)) + "\n")

	for _, r := range records {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = strings.ReplaceAll(cell(r[col]), "|", `\|`)
		}
		buf.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}

	return buf.Bytes(), nil
}

// ToText renders records as a numbered list with indented fields.
func ToText(c models.Collection, records []models.Record) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Collection: %s\n", c)
	fmt.Fprintf(&buf, "Records: %d\n", len(records))

	columns := Columns(c, records)
	for i, r := range records {
		key, _ := r.Key(c)
		fmt.Fprintf(&buf, "\n%d. %s\n", i+1, key)
		for _, col := range columns[1:] {
			if v, ok := r[col]; ok {
				fmt.Fprintf(&buf, "   %s: %s\n", col, cell(v))
			}
		}
	}

	return buf.Bytes(), nil
}

// WriteExport renders the payload and writes it to path.
//
// Defaults to {collection}.{ext} as the filename.
func WriteExport(f Format, c models.Collection, p models.Payload, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s.%s", c, f.Ext())
	}

	data, err := Render(f, c, p)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", f, err)
	}

	return path, nil
}

// Ext returns the file extension for the format.
func (f Format) Ext() string {
	switch f {
	case FormatMarkdown:
		return "md"
	case FormatText:
		return "txt"
	default:
		return string(f)
	}
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any, []any:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	default:
		return fmt.Sprint(t)
	}
}
