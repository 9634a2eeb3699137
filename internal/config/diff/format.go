package diff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Formatter renders a Record for display.
type Formatter interface {
	Format(r Record) string
}

// FormatterFunc adapts a function to Formatter.
type FormatterFunc func(r Record) string

// Format implements Formatter.
func (f FormatterFunc) Format(r Record) string {
	return f(r)
}

// Headers are the TableFormatter column titles.
var Headers = []string{"config key", "old value", "new value"}

// TableFormatter renders a markdown pipe table.
type TableFormatter struct{}

// Format implements Formatter.
func (TableFormatter) Format(r Record) string {
	t := table.New().
		Border(lipgloss.MarkdownBorder()).
		BorderTop(false).
		BorderBottom(false).
		Headers(Headers...)

	for _, e := range r {
		t.Row(e.Path, FormatValue(e.Old), FormatValue(e.New))
	}
	return t.String()
}

// PlainFormatter renders one "path: old -> new" line per entry.
type PlainFormatter struct{}

// Format implements Formatter.
func (PlainFormatter) Format(r Record) string {
	var b strings.Builder
	for _, e := range r {
		fmt.Fprintf(&b, "%s: %s -> %s\n", e.Path, FormatValue(e.Old), FormatValue(e.New))
	}
	return b.String()
}

// FormatValue renders a leaf value compactly.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", val)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = FormatValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + FormatValue(val[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(val)
	}
}
