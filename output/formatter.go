// Package output provides formatters for rendering query results.
//
// Currently supported formats:
//   - JSON Lines: One JSON object per line
//   - CSV: Comma-separated values with a header row in schema order
//   - Table: Aligned plain-text table for terminals
//
// Example usage:
//
//	formatter := output.NewJSONFormatter(os.Stdout)
//	if err := formatter.Format(result); err != nil {
//	    log.Fatal(err)
//	}
package output

import (
	"io"

	"github.com/vegasq/lazyframe/column"
)

// Formatter defines the interface for output formatters.
//
// Implementers must provide Format to render a materialized result and
// SetOutput to change the output destination.
type Formatter interface {
	// Format writes the table in the formatter's specific format
	Format(t *column.Table) error

	// SetOutput changes the output writer
	SetOutput(w io.Writer)
}

// ForName returns the formatter registered under the given name, or
// false for an unknown name. Recognized names: jsonl, json, csv, table.
func ForName(name string, w io.Writer) (Formatter, bool) {
	switch name {
	case "jsonl", "json":
		return NewJSONFormatter(w), true
	case "csv":
		return NewCSVFormatter(w), true
	case "table":
		return NewTableFormatter(w), true
	default:
		return nil, false
	}
}
