package output

import (
	"encoding/json"
	"io"

	"github.com/vegasq/lazyframe/column"
)

// JSONFormatter outputs rows as JSON Lines format
type JSONFormatter struct {
	writer io.Writer
}

// NewJSONFormatter creates a new JSON Lines formatter
func NewJSONFormatter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{writer: w}
}

// SetOutput sets the output writer
func (j *JSONFormatter) SetOutput(w io.Writer) {
	j.writer = w
}

// Format writes the table as JSON Lines (one JSON object per line).
// Null values render as JSON null.
func (j *JSONFormatter) Format(t *column.Table) error {
	encoder := json.NewEncoder(j.writer)
	for _, ch := range t.Chunks() {
		for row := 0; row < ch.NumRows(); row++ {
			if err := encoder.Encode(ch.Row(row)); err != nil {
				return err
			}
		}
	}
	return nil
}
