package output

import (
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/vegasq/lazyframe/column"
)

// TableFormatter outputs rows as an aligned plain-text table
type TableFormatter struct {
	writer io.Writer
}

// NewTableFormatter creates a new plain-text table formatter
func NewTableFormatter(w io.Writer) *TableFormatter {
	return &TableFormatter{writer: w}
}

// SetOutput sets the output writer
func (f *TableFormatter) SetOutput(w io.Writer) {
	f.writer = w
}

// Format renders the table with one header row in schema order. Null
// values render as empty cells.
func (f *TableFormatter) Format(t *column.Table) error {
	tw := tablewriter.NewWriter(f.writer)
	tw.SetHeader(t.Schema().Names())
	tw.SetAutoFormatHeaders(false)

	record := make([]string, t.Schema().Len())
	for _, ch := range t.Chunks() {
		for row := 0; row < ch.NumRows(); row++ {
			for i := 0; i < ch.NumCols(); i++ {
				record[i] = formatValue(ch.Column(i).Value(row))
			}
			tw.Append(record)
		}
	}
	tw.Render()
	return nil
}
