package column

import "fmt"

// Table is a fully materialized query result: a schema plus an ordered
// list of chunks that all conform to it.
type Table struct {
	schema *Schema
	chunks []*Chunk
}

// NewTable builds a table from a schema and chunks. Every chunk must
// match the schema exactly (name, order, type).
func NewTable(schema *Schema, chunks []*Chunk) (*Table, error) {
	for i, ch := range chunks {
		if !ch.Schema().Equal(schema) {
			return nil, fmt.Errorf("chunk %d schema [%s] does not match table schema [%s]", i, ch.Schema(), schema)
		}
	}
	return &Table{schema: schema, chunks: chunks}, nil
}

// Schema returns the table schema.
func (t *Table) Schema() *Schema { return t.schema }

// Chunks returns the ordered chunk list. Callers must not mutate it.
func (t *Table) Chunks() []*Chunk { return t.chunks }

// NumRows returns the total row count across all chunks.
func (t *Table) NumRows() int {
	n := 0
	for _, ch := range t.chunks {
		n += ch.NumRows()
	}
	return n
}

// Column concatenates the named column across all chunks into a single
// column. Useful for tests and small results.
func (t *Table) Column(name string) (*Column, error) {
	f, _, ok := t.schema.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("column %q not found", name)
	}
	b := NewBuilder(f.Name, f.Type, t.NumRows())
	for _, ch := range t.chunks {
		col, _ := ch.ColumnByName(name)
		for i := 0; i < col.Len(); i++ {
			if err := b.AppendValue(col.Value(i)); err != nil {
				return nil, err
			}
		}
	}
	return b.Finish(), nil
}

// Rows extracts every row as a name-to-value map, in table order.
// Intended for output formatting and tests, not bulk processing.
func (t *Table) Rows() []map[string]interface{} {
	rows := make([]map[string]interface{}, 0, t.NumRows())
	for _, ch := range t.chunks {
		for i := 0; i < ch.NumRows(); i++ {
			rows = append(rows, ch.Row(i))
		}
	}
	return rows
}
