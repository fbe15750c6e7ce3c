package column

import "fmt"

// Chunk is an ordered set of same-length columns sharing a schema. It
// is the atomic unit passed between physical operators and is
// immutable once constructed.
type Chunk struct {
	schema *Schema
	cols   []*Column
	length int
}

// NewChunk builds a chunk from columns. All columns must have the same
// length and unique names; the chunk schema is derived from them.
func NewChunk(cols ...*Column) (*Chunk, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("chunk requires at least one column")
	}
	fields := make([]Field, len(cols))
	length := cols[0].Len()
	for i, c := range cols {
		if c.Len() != length {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", c.Name(), c.Len(), length)
		}
		fields[i] = c.Field()
	}
	schema, err := NewSchema(fields...)
	if err != nil {
		return nil, err
	}
	return &Chunk{schema: schema, cols: append([]*Column(nil), cols...), length: length}, nil
}

// EmptyChunk returns a zero-row chunk conforming to the schema.
func EmptyChunk(schema *Schema) *Chunk {
	cols := make([]*Column, schema.Len())
	for i, f := range schema.Fields() {
		cols[i] = NewBuilder(f.Name, f.Type, 0).Finish()
	}
	return &Chunk{schema: schema, cols: cols, length: 0}
}

// Schema returns the chunk schema.
func (c *Chunk) Schema() *Schema { return c.schema }

// NumRows returns the number of rows.
func (c *Chunk) NumRows() int { return c.length }

// NumCols returns the number of columns.
func (c *Chunk) NumCols() int { return len(c.cols) }

// Column returns the column at position i.
func (c *Chunk) Column(i int) *Column { return c.cols[i] }

// Columns returns the ordered column list. Callers must not mutate it.
func (c *Chunk) Columns() []*Column { return c.cols }

// ColumnByName finds a column by name.
func (c *Chunk) ColumnByName(name string) (*Column, bool) {
	_, i, ok := c.schema.Lookup(name)
	if !ok {
		return nil, false
	}
	return c.cols[i], true
}

// Select returns a chunk containing only the named columns, in the
// order given. Column storage is shared with the receiver.
func (c *Chunk) Select(names []string) (*Chunk, error) {
	cols := make([]*Column, 0, len(names))
	for _, name := range names {
		col, ok := c.ColumnByName(name)
		if !ok {
			return nil, fmt.Errorf("column %q not found", name)
		}
		cols = append(cols, col)
	}
	return NewChunk(cols...)
}

// Slice returns a chunk viewing rows [start, end). Column storage is
// shared with the receiver.
func (c *Chunk) Slice(start, end int) *Chunk {
	cols := make([]*Column, len(c.cols))
	for i, col := range c.cols {
		cols[i] = col.Slice(start, end)
	}
	return &Chunk{schema: c.schema, cols: cols, length: end - start}
}

// Row extracts row i as a name-to-value map, with nil for nulls.
func (c *Chunk) Row(i int) map[string]interface{} {
	row := make(map[string]interface{}, len(c.cols))
	for _, col := range c.cols {
		row[col.Name()] = col.Value(i)
	}
	return row
}
