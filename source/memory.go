package source

import (
	"context"
	"fmt"

	"github.com/vegasq/lazyframe/column"
)

// MemorySource serves scans from an in-memory table. It is restartable:
// every Open starts an independent pass over the same immutable data.
type MemorySource struct {
	table *column.Table
}

// NewMemorySource wraps a materialized table as a scannable source.
func NewMemorySource(t *column.Table) *MemorySource {
	return &MemorySource{table: t}
}

// FromColumns builds a single-chunk memory source from columns. All
// columns must have equal length and unique names.
func FromColumns(cols ...*column.Column) (*MemorySource, error) {
	ch, err := column.NewChunk(cols...)
	if err != nil {
		return nil, fmt.Errorf("building memory source: %w", err)
	}
	t, err := column.NewTable(ch.Schema(), []*column.Chunk{ch})
	if err != nil {
		return nil, err
	}
	return NewMemorySource(t), nil
}

// Schema returns the table schema.
func (m *MemorySource) Schema() (*column.Schema, error) {
	return m.table.Schema(), nil
}

// NumRows implements Sized.
func (m *MemorySource) NumRows() (int64, bool) {
	return int64(m.table.NumRows()), true
}

// Open starts a scan over the table, re-chunked to the spec's chunk
// size and restricted to its column selection.
func (m *MemorySource) Open(ctx context.Context, spec ScanSpec) (ChunkReader, error) {
	outSchema, names, err := resolveColumns(m.table.Schema(), spec)
	if err != nil {
		return nil, fmt.Errorf("memory scan: %w", err)
	}
	return &memoryReader{
		source: m,
		names:  names,
		schema: outSchema,
		size:   spec.RowsPerChunk(),
	}, nil
}

type memoryReader struct {
	source *MemorySource
	names  []string
	schema *column.Schema
	size   int

	chunkIdx int // next chunk of the backing table
	rowIdx   int // next row within that chunk
	closed   bool
}

// Next emits the next slice of up to size rows, projected to the
// selected columns.
func (r *memoryReader) Next(ctx context.Context) (*column.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.closed {
		return nil, fmt.Errorf("memory scan: reader is closed")
	}
	chunks := r.source.table.Chunks()
	for r.chunkIdx < len(chunks) {
		ch := chunks[r.chunkIdx]
		if r.rowIdx >= ch.NumRows() {
			r.chunkIdx++
			r.rowIdx = 0
			continue
		}
		end := r.rowIdx + r.size
		if end > ch.NumRows() {
			end = ch.NumRows()
		}
		out, err := ch.Slice(r.rowIdx, end).Select(r.names)
		if err != nil {
			return nil, err
		}
		r.rowIdx = end
		return out, nil
	}
	return nil, nil
}

func (r *memoryReader) Close() error {
	r.closed = true
	return nil
}
