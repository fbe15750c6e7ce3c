// Package source defines the scan interface between the engine and
// external data providers, plus the built-in sources: in-memory
// tables, Parquet files, and Avro object container files.
//
// A Source declares a schema up front and, when opened, produces a
// finite lazy sequence of chunks conforming to it. The engine pushes a
// column selection and optionally a predicate into the scan; the
// column selection is binding, the predicate is advisory (the scan
// operator re-applies it, so sources may use it only to skip work).
package source

import (
	"context"

	"github.com/vegasq/lazyframe/column"
	"github.com/vegasq/lazyframe/expr"
)

// DefaultChunkSize is the row count per chunk used when a scan spec
// does not set one.
const DefaultChunkSize = 1024

// ScanSpec carries the pushed-down parameters of a scan.
type ScanSpec struct {
	// Columns selects which columns to produce, in the given order.
	// nil means all columns in schema order.
	Columns []string

	// Predicate is an optional filter pushed down by the optimizer.
	// Sources may use it to skip rows or row groups but are not
	// required to apply it; the scan operator enforces it either way.
	Predicate *expr.Expr

	// ChunkSize is the target number of rows per produced chunk.
	// Zero means DefaultChunkSize.
	ChunkSize int
}

// RowsPerChunk returns the effective chunk size.
func (s ScanSpec) RowsPerChunk() int {
	if s.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return s.ChunkSize
}

// ChunkReader is a lazy, finite sequence of chunks. Next returns
// (nil, nil) after the last chunk. Readers are not restartable; open
// the source again to re-scan.
type ChunkReader interface {
	Next(ctx context.Context) (*column.Chunk, error)
	Close() error
}

// Source is a table that the engine can scan. Implementations must
// produce chunks that conform exactly to the declared schema,
// restricted to the spec's column selection.
type Source interface {
	// Schema returns the full schema of the source.
	Schema() (*column.Schema, error)

	// Open starts a scan. Each call returns an independent reader.
	Open(ctx context.Context, spec ScanSpec) (ChunkReader, error)
}

// Sized is an optional Source extension reporting the total row count
// when it is known cheaply, for optimizer cardinality estimates.
type Sized interface {
	NumRows() (int64, bool)
}

// resolveColumns applies a scan spec's column selection to a schema,
// returning the output schema and the selected names.
func resolveColumns(schema *column.Schema, spec ScanSpec) (*column.Schema, []string, error) {
	names := spec.Columns
	if names == nil {
		names = schema.Names()
	}
	out, err := schema.Select(names)
	if err != nil {
		return nil, nil, err
	}
	return out, names, nil
}
