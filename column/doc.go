// Package column implements the columnar data model of the engine:
// strongly-typed immutable columns with null tracking, chunks of
// equal-length columns, schemas, and materialized result tables.
//
// A Chunk is the atomic unit of data passed between physical operators.
// Columns and chunks are immutable once constructed, so concurrent
// readers need no locking.
//
// Example usage:
//
//	b := column.NewBuilder("age", column.Int64, 3)
//	b.AppendInt64(30)
//	b.AppendNull()
//	b.AppendInt64(25)
//	col := b.Finish()
//
//	chunk, err := column.NewChunk(col)
package column
