package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/vegasq/lazyframe/column"
)

// ParquetSource scans a Parquet file. The file schema is mapped to the
// engine's types: BOOLEAN becomes bool, INT32/INT64 become int64,
// FLOAT/DOUBLE become float64, and BYTE_ARRAY becomes string. Nested
// and repeated fields are not supported.
type ParquetSource struct {
	path   string
	schema *column.Schema
	rows   int64
}

// OpenParquet opens a Parquet file as a scannable source. The file is
// opened once to read its schema and row count, then re-opened per
// scan.
func OpenParquet(path string) (*ParquetSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	pqFile, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	schema, err := mapParquetSchema(pqFile.Schema())
	if err != nil {
		return nil, err
	}
	return &ParquetSource{path: path, schema: schema, rows: pqFile.NumRows()}, nil
}

// Schema returns the mapped engine schema of the file.
func (p *ParquetSource) Schema() (*column.Schema, error) {
	return p.schema, nil
}

// NumRows implements Sized using the file footer's row count.
func (p *ParquetSource) NumRows() (int64, bool) {
	return p.rows, true
}

// Open starts a scan over the file. Rows are decoded into generic maps
// the way the row-based reader API exposes them, then packed into
// typed chunks restricted to the spec's column selection.
func (p *ParquetSource) Open(ctx context.Context, spec ScanSpec) (ChunkReader, error) {
	outSchema, names, err := resolveColumns(p.schema, spec)
	if err != nil {
		return nil, fmt.Errorf("parquet scan: %w", err)
	}

	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	pqFile, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	return &parquetReader{
		file:   f,
		rows:   parquet.NewReader(pqFile),
		names:  names,
		schema: outSchema,
		size:   spec.RowsPerChunk(),
	}, nil
}

type parquetReader struct {
	file   *os.File
	rows   *parquet.Reader
	names  []string
	schema *column.Schema
	size   int
	done   bool
}

// Next reads up to size rows and packs the selected columns into a
// chunk. Returns (nil, nil) at end of file.
func (r *parquetReader) Next(ctx context.Context) (*column.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.done {
		return nil, nil
	}

	builders := make([]*column.Builder, r.schema.Len())
	for i, f := range r.schema.Fields() {
		builders[i] = column.NewBuilder(f.Name, f.Type, r.size)
	}

	count := 0
	for count < r.size {
		row := make(map[string]interface{})
		err := r.rows.Read(&row)
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.done = true
				break
			}
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		for i, name := range r.names {
			if err := builders[i].AppendValue(normalizeParquetValue(row[name])); err != nil {
				return nil, fmt.Errorf("row %d: %w", count, err)
			}
		}
		count++
	}
	if count == 0 {
		return nil, nil
	}

	cols := make([]*column.Column, len(builders))
	for i, b := range builders {
		cols[i] = b.Finish()
	}
	return column.NewChunk(cols...)
}

func (r *parquetReader) Close() error {
	if r.rows != nil {
		_ = r.rows.Close()
		r.rows = nil
	}
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

// normalizeParquetValue widens the row-reader's physical types to the
// engine's value set.
func normalizeParquetValue(v interface{}) interface{} {
	switch val := v.(type) {
	case int32:
		return int64(val)
	case float32:
		return float64(val)
	case []byte:
		return string(val)
	default:
		return v
	}
}

// mapParquetSchema maps a flat Parquet schema to engine fields.
func mapParquetSchema(s *parquet.Schema) (*column.Schema, error) {
	var fields []column.Field
	for _, f := range s.Fields() {
		if len(f.Fields()) > 0 {
			return nil, fmt.Errorf("nested field %q is not supported", f.Name())
		}
		if f.Repeated() {
			return nil, fmt.Errorf("repeated field %q is not supported", f.Name())
		}
		t, err := mapParquetType(f)
		if err != nil {
			return nil, err
		}
		fields = append(fields, column.Field{Name: f.Name(), Type: t})
	}
	return column.NewSchema(fields...)
}

func mapParquetType(f parquet.Field) (column.DataType, error) {
	if f.Type() == nil {
		return 0, fmt.Errorf("field %q has no physical type", f.Name())
	}
	switch f.Type().Kind() {
	case parquet.Boolean:
		return column.Bool, nil
	case parquet.Int32, parquet.Int64:
		return column.Int64, nil
	case parquet.Float, parquet.Double:
		return column.Float64, nil
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return column.String, nil
	default:
		return 0, fmt.Errorf("field %q: unsupported parquet type %s", f.Name(), f.Type().Kind())
	}
}
