package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	goavro "github.com/linkedin/goavro/v2"

	"github.com/vegasq/lazyframe/column"
)

// AvroSource scans an Avro object container file. Record fields map to
// engine types: boolean becomes bool, int/long become int64,
// float/double become float64, string/bytes become string. A union of
// null with exactly one of those types maps to the nullable form of
// that type; other unions and nested records are not supported.
type AvroSource struct {
	path   string
	schema *column.Schema
}

// OpenAvro opens an Avro OCF file as a scannable source. The file is
// opened once to read its schema, then re-opened per scan.
func OpenAvro(path string) (*AvroSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	ocfr, err := goavro.NewOCFReader(f)
	if err != nil {
		return nil, fmt.Errorf("cannot read Avro OCF from %s: %w", path, err)
	}
	schema, err := mapAvroSchema(ocfr.Codec().Schema())
	if err != nil {
		return nil, err
	}
	return &AvroSource{path: path, schema: schema}, nil
}

// Schema returns the mapped engine schema of the file.
func (a *AvroSource) Schema() (*column.Schema, error) {
	return a.schema, nil
}

// Open starts a scan over the file.
func (a *AvroSource) Open(ctx context.Context, spec ScanSpec) (ChunkReader, error) {
	outSchema, names, err := resolveColumns(a.schema, spec)
	if err != nil {
		return nil, fmt.Errorf("avro scan: %w", err)
	}

	f, err := os.Open(a.path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", a.path, err)
	}
	ocfr, err := goavro.NewOCFReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("cannot read Avro OCF from %s: %w", a.path, err)
	}

	return &avroReader{
		file:   f,
		ocfr:   ocfr,
		names:  names,
		schema: outSchema,
		size:   spec.RowsPerChunk(),
	}, nil
}

type avroReader struct {
	file   *os.File
	ocfr   *goavro.OCFReader
	names  []string
	schema *column.Schema
	size   int
}

// Next reads up to size records and packs the selected fields into a
// chunk. Returns (nil, nil) at end of file.
func (r *avroReader) Next(ctx context.Context) (*column.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	builders := make([]*column.Builder, r.schema.Len())
	for i, f := range r.schema.Fields() {
		builders[i] = column.NewBuilder(f.Name, f.Type, r.size)
	}

	count := 0
	for count < r.size && r.ocfr.Scan() {
		datum, err := r.ocfr.Read()
		if err != nil {
			return nil, fmt.Errorf("error reading Avro record: %w", err)
		}
		rec, ok := datum.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("unexpected Avro record type %T", datum)
		}
		for i, name := range r.names {
			if err := builders[i].AppendValue(normalizeAvroValue(rec[name])); err != nil {
				return nil, fmt.Errorf("row %d: %w", count, err)
			}
		}
		count++
	}
	if err := r.ocfr.Err(); err != nil {
		return nil, fmt.Errorf("error reading Avro file: %w", err)
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

func (r *avroReader) Close() error {
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

// normalizeAvroValue widens goavro's decoded values to the engine's
// value set. Unions decode as a single-entry {"type": value} map.
func normalizeAvroValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		for _, inner := range val {
			return normalizeAvroValue(inner)
		}
		return nil
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

// avroField is the subset of an Avro record field declaration needed
// for schema mapping. Type is left as raw JSON because it may be a
// string, a union array, or an object.
type avroField struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
}

// mapAvroSchema maps an Avro record schema to engine fields.
func mapAvroSchema(schemaJSON string) (*column.Schema, error) {
	var def struct {
		Fields []avroField `json:"fields"`
	}
	if err := json.Unmarshal([]byte(schemaJSON), &def); err != nil {
		return nil, fmt.Errorf("cannot parse Avro schema: %w", err)
	}

	fields := make([]column.Field, 0, len(def.Fields))
	for _, f := range def.Fields {
		t, err := mapAvroType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		fields = append(fields, column.Field{Name: f.Name, Type: t})
	}
	return column.NewSchema(fields...)
}

func mapAvroType(raw json.RawMessage) (column.DataType, error) {
	// Plain type name.
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return avroTypeByName(name)
	}

	// Union: accept ["null", T] in either order.
	var union []json.RawMessage
	if err := json.Unmarshal(raw, &union); err == nil {
		var candidate column.DataType
		found := false
		for _, member := range union {
			var memberName string
			if err := json.Unmarshal(member, &memberName); err != nil {
				return 0, fmt.Errorf("unsupported union member %s", string(member))
			}
			if memberName == "null" {
				continue
			}
			if found {
				return 0, fmt.Errorf("union with multiple non-null types is not supported")
			}
			t, err := avroTypeByName(memberName)
			if err != nil {
				return 0, err
			}
			candidate = t
			found = true
		}
		if !found {
			return 0, fmt.Errorf("union has no non-null member")
		}
		return candidate, nil
	}

	return 0, fmt.Errorf("unsupported type declaration %s", string(raw))
}

func avroTypeByName(name string) (column.DataType, error) {
	switch name {
	case "boolean":
		return column.Bool, nil
	case "int", "long":
		return column.Int64, nil
	case "float", "double":
		return column.Float64, nil
	case "string", "bytes":
		return column.String, nil
	default:
		return 0, fmt.Errorf("unsupported avro type %q", name)
	}
}
