package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	goavro "github.com/linkedin/goavro/v2"
	"github.com/parquet-go/parquet-go"

	"github.com/vegasq/lazyframe/column"
)

func collectChunks(t *testing.T, r ChunkReader) []*column.Chunk {
	t.Helper()
	defer func() { _ = r.Close() }()
	var chunks []*column.Chunk
	for {
		ch, err := r.Next(context.Background())
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if ch == nil {
			return chunks
		}
		chunks = append(chunks, ch)
	}
}

func TestMemorySourceRechunkAndProject(t *testing.T) {
	src, err := FromColumns(
		column.NewInt64Column("id", []int64{1, 2, 3, 4, 5}, nil),
		column.NewStringColumn("name", []string{"a", "b", "c", "d", "e"}, nil),
	)
	if err != nil {
		t.Fatal(err)
	}

	r, err := src.Open(context.Background(), ScanSpec{Columns: []string{"name"}, ChunkSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	chunks := collectChunks(t, r)

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3 (sizes 2,2,1)", len(chunks))
	}
	for _, ch := range chunks {
		if ch.NumCols() != 1 || ch.Schema().Field(0).Name != "name" {
			t.Errorf("chunk schema = %s, want name only", ch.Schema())
		}
	}
	if chunks[2].NumRows() != 1 {
		t.Errorf("last chunk has %d rows, want 1", chunks[2].NumRows())
	}
}

func TestMemorySourceRestartable(t *testing.T) {
	src, err := FromColumns(column.NewInt64Column("v", []int64{1, 2, 3}, nil))
	if err != nil {
		t.Fatal(err)
	}

	for pass := 0; pass < 2; pass++ {
		r, err := src.Open(context.Background(), ScanSpec{})
		if err != nil {
			t.Fatal(err)
		}
		chunks := collectChunks(t, r)
		total := 0
		for _, ch := range chunks {
			total += ch.NumRows()
		}
		if total != 3 {
			t.Errorf("pass %d: scanned %d rows, want 3", pass, total)
		}
	}
}

func TestMemorySourceUnknownColumn(t *testing.T) {
	src, err := FromColumns(column.NewInt64Column("v", []int64{1}, nil))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.Open(context.Background(), ScanSpec{Columns: []string{"missing"}}); err == nil {
		t.Error("expected error for unknown column selection")
	}
}

// userRow mirrors the fixture rows written to test parquet files.
type userRow struct {
	ID     int64    `parquet:"id"`
	Name   string   `parquet:"name"`
	Age    *int64   `parquet:"age,optional"`
	Score  float64  `parquet:"score"`
	Active bool     `parquet:"active"`
}

func createParquetFixture(t *testing.T, rows []userRow) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.parquet")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	defer func() { _ = f.Close() }()

	writer := parquet.NewGenericWriter[userRow](f)
	if _, err := writer.Write(rows); err != nil {
		t.Fatalf("failed to write test data: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	return path
}

func TestParquetSourceSchemaAndScan(t *testing.T) {
	age := int64(30)
	path := createParquetFixture(t, []userRow{
		{ID: 1, Name: "Alice", Age: &age, Score: 9.5, Active: true},
		{ID: 2, Name: "Bob", Age: nil, Score: 7.25, Active: false},
		{ID: 3, Name: "Charlie", Age: nil, Score: 4.0, Active: true},
	})

	src, err := OpenParquet(path)
	if err != nil {
		t.Fatal(err)
	}

	schema, err := src.Schema()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []struct {
		name string
		typ  column.DataType
	}{
		{"id", column.Int64},
		{"name", column.String},
		{"age", column.Int64},
		{"score", column.Float64},
		{"active", column.Bool},
	} {
		f, _, ok := schema.Lookup(want.name)
		if !ok {
			t.Fatalf("schema is missing column %q", want.name)
		}
		if f.Type != want.typ {
			t.Errorf("column %q type = %s, want %s", want.name, f.Type, want.typ)
		}
	}

	if n, ok := src.NumRows(); !ok || n != 3 {
		t.Errorf("NumRows = %d, %v, want 3, true", n, ok)
	}

	r, err := src.Open(context.Background(), ScanSpec{Columns: []string{"name", "age"}, ChunkSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	chunks := collectChunks(t, r)

	total := 0
	var names []string
	nulls := 0
	for _, ch := range chunks {
		if got := ch.Schema().Names(); len(got) != 2 || got[0] != "name" || got[1] != "age" {
			t.Fatalf("chunk schema = %s, want name, age", ch.Schema())
		}
		nameCol, _ := ch.ColumnByName("name")
		ageCol, _ := ch.ColumnByName("age")
		for i := 0; i < ch.NumRows(); i++ {
			names = append(names, nameCol.String(i))
			if ageCol.IsNull(i) {
				nulls++
			}
		}
		total += ch.NumRows()
	}
	if total != 3 {
		t.Fatalf("scanned %d rows, want 3", total)
	}
	if names[0] != "Alice" || names[1] != "Bob" || names[2] != "Charlie" {
		t.Errorf("names = %v", names)
	}
	if nulls != 2 {
		t.Errorf("null ages = %d, want 2", nulls)
	}
}

func createAvroFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.avro")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	defer func() { _ = f.Close() }()

	const schema = `{
		"type": "record",
		"name": "event",
		"fields": [
			{"name": "id", "type": "long"},
			{"name": "kind", "type": "string"},
			{"name": "value", "type": ["null", "double"]}
		]
	}`
	w, err := goavro.NewOCFWriter(goavro.OCFConfig{W: f, Schema: schema})
	if err != nil {
		t.Fatalf("failed to create OCF writer: %v", err)
	}
	records := []interface{}{
		map[string]interface{}{"id": int64(1), "kind": "click", "value": map[string]interface{}{"double": 0.5}},
		map[string]interface{}{"id": int64(2), "kind": "view", "value": nil},
	}
	if err := w.Append(records); err != nil {
		t.Fatalf("failed to append avro records: %v", err)
	}
	return path
}

func TestAvroSourceSchemaAndScan(t *testing.T) {
	path := createAvroFixture(t)

	src, err := OpenAvro(path)
	if err != nil {
		t.Fatal(err)
	}

	schema, err := src.Schema()
	if err != nil {
		t.Fatal(err)
	}
	if f, _, ok := schema.Lookup("value"); !ok || f.Type != column.Float64 {
		t.Errorf("value column = %v, %v; want nullable double mapped to float64", f, ok)
	}

	r, err := src.Open(context.Background(), ScanSpec{})
	if err != nil {
		t.Fatal(err)
	}
	chunks := collectChunks(t, r)

	total := 0
	for _, ch := range chunks {
		total += ch.NumRows()
	}
	if total != 2 {
		t.Fatalf("scanned %d rows, want 2", total)
	}

	first := chunks[0]
	idCol, _ := first.ColumnByName("id")
	valCol, _ := first.ColumnByName("value")
	if idCol.Int64(0) != 1 {
		t.Errorf("id[0] = %d, want 1", idCol.Int64(0))
	}
	if valCol.IsNull(0) || valCol.Float64(0) != 0.5 {
		t.Errorf("value[0] = %v, want 0.5", valCol.Value(0))
	}
	if !valCol.IsNull(1) {
		t.Error("value[1] should be null")
	}
}
