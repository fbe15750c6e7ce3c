package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/vegasq/lazyframe/column"
)

func resultTable(t *testing.T) *column.Table {
	t.Helper()
	ch, err := column.NewChunk(
		column.NewStringColumn("name", []string{"ann", "=cmd()", "bob"}, nil),
		column.NewInt64Column("age", []int64{30, 0, 25}, []bool{true, false, true}),
	)
	if err != nil {
		t.Fatal(err)
	}
	tbl, err := column.NewTable(ch.Schema(), []*column.Chunk{ch})
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONFormatter(&buf).Format(resultTable(t)); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"age":30`) {
		t.Errorf("first line missing age: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"age":null`) {
		t.Errorf("null row must render as JSON null: %s", lines[1])
	}
}

func TestCSVFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewCSVFormatter(&buf).Format(resultTable(t)); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "name,age" {
		t.Errorf("header = %q, want schema order", lines[0])
	}
	if lines[1] != "ann,30" {
		t.Errorf("row 1 = %q", lines[1])
	}
	// Null renders as an empty field.
	if !strings.HasSuffix(lines[2], ",") {
		t.Errorf("row 2 = %q, want trailing empty field for null", lines[2])
	}
	// Formula-like strings are neutralized.
	if strings.HasPrefix(lines[2], "=") {
		t.Errorf("row 2 = %q, formula injection not sanitized", lines[2])
	}
}

func TestCSVFormatterEmptyResult(t *testing.T) {
	schema, err := column.NewSchema(column.Field{Name: "k", Type: column.String})
	if err != nil {
		t.Fatal(err)
	}
	tbl, err := column.NewTable(schema, nil)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := NewCSVFormatter(&buf).Format(tbl); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); got != "k" {
		t.Errorf("empty result = %q, want header only", got)
	}
}

func TestTableFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewTableFormatter(&buf).Format(resultTable(t)); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"name", "age", "ann", "bob"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestForName(t *testing.T) {
	var buf bytes.Buffer
	for _, name := range []string{"json", "jsonl", "csv", "table"} {
		if _, ok := ForName(name, &buf); !ok {
			t.Errorf("ForName(%q) not recognized", name)
		}
	}
	if _, ok := ForName("yaml", &buf); ok {
		t.Error("ForName must reject unknown formats")
	}
}
