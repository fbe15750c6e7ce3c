package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/vegasq/lazyframe/column"
	"github.com/vegasq/lazyframe/exec"
	"github.com/vegasq/lazyframe/expr"
	"github.com/vegasq/lazyframe/frame"
	"github.com/vegasq/lazyframe/output"
	"github.com/vegasq/lazyframe/source"
)

var (
	colsFlag     = flag.String("cols", "", "Comma-separated list of columns to select (default: all)")
	sortFlag     = flag.String("sort", "", "Comma-separated sort keys; prefix a key with '-' for descending")
	limitFlag    = flag.Int64("limit", 0, "Limit number of rows (0 = unlimited)")
	distinctFlag = flag.Bool("distinct", false, "Drop duplicate rows")
	formatFlag   = flag.String("f", "jsonl", "Output format: jsonl, csv, table")
	streamFlag   = flag.Bool("stream", false, "Stream chunks through the pipeline instead of materializing each stage")
	chunkFlag    = flag.Int("chunk", 0, "Rows per chunk (0 = default)")
	workersFlag  = flag.Int("workers", 0, "Parallel workers for filter/select stages (0 = sequential)")
	schemaFlag   = flag.Bool("schema", false, "Show schema information instead of data")
	explainFlag  = flag.Bool("explain", false, "Print the logical and optimized plans instead of executing")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <file.parquet|file.avro>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "A tool to read and query Parquet and Avro files.\n\n")
		fmt.Fprintf(os.Stderr, "IMPORTANT: All flags must come BEFORE the file argument.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s data.parquet\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -f csv -cols id,name data.parquet\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -sort -age,name -limit 10 data.avro\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --schema data.parquet\n", os.Args[0])
	}

	flag.Parse()

	if *limitFlag < 0 {
		fmt.Fprintf(os.Stderr, "Error: -limit must be non-negative, got %d\n", *limitFlag)
		os.Exit(1)
	}
	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: missing input file argument\n\n")
		flag.Usage()
		os.Exit(1)
	}
	filename := flag.Arg(0)

	src, err := openSource(filename)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error: file '%s' not found\n", filename)
			fmt.Fprintf(os.Stderr, "Please check the file path and try again.\n")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}

	if *schemaFlag {
		schema, err := src.Schema()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printSchema(schema)
		return
	}

	f := buildFrame(src)
	if err := f.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *explainFlag {
		out, err := f.Explain()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(out)
		return
	}

	formatter, ok := output.ForName(*formatFlag, os.Stdout)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown output format '%s' (supported: jsonl, csv, table)\n", *formatFlag)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	tbl, err := f.CollectWith(ctx, exec.Options{
		ChunkSize:   *chunkFlag,
		Streaming:   *streamFlag,
		Parallelism: *workersFlag,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := formatter.Format(tbl); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		os.Exit(1)
	}
}

// openSource picks the source implementation from the file extension.
func openSource(path string) (source.Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return source.OpenParquet(path)
	case ".avro":
		return source.OpenAvro(path)
	default:
		return nil, fmt.Errorf("unsupported file extension %q (expected .parquet or .avro)", filepath.Ext(path))
	}
}

// buildFrame assembles the lazy pipeline from the flags. Ordering the
// keys with a '-' prefix marks that key descending.
func buildFrame(src source.Source) *frame.LazyFrame {
	f := frame.Scan(src)
	if *colsFlag != "" {
		names := splitList(*colsFlag)
		exprs := make([]*expr.Expr, len(names))
		for i, name := range names {
			exprs[i] = expr.Col(name)
		}
		f = f.Select(exprs...)
	}
	if *distinctFlag {
		f = f.Distinct()
	}
	if *sortFlag != "" {
		keys, desc := parseSortKeys(*sortFlag)
		f = f.Sort(keys, desc)
	}
	if *limitFlag > 0 {
		f = f.Limit(*limitFlag)
	}
	return f
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseSortKeys(s string) ([]string, []bool) {
	raw := splitList(s)
	keys := make([]string, len(raw))
	desc := make([]bool, len(raw))
	for i, k := range raw {
		if strings.HasPrefix(k, "-") {
			keys[i] = strings.TrimPrefix(k, "-")
			desc[i] = true
		} else {
			keys[i] = k
		}
	}
	return keys, desc
}

func printSchema(schema *column.Schema) {
	fmt.Printf("Schema (%d columns):\n", schema.Len())
	for _, f := range schema.Fields() {
		fmt.Printf("  %s: %s\n", f.Name, f.Type)
	}
}
