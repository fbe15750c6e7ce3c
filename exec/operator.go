package exec

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vegasq/lazyframe/column"
	"github.com/vegasq/lazyframe/expr"
	"github.com/vegasq/lazyframe/qerror"
	"github.com/vegasq/lazyframe/source"
)

// scanOp reads chunks from a source. A predicate pushed into the scan
// is advisory for the source: the source may use it to skip data, but
// the scan re-applies it to every chunk so pushdown can never
// resurrect filtered rows.
type scanOp struct {
	q       *query
	src     source.Source
	schema  *column.Schema
	columns []string
	pushed  *expr.Expr
	reader  source.ChunkReader
}

func (s *scanOp) Schema() *column.Schema { return s.schema }

func (s *scanOp) Open(ctx context.Context) error {
	r, err := s.src.Open(ctx, source.ScanSpec{
		Columns:   s.columns,
		Predicate: s.pushed,
		ChunkSize: s.q.opts.ChunkSize,
	})
	if err != nil {
		return fmt.Errorf("opening scan: %w", err)
	}
	s.reader = r
	return nil
}

func (s *scanOp) Next(ctx context.Context) (*column.Chunk, error) {
	if err := s.q.cancelled(ctx); err != nil {
		return nil, err
	}
	ch, err := s.reader.Next(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &qerror.CancelledError{QueryID: s.q.id}
		}
		return nil, err
	}
	if ch == nil {
		return nil, nil
	}
	if s.pushed != nil {
		return filterChunk(ch, s.pushed)
	}
	return ch, nil
}

func (s *scanOp) Close() error {
	if s.reader != nil {
		return s.reader.Close()
	}
	return nil
}

// mapOp applies a pure per-chunk transform. Filters and projections
// are both map stages, which lets the engine fuse or parallelize them
// uniformly.
type mapOp struct {
	q      *query
	input  Operator
	schema *column.Schema
	fn     func(*column.Chunk) (*column.Chunk, error)
}

func newFilterOp(q *query, input Operator, pred *expr.Expr) *mapOp {
	return &mapOp{
		q:      q,
		input:  input,
		schema: input.Schema(),
		fn: func(ch *column.Chunk) (*column.Chunk, error) {
			return filterChunk(ch, pred)
		},
	}
}

func newProjectOp(q *query, input Operator, exprs []*expr.Expr, schema *column.Schema) *mapOp {
	return &mapOp{
		q:      q,
		input:  input,
		schema: schema,
		fn: func(ch *column.Chunk) (*column.Chunk, error) {
			cols := make([]*column.Column, len(exprs))
			for i, e := range exprs {
				out, err := expr.Eval(e, ch)
				if err != nil {
					return nil, err
				}
				cols[i] = out
			}
			return column.NewChunk(cols...)
		},
	}
}

func (m *mapOp) Schema() *column.Schema { return m.schema }

func (m *mapOp) Open(ctx context.Context) error { return m.input.Open(ctx) }

func (m *mapOp) Next(ctx context.Context) (*column.Chunk, error) {
	if err := m.q.cancelled(ctx); err != nil {
		return nil, err
	}
	ch, err := m.input.Next(ctx)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, nil
	}
	return m.fn(ch)
}

func (m *mapOp) Close() error { return m.input.Close() }

// limitOp passes rows through until the limit is reached, then stops
// pulling from upstream entirely.
type limitOp struct {
	q         *query
	input     Operator
	schema    *column.Schema
	remaining int64
}

func (l *limitOp) Schema() *column.Schema { return l.schema }

func (l *limitOp) Open(ctx context.Context) error { return l.input.Open(ctx) }

func (l *limitOp) Next(ctx context.Context) (*column.Chunk, error) {
	if err := l.q.cancelled(ctx); err != nil {
		return nil, err
	}
	if l.remaining <= 0 {
		return nil, nil
	}
	ch, err := l.input.Next(ctx)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, nil
	}
	if int64(ch.NumRows()) > l.remaining {
		ch = ch.Slice(0, int(l.remaining))
	}
	l.remaining -= int64(ch.NumRows())
	return ch, nil
}

func (l *limitOp) Close() error { return l.input.Close() }

// distinctOp streams rows through a seen-set over the subset columns
// (or the whole row), keeping the first occurrence of each key.
type distinctOp struct {
	q      *query
	input  Operator
	schema *column.Schema
	subset []string
	seen   map[string]bool
}

func (d *distinctOp) Schema() *column.Schema { return d.schema }

func (d *distinctOp) Open(ctx context.Context) error {
	d.seen = make(map[string]bool)
	return d.input.Open(ctx)
}

func (d *distinctOp) Next(ctx context.Context) (*column.Chunk, error) {
	if err := d.q.cancelled(ctx); err != nil {
		return nil, err
	}
	ch, err := d.input.Next(ctx)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, nil
	}
	names := d.subset
	if len(names) == 0 {
		names = d.schema.Names()
	}
	keyCols := make([]*column.Column, len(names))
	for i, name := range names {
		col, ok := ch.ColumnByName(name)
		if !ok {
			return nil, &qerror.SchemaError{Op: "distinct", Column: name, Detail: "column missing from chunk"}
		}
		keyCols[i] = col
	}
	var keep []int
	var b strings.Builder
	for row := 0; row < ch.NumRows(); row++ {
		b.Reset()
		for _, col := range keyCols {
			appendKeyPart(&b, col, row)
		}
		key := b.String()
		if d.seen[key] {
			continue
		}
		d.seen[key] = true
		keep = append(keep, row)
	}
	if len(keep) == ch.NumRows() {
		return ch, nil
	}
	return gatherChunk(ch, keep)
}

func (d *distinctOp) Close() error {
	d.seen = nil
	return d.input.Close()
}

// filterChunk keeps the rows where the predicate evaluates to true.
// False and null both drop the row.
func filterChunk(ch *column.Chunk, pred *expr.Expr) (*column.Chunk, error) {
	mask, err := expr.Eval(pred, ch)
	if err != nil {
		return nil, err
	}
	keep := make([]int, 0, ch.NumRows())
	for row := 0; row < ch.NumRows(); row++ {
		if !mask.IsNull(row) && mask.Bool(row) {
			keep = append(keep, row)
		}
	}
	if len(keep) == ch.NumRows() {
		return ch, nil
	}
	return gatherChunk(ch, keep)
}

// gatherChunk builds a chunk holding the given rows, in order.
func gatherChunk(ch *column.Chunk, rows []int) (*column.Chunk, error) {
	cols := make([]*column.Column, ch.NumCols())
	for i := 0; i < ch.NumCols(); i++ {
		cols[i] = gather(ch.Column(i), rows)
	}
	return column.NewChunk(cols...)
}

// gather builds a column holding the given rows of the input, in
// order.
func gather(col *column.Column, rows []int) *column.Column {
	b := column.NewBuilder(col.Name(), col.Type(), len(rows))
	for _, row := range rows {
		if col.IsNull(row) {
			b.AppendNull()
			continue
		}
		switch col.Type() {
		case column.Bool:
			b.AppendBool(col.Bool(row))
		case column.Int64:
			b.AppendInt64(col.Int64(row))
		case column.Float64:
			b.AppendFloat64(col.Float64(row))
		case column.String:
			b.AppendString(col.String(row))
		}
	}
	return b.Finish()
}

// appendKeyPart appends an unambiguous encoding of one key value.
// Every part is length-prefixed, so string values containing delimiter
// bytes cannot shift the part boundaries of a composite key. Nulls
// encode distinctly from every real value.
func appendKeyPart(b *strings.Builder, col *column.Column, row int) {
	if col.IsNull(row) {
		b.WriteString("n:")
		return
	}
	var v string
	switch col.Type() {
	case column.Bool:
		if col.Bool(row) {
			v = "t"
		} else {
			v = "f"
		}
	case column.Int64:
		v = strconv.FormatInt(col.Int64(row), 10)
	case column.Float64:
		v = strconv.FormatFloat(col.Float64(row), 'g', -1, 64)
	case column.String:
		v = col.String(row)
	}
	b.WriteString(strconv.Itoa(len(v)))
	b.WriteByte(':')
	b.WriteString(v)
}

// compareAt orders two rows of a column with nulls sorting first.
func compareAt(col *column.Column, i, j int) int {
	in, jn := col.IsNull(i), col.IsNull(j)
	switch {
	case in && jn:
		return 0
	case in:
		return -1
	case jn:
		return 1
	}
	switch col.Type() {
	case column.Bool:
		bi, bj := col.Bool(i), col.Bool(j)
		switch {
		case bi == bj:
			return 0
		case bj:
			return -1
		default:
			return 1
		}
	case column.Int64:
		vi, vj := col.Int64(i), col.Int64(j)
		switch {
		case vi < vj:
			return -1
		case vi > vj:
			return 1
		default:
			return 0
		}
	case column.Float64:
		vi, vj := col.Float64(i), col.Float64(j)
		switch {
		case vi < vj:
			return -1
		case vi > vj:
			return 1
		default:
			return 0
		}
	case column.String:
		return strings.Compare(col.String(i), col.String(j))
	default:
		return 0
	}
}
