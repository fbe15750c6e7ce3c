package exec

import (
	"context"
	"fmt"
	"strings"

	"github.com/vegasq/lazyframe/column"
	"github.com/vegasq/lazyframe/expr"
	"github.com/vegasq/lazyframe/qerror"
)

// hashAggOp groups its input by key columns and folds aggregate
// accumulators per group. Groups are emitted in first-seen order. A
// grouping with no keys always produces exactly one row, even over
// empty input.
type hashAggOp struct {
	q      *query
	input  Operator
	schema *column.Schema
	keys   []string
	aggs   []*expr.Expr

	groups  []*aggGroup
	index   map[string]int
	emitted int
	done    bool
}

type aggGroup struct {
	keyVals []interface{}
	accs    []accumulator
}

func (h *hashAggOp) Schema() *column.Schema { return h.schema }

func (h *hashAggOp) Open(ctx context.Context) error {
	h.index = make(map[string]int)
	return h.input.Open(ctx)
}

func (h *hashAggOp) Next(ctx context.Context) (*column.Chunk, error) {
	if err := h.q.cancelled(ctx); err != nil {
		return nil, err
	}
	if !h.done {
		if err := h.consume(ctx); err != nil {
			return nil, err
		}
		h.done = true
	}
	return h.emit()
}

// consume drains the input and folds every row into its group.
func (h *hashAggOp) consume(ctx context.Context) error {
	for {
		if err := h.q.cancelled(ctx); err != nil {
			return err
		}
		ch, err := h.input.Next(ctx)
		if err != nil {
			return err
		}
		if ch == nil {
			break
		}
		if err := h.consumeChunk(ch); err != nil {
			return err
		}
	}
	if len(h.keys) == 0 && len(h.groups) == 0 {
		g, err := h.newGroup(nil, 0)
		if err != nil {
			return err
		}
		h.groups = append(h.groups, g)
	}
	return nil
}

func (h *hashAggOp) consumeChunk(ch *column.Chunk) error {
	keyCols := make([]*column.Column, len(h.keys))
	for i, name := range h.keys {
		col, ok := ch.ColumnByName(name)
		if !ok {
			return &qerror.SchemaError{Op: "aggregate", Column: name, Detail: "group key missing from chunk"}
		}
		keyCols[i] = col
	}
	inputs := make([]*column.Column, len(h.aggs))
	for i, a := range h.aggs {
		_, in, _, _ := expr.UnwrapAggregate(a)
		if in == nil {
			continue
		}
		col, err := expr.Eval(in, ch)
		if err != nil {
			return err
		}
		inputs[i] = col
	}

	var b strings.Builder
	for row := 0; row < ch.NumRows(); row++ {
		b.Reset()
		for _, col := range keyCols {
			appendKeyPart(&b, col, row)
		}
		key := b.String()
		idx, ok := h.index[key]
		if !ok {
			g, err := h.newGroup(keyCols, row)
			if err != nil {
				return err
			}
			idx = len(h.groups)
			h.groups = append(h.groups, g)
			h.index[key] = idx
		}
		g := h.groups[idx]
		for i, acc := range g.accs {
			if err := acc.add(inputs[i], row); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *hashAggOp) newGroup(keyCols []*column.Column, row int) (*aggGroup, error) {
	g := &aggGroup{
		keyVals: make([]interface{}, len(keyCols)),
		accs:    make([]accumulator, len(h.aggs)),
	}
	for i, col := range keyCols {
		g.keyVals[i] = col.Value(row)
	}
	for i, a := range h.aggs {
		fn, _, _, _ := expr.UnwrapAggregate(a)
		acc, err := newAccumulator(fn, a)
		if err != nil {
			return nil, err
		}
		g.accs[i] = acc
	}
	return g, nil
}

// emit produces the next chunk of grouped results.
func (h *hashAggOp) emit() (*column.Chunk, error) {
	if h.emitted >= len(h.groups) {
		return nil, nil
	}
	end := h.emitted + h.q.opts.ChunkSize
	if end > len(h.groups) {
		end = len(h.groups)
	}
	fields := h.schema.Fields()
	builders := make([]*column.Builder, len(fields))
	for i, f := range fields {
		builders[i] = column.NewBuilder(f.Name, f.Type, end-h.emitted)
	}
	for _, g := range h.groups[h.emitted:end] {
		col := 0
		for _, v := range g.keyVals {
			if err := builders[col].AppendValue(v); err != nil {
				return nil, err
			}
			col++
		}
		for _, acc := range g.accs {
			if err := builders[col].AppendValue(acc.result()); err != nil {
				return nil, err
			}
			col++
		}
	}
	h.emitted = end
	cols := make([]*column.Column, len(builders))
	for i, b := range builders {
		cols[i] = b.Finish()
	}
	return column.NewChunk(cols...)
}

func (h *hashAggOp) Close() error {
	h.groups = nil
	h.index = nil
	return h.input.Close()
}

// accumulator folds one aggregate over the rows of a group. add
// receives the evaluated input column (nil for count(*)) and the row
// index; result returns the final value, nil meaning null.
type accumulator interface {
	add(col *column.Column, row int) error
	result() interface{}
}

func newAccumulator(fn expr.Op, e *expr.Expr) (accumulator, error) {
	switch fn {
	case expr.AggCountAll:
		return &countAcc{all: true}, nil
	case expr.AggCount:
		return &countAcc{}, nil
	case expr.AggSum:
		return &sumAcc{expr: e}, nil
	case expr.AggMin:
		return &extremeAcc{min: true}, nil
	case expr.AggMax:
		return &extremeAcc{}, nil
	case expr.AggMean:
		return &meanAcc{}, nil
	case expr.AggFirst:
		return &firstAcc{}, nil
	default:
		return nil, fmt.Errorf("unsupported aggregate %s", fn)
	}
}

// countAcc counts rows (count(*)) or non-null values (count(x)).
type countAcc struct {
	all bool
	n   int64
}

func (a *countAcc) add(col *column.Column, row int) error {
	if a.all || !col.IsNull(row) {
		a.n++
	}
	return nil
}

func (a *countAcc) result() interface{} { return a.n }

// sumAcc sums non-null values, keeping the input's type. Integer
// overflow is a compute error. An all-null group sums to null.
type sumAcc struct {
	expr *expr.Expr
	seen bool
	typ  column.DataType
	i    int64
	f    float64
}

func (a *sumAcc) add(col *column.Column, row int) error {
	if col.IsNull(row) {
		return nil
	}
	a.typ = col.Type()
	switch col.Type() {
	case column.Int64:
		v := col.Int64(row)
		s := a.i + v
		if (a.i > 0 && v > 0 && s < 0) || (a.i < 0 && v < 0 && s >= 0) {
			return &qerror.ComputeError{Op: "aggregate", Expr: a.expr.String(), Detail: "integer overflow in sum", Row: -1}
		}
		a.i = s
	case column.Float64:
		a.f += col.Float64(row)
	default:
		return &qerror.ComputeError{Op: "aggregate", Expr: a.expr.String(), Detail: "sum requires a numeric input", Row: row}
	}
	a.seen = true
	return nil
}

func (a *sumAcc) result() interface{} {
	if !a.seen {
		return nil
	}
	if a.typ == column.Int64 {
		return a.i
	}
	return a.f
}

// extremeAcc tracks the smallest or largest non-null value.
type extremeAcc struct {
	min  bool
	seen bool
	typ  column.DataType
	b    bool
	i    int64
	f    float64
	s    string
}

func (a *extremeAcc) add(col *column.Column, row int) error {
	if col.IsNull(row) {
		return nil
	}
	if !a.seen {
		a.seen = true
		a.typ = col.Type()
		a.capture(col, row)
		return nil
	}
	if a.better(col, row) {
		a.capture(col, row)
	}
	return nil
}

func (a *extremeAcc) capture(col *column.Column, row int) {
	switch col.Type() {
	case column.Bool:
		a.b = col.Bool(row)
	case column.Int64:
		a.i = col.Int64(row)
	case column.Float64:
		a.f = col.Float64(row)
	case column.String:
		a.s = col.String(row)
	}
}

func (a *extremeAcc) better(col *column.Column, row int) bool {
	var cmp int
	switch col.Type() {
	case column.Bool:
		cur, v := a.b, col.Bool(row)
		switch {
		case v == cur:
			cmp = 0
		case cur:
			cmp = -1
		default:
			cmp = 1
		}
	case column.Int64:
		cur, v := a.i, col.Int64(row)
		switch {
		case v < cur:
			cmp = -1
		case v > cur:
			cmp = 1
		}
	case column.Float64:
		cur, v := a.f, col.Float64(row)
		switch {
		case v < cur:
			cmp = -1
		case v > cur:
			cmp = 1
		}
	case column.String:
		cmp = strings.Compare(col.String(row), a.s)
	}
	if a.min {
		return cmp < 0
	}
	return cmp > 0
}

func (a *extremeAcc) result() interface{} {
	if !a.seen {
		return nil
	}
	switch a.typ {
	case column.Bool:
		return a.b
	case column.Int64:
		return a.i
	case column.Float64:
		return a.f
	default:
		return a.s
	}
}

// meanAcc averages non-null values as float64.
type meanAcc struct {
	sum float64
	n   int64
}

func (a *meanAcc) add(col *column.Column, row int) error {
	if col.IsNull(row) {
		return nil
	}
	switch col.Type() {
	case column.Int64:
		a.sum += float64(col.Int64(row))
	case column.Float64:
		a.sum += col.Float64(row)
	}
	a.n++
	return nil
}

func (a *meanAcc) result() interface{} {
	if a.n == 0 {
		return nil
	}
	return a.sum / float64(a.n)
}

// firstAcc keeps the first value in encounter order, null included.
type firstAcc struct {
	set bool
	val interface{}
}

func (a *firstAcc) add(col *column.Column, row int) error {
	if !a.set {
		a.set = true
		a.val = col.Value(row)
	}
	return nil
}

func (a *firstAcc) result() interface{} { return a.val }
