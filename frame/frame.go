// Package frame is the user-facing lazy query builder. A LazyFrame
// wraps a logical plan node: every method adds a node to the plan and
// returns a new frame without reading any data. Schemas resolve
// eagerly, so a typo'd column or a type mismatch surfaces from the
// builder call that introduced it, and the first error sticks to the
// frame until it is observed via Err or Collect.
//
// Example usage:
//
//	users, _ := source.OpenParquet("users.parquet")
//	out, err := frame.Scan(users).
//		Filter(expr.Col("age").Ge(expr.Lit(18))).
//		GroupBy("country").
//		Agg(expr.Count(expr.Col("id")), expr.Mean(expr.Col("age")).As("avg_age")).
//		Sort([]string{"country"}, nil).
//		Collect(ctx)
package frame

import (
	"context"
	"fmt"

	"github.com/vegasq/lazyframe/column"
	"github.com/vegasq/lazyframe/exec"
	"github.com/vegasq/lazyframe/expr"
	"github.com/vegasq/lazyframe/optimizer"
	"github.com/vegasq/lazyframe/plan"
	"github.com/vegasq/lazyframe/source"
)

// JoinType selects the join variant for LazyFrame.Join.
type JoinType = plan.JoinType

// Join variants.
const (
	JoinInner = plan.JoinInner
	JoinLeft  = plan.JoinLeft
	JoinRight = plan.JoinRight
	JoinFull  = plan.JoinFull
)

// LazyFrame is an immutable handle on a logical plan node. Frames are
// cheap to copy and share their plan arena, so common prefixes are
// stored once.
type LazyFrame struct {
	p    *plan.Plan
	root plan.NodeID
	err  error
}

// Scan starts a frame reading every column of a source.
func Scan(src source.Source) *LazyFrame {
	p := plan.New()
	root, err := p.Scan(src)
	return &LazyFrame{p: p, root: root, err: err}
}

// errFrame propagates a sticky error.
func (f *LazyFrame) errFrame(err error) *LazyFrame {
	return &LazyFrame{p: f.p, root: f.root, err: err}
}

func (f *LazyFrame) derive(root plan.NodeID, err error) *LazyFrame {
	if err != nil {
		return f.errFrame(err)
	}
	return &LazyFrame{p: f.p, root: root}
}

// Err returns the first error recorded while building the frame.
func (f *LazyFrame) Err() error { return f.err }

// Schema returns the frame's resolved output schema, available before
// any data is read. It is nil when the frame carries an error.
func (f *LazyFrame) Schema() *column.Schema {
	if f.err != nil {
		return nil
	}
	return f.p.Schema(f.root)
}

// Filter keeps the rows where the predicate is true. Rows where it is
// false or null are dropped.
func (f *LazyFrame) Filter(predicate *expr.Expr) *LazyFrame {
	if f.err != nil {
		return f
	}
	return f.derive(f.p.Filter(f.root, predicate))
}

// Select projects the frame to one column per expression.
func (f *LazyFrame) Select(exprs ...*expr.Expr) *LazyFrame {
	if f.err != nil {
		return f
	}
	return f.derive(f.p.Project(f.root, exprs))
}

// WithColumn appends a computed column, or replaces an existing column
// of the same name in place.
func (f *LazyFrame) WithColumn(name string, e *expr.Expr) *LazyFrame {
	if f.err != nil {
		return f
	}
	schema := f.p.Schema(f.root)
	exprs := make([]*expr.Expr, 0, schema.Len()+1)
	replaced := false
	for _, existing := range schema.Names() {
		if existing == name {
			exprs = append(exprs, e.As(name))
			replaced = true
			continue
		}
		exprs = append(exprs, expr.Col(existing))
	}
	if !replaced {
		exprs = append(exprs, e.As(name))
	}
	return f.derive(f.p.Project(f.root, exprs))
}

// GroupBy starts a grouped aggregation over the given key columns. An
// empty key list aggregates the whole frame into a single row.
func (f *LazyFrame) GroupBy(keys ...string) *GroupedFrame {
	return &GroupedFrame{f: f, keys: keys}
}

// GroupedFrame is the intermediate state between GroupBy and Agg.
type GroupedFrame struct {
	f    *LazyFrame
	keys []string
}

// Agg completes the aggregation. The result schema is the group keys
// followed by one column per aggregate expression; groups appear in
// first-seen order.
func (g *GroupedFrame) Agg(aggs ...*expr.Expr) *LazyFrame {
	if g.f.err != nil {
		return g.f
	}
	return g.f.derive(g.f.p.Aggregate(g.f.root, g.keys, aggs))
}

// Join hash-joins two frames on equal-length key lists. The other
// frame's plan is grafted into this frame's arena, so a subplan both
// sides share (the same scan, the same filtered prefix) executes once.
func (f *LazyFrame) Join(other *LazyFrame, leftKeys, rightKeys []string, how JoinType) *LazyFrame {
	if f.err != nil {
		return f
	}
	if other.err != nil {
		return f.errFrame(other.err)
	}
	rightRoot, err := f.p.Graft(other.p, other.root)
	if err != nil {
		return f.errFrame(fmt.Errorf("join: %w", err))
	}
	return f.derive(f.p.Join(f.root, rightRoot, leftKeys, rightKeys, how))
}

// Sort orders rows by the key columns. descending may be nil (all
// ascending) or one flag per key. The sort is stable and nulls order
// before all values.
func (f *LazyFrame) Sort(keys []string, descending []bool) *LazyFrame {
	if f.err != nil {
		return f
	}
	return f.derive(f.p.Sort(f.root, keys, descending))
}

// Limit keeps the first n rows.
func (f *LazyFrame) Limit(n int64) *LazyFrame {
	if f.err != nil {
		return f
	}
	return f.derive(f.p.Limit(f.root, n))
}

// Distinct drops duplicate rows. With subset columns, the first row
// per distinct subset value is kept; with none, whole rows compare.
func (f *LazyFrame) Distinct(subset ...string) *LazyFrame {
	if f.err != nil {
		return f
	}
	return f.derive(f.p.Distinct(f.root, subset))
}

// Collect optimizes and executes the plan, materializing the full
// result. Equivalent to CollectWith with default options.
func (f *LazyFrame) Collect(ctx context.Context) (*column.Table, error) {
	return f.CollectWith(ctx, exec.Options{})
}

// CollectWith optimizes and executes the plan with explicit execution
// options.
func (f *LazyFrame) CollectWith(ctx context.Context, opts exec.Options) (*column.Table, error) {
	if f.err != nil {
		return nil, f.err
	}
	root, err := optimizer.Optimize(f.p, f.root)
	if err != nil {
		return nil, err
	}
	return exec.Run(ctx, f.p, root, opts)
}

// Explain renders the logical plan before and after optimization.
func (f *LazyFrame) Explain() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	logical := f.p.Describe(f.root)
	root, err := optimizer.Optimize(f.p, f.root)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("logical plan:\n%soptimized plan:\n%s", logical, f.p.Describe(root)), nil
}
