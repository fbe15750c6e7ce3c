package plan

import (
	"fmt"

	"github.com/vegasq/lazyframe/column"
	"github.com/vegasq/lazyframe/expr"
	"github.com/vegasq/lazyframe/qerror"
	"github.com/vegasq/lazyframe/source"
)

// Scan adds a scan over all columns of the source.
func (p *Plan) Scan(src source.Source) (NodeID, error) {
	return p.ScanWith(src, nil, nil)
}

// ScanWith adds a scan restricted to the given columns (nil means all)
// with an optional pushed-down predicate. The predicate may only
// reference selected columns.
func (p *Plan) ScanWith(src source.Source, columns []string, pushed *expr.Expr) (NodeID, error) {
	srcSchema, err := src.Schema()
	if err != nil {
		return Invalid, fmt.Errorf("scan: %w", err)
	}
	outSchema := srcSchema
	if columns != nil {
		outSchema, err = srcSchema.Select(columns)
		if err != nil {
			return Invalid, &qerror.SchemaError{Op: "scan", Detail: err.Error()}
		}
	}
	if pushed != nil {
		t, err := expr.TypeOf(pushed, outSchema)
		if err != nil {
			return Invalid, fmt.Errorf("scan: %w", err)
		}
		if t != column.Bool {
			return Invalid, &qerror.SchemaError{Op: "scan", Detail: fmt.Sprintf("pushed predicate must be bool, got %s", t)}
		}
	}
	return p.intern(Node{
		Kind:    KindScan,
		Input:   Invalid,
		Right:   Invalid,
		Source:  src,
		Columns: columns,
		Pushed:  pushed,
		schema:  outSchema,
	}), nil
}

// Filter adds a filter keeping rows where the predicate is true.
// Rows where the predicate is false or null are dropped.
func (p *Plan) Filter(input NodeID, predicate *expr.Expr) (NodeID, error) {
	child := p.Schema(input)
	if expr.HasAggregate(predicate) {
		return Invalid, &qerror.SchemaError{Op: "filter", Detail: "predicate cannot contain aggregate expressions"}
	}
	t, err := expr.TypeOf(predicate, child)
	if err != nil {
		return Invalid, fmt.Errorf("filter: %w", err)
	}
	if t != column.Bool {
		return Invalid, &qerror.SchemaError{Op: "filter", Detail: fmt.Sprintf("predicate must be bool, got %s", t)}
	}
	return p.intern(Node{
		Kind:      KindFilter,
		Input:     input,
		Right:     Invalid,
		Predicate: predicate,
		schema:    child,
	}), nil
}

// Project adds a projection producing one column per expression. The
// declared output schema is the expression list's output names with
// statically inferred types.
func (p *Plan) Project(input NodeID, exprs []*expr.Expr) (NodeID, error) {
	if len(exprs) == 0 {
		return Invalid, &qerror.SchemaError{Op: "select", Detail: "projection requires at least one expression"}
	}
	child := p.Schema(input)
	fields := make([]column.Field, len(exprs))
	for i, e := range exprs {
		if expr.HasAggregate(e) {
			return Invalid, &qerror.SchemaError{
				Op:     "select",
				Detail: fmt.Sprintf("expression %s contains an aggregate; use group_by + agg", e),
			}
		}
		t, err := expr.TypeOf(e, child)
		if err != nil {
			return Invalid, fmt.Errorf("select: %w", err)
		}
		fields[i] = column.Field{Name: e.OutputName(), Type: t}
	}
	schema, err := column.NewSchema(fields...)
	if err != nil {
		return Invalid, &qerror.SchemaError{Op: "select", Detail: err.Error()}
	}
	return p.intern(Node{
		Kind:   KindProject,
		Input:  input,
		Right:  Invalid,
		Exprs:  exprs,
		schema: schema,
	}), nil
}

// Aggregate adds a grouped aggregation. The output schema is the group
// keys followed by one column per aggregate expression, typed by each
// aggregate function's result-type rule.
func (p *Plan) Aggregate(input NodeID, keys []string, aggs []*expr.Expr) (NodeID, error) {
	child := p.Schema(input)
	if len(keys) == 0 && len(aggs) == 0 {
		return Invalid, &qerror.SchemaError{Op: "aggregate", Detail: "aggregation requires group keys or aggregate expressions"}
	}
	fields := make([]column.Field, 0, len(keys)+len(aggs))
	for _, k := range keys {
		f, _, ok := child.Lookup(k)
		if !ok {
			return Invalid, &qerror.SchemaError{Op: "aggregate", Column: k, Detail: "group key not found"}
		}
		fields = append(fields, f)
	}
	for _, a := range aggs {
		if _, _, _, ok := expr.UnwrapAggregate(a); !ok {
			return Invalid, &qerror.SchemaError{
				Op:     "aggregate",
				Detail: fmt.Sprintf("expression %s is not an aggregate", a),
			}
		}
		t, err := expr.TypeOf(a, child)
		if err != nil {
			return Invalid, fmt.Errorf("aggregate: %w", err)
		}
		fields = append(fields, column.Field{Name: a.OutputName(), Type: t})
	}
	schema, err := column.NewSchema(fields...)
	if err != nil {
		return Invalid, &qerror.SchemaError{Op: "aggregate", Detail: err.Error()}
	}
	return p.intern(Node{
		Kind:   KindAggregate,
		Input:  input,
		Right:  Invalid,
		Keys:   append([]string(nil), keys...),
		Aggs:   aggs,
		schema: schema,
	}), nil
}

// Join adds a hash join between two subplans on equal-length key
// lists. Key pairs must have identical types; null keys never match.
// The output schema is the left fields followed by the right fields,
// except that a right key with the same name as its left counterpart
// merges into a single column. Any other name collision is an error.
func (p *Plan) Join(left, right NodeID, leftKeys, rightKeys []string, jt JoinType) (NodeID, error) {
	if len(leftKeys) == 0 || len(leftKeys) != len(rightKeys) {
		return Invalid, &qerror.SchemaError{Op: "join", Detail: "join requires equal, non-empty key lists"}
	}
	ls, rs := p.Schema(left), p.Schema(right)

	merged := make(map[string]bool)
	for i := range leftKeys {
		lf, _, ok := ls.Lookup(leftKeys[i])
		if !ok {
			return Invalid, &qerror.SchemaError{Op: "join", Column: leftKeys[i], Detail: "left key not found"}
		}
		rf, _, ok := rs.Lookup(rightKeys[i])
		if !ok {
			return Invalid, &qerror.SchemaError{Op: "join", Column: rightKeys[i], Detail: "right key not found"}
		}
		if lf.Type != rf.Type {
			return Invalid, &qerror.SchemaError{
				Op:     "join",
				Column: leftKeys[i],
				Detail: fmt.Sprintf("key types differ: %s vs %s", lf.Type, rf.Type),
			}
		}
		if leftKeys[i] == rightKeys[i] {
			merged[rightKeys[i]] = true
		}
	}

	fields := ls.Fields()
	for _, f := range rs.Fields() {
		if merged[f.Name] {
			continue
		}
		if _, _, ok := ls.Lookup(f.Name); ok {
			return Invalid, &qerror.SchemaError{
				Op:     "join",
				Column: f.Name,
				Detail: "column exists on both sides; rename before joining",
			}
		}
		fields = append(fields, f)
	}
	schema, err := column.NewSchema(fields...)
	if err != nil {
		return Invalid, &qerror.SchemaError{Op: "join", Detail: err.Error()}
	}
	return p.intern(Node{
		Kind:      KindJoin,
		Input:     left,
		Right:     right,
		LeftKeys:  append([]string(nil), leftKeys...),
		RightKeys: append([]string(nil), rightKeys...),
		JoinType:  jt,
		schema:    schema,
	}), nil
}

// Sort adds a stable multi-key sort. descending may be nil (all
// ascending) or one flag per key.
func (p *Plan) Sort(input NodeID, keys []string, descending []bool) (NodeID, error) {
	child := p.Schema(input)
	if len(keys) == 0 {
		return Invalid, &qerror.SchemaError{Op: "sort", Detail: "sort requires at least one key"}
	}
	if descending == nil {
		descending = make([]bool, len(keys))
	}
	if len(descending) != len(keys) {
		return Invalid, &qerror.SchemaError{Op: "sort", Detail: "one direction per key required"}
	}
	for _, k := range keys {
		if _, _, ok := child.Lookup(k); !ok {
			return Invalid, &qerror.SchemaError{Op: "sort", Column: k, Detail: "sort key not found"}
		}
	}
	return p.intern(Node{
		Kind:       KindSort,
		Input:      input,
		Right:      Invalid,
		SortKeys:   append([]string(nil), keys...),
		Descending: append([]bool(nil), descending...),
		schema:     child,
	}), nil
}

// Limit adds a row limit.
func (p *Plan) Limit(input NodeID, n int64) (NodeID, error) {
	if n < 0 {
		return Invalid, fmt.Errorf("limit: count must be non-negative, got %d", n)
	}
	return p.intern(Node{
		Kind:   KindLimit,
		Input:  input,
		Right:  Invalid,
		Limit:  n,
		schema: p.Schema(input),
	}), nil
}

// Distinct adds row de-duplication. With a subset, the first row per
// distinct subset value is kept; with no subset, whole rows are
// compared.
func (p *Plan) Distinct(input NodeID, subset []string) (NodeID, error) {
	child := p.Schema(input)
	for _, k := range subset {
		if _, _, ok := child.Lookup(k); !ok {
			return Invalid, &qerror.SchemaError{Op: "distinct", Column: k, Detail: "column not found"}
		}
	}
	return p.intern(Node{
		Kind:   KindDistinct,
		Input:  input,
		Right:  Invalid,
		Subset: append([]string(nil), subset...),
		schema: child,
	}), nil
}
