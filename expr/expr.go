// Package expr represents scalar and aggregate computations over
// columns as composable expression trees, and evaluates them
// vectorized, one whole column at a time, against a chunk.
//
// Expressions are pure: evaluating the same expression against the
// same chunk always produces a bit-identical output column. Null
// handling follows SQL conventions: element-wise operations propagate
// nulls, comparisons and boolean operators use three-valued logic, and
// Coalesce defines its own null handling.
//
// Example usage:
//
//	adults := expr.Col("age").Ge(expr.Lit(18))
//	total := expr.Sum(expr.Col("price").Mul(expr.Col("qty"))).As("total")
package expr

import (
	"fmt"
	"strings"

	"github.com/vegasq/lazyframe/column"
)

// Kind discriminates the expression tree variants.
type Kind int

const (
	KindColumn Kind = iota
	KindLiteral
	KindUnary
	KindBinary
	KindCast
	KindCoalesce
	KindAlias
	KindAgg
)

// Op identifies a unary, binary, or aggregate operation.
type Op int

const (
	OpNone Op = iota

	// Unary
	OpNot
	OpNeg
	OpIsNull
	OpIsNotNull

	// Binary arithmetic
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod

	// Binary comparison
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe

	// Binary boolean
	OpAnd
	OpOr

	// Aggregates
	AggCount
	AggCountAll
	AggSum
	AggMin
	AggMax
	AggMean
	AggFirst
)

// opNames maps ops to their rendered form.
var opNames = map[Op]string{
	OpNot:       "not",
	OpNeg:       "-",
	OpIsNull:    "is_null",
	OpIsNotNull: "is_not_null",
	OpAdd:       "+",
	OpSub:       "-",
	OpMul:       "*",
	OpDiv:       "/",
	OpMod:       "%",
	OpEq:        "==",
	OpNe:        "!=",
	OpLt:        "<",
	OpLe:        "<=",
	OpGt:        ">",
	OpGe:        ">=",
	OpAnd:       "and",
	OpOr:        "or",
	AggCount:    "count",
	AggCountAll: "count",
	AggSum:      "sum",
	AggMin:      "min",
	AggMax:      "max",
	AggMean:     "mean",
	AggFirst:    "first",
}

// String returns the rendered operator symbol or function name.
func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Expr is a node of an expression tree. The Kind field selects the
// variant; the remaining fields are variant-specific parameters.
// Expressions are immutable once built and free of side effects, so
// they can be shared between plans and rewritten by the optimizer.
type Expr struct {
	Kind     Kind
	Op       Op                // unary/binary/aggregate operation
	Name     string            // column name (KindColumn) or alias (KindAlias)
	Value    interface{}       // literal value; nil means a typed null
	DataType column.DataType   // literal type or cast target
	Children []*Expr
}

// Col references a column of the input chunk by name.
func Col(name string) *Expr {
	return &Expr{Kind: KindColumn, Name: name}
}

// Lit builds a literal from a Go value. Supported types: bool, int,
// int32, int64, float32, float64, string. Lit panics on other types;
// use Null for typed null literals.
func Lit(v interface{}) *Expr {
	switch val := v.(type) {
	case bool:
		return &Expr{Kind: KindLiteral, Value: val, DataType: column.Bool}
	case int:
		return &Expr{Kind: KindLiteral, Value: int64(val), DataType: column.Int64}
	case int32:
		return &Expr{Kind: KindLiteral, Value: int64(val), DataType: column.Int64}
	case int64:
		return &Expr{Kind: KindLiteral, Value: val, DataType: column.Int64}
	case float32:
		return &Expr{Kind: KindLiteral, Value: float64(val), DataType: column.Float64}
	case float64:
		return &Expr{Kind: KindLiteral, Value: val, DataType: column.Float64}
	case string:
		return &Expr{Kind: KindLiteral, Value: val, DataType: column.String}
	default:
		panic(fmt.Sprintf("expr.Lit: unsupported literal type %T", v))
	}
}

// Null builds a typed null literal.
func Null(t column.DataType) *Expr {
	return &Expr{Kind: KindLiteral, Value: nil, DataType: t}
}

func unary(op Op, in *Expr) *Expr {
	return &Expr{Kind: KindUnary, Op: op, Children: []*Expr{in}}
}

func binary(op Op, left, right *Expr) *Expr {
	return &Expr{Kind: KindBinary, Op: op, Children: []*Expr{left, right}}
}

// Add returns e + other.
func (e *Expr) Add(other *Expr) *Expr { return binary(OpAdd, e, other) }

// Sub returns e - other.
func (e *Expr) Sub(other *Expr) *Expr { return binary(OpSub, e, other) }

// Mul returns e * other.
func (e *Expr) Mul(other *Expr) *Expr { return binary(OpMul, e, other) }

// Div returns e / other. Division by zero is a compute error.
func (e *Expr) Div(other *Expr) *Expr { return binary(OpDiv, e, other) }

// Mod returns e % other (integers only).
func (e *Expr) Mod(other *Expr) *Expr { return binary(OpMod, e, other) }

// Eq returns e == other. Comparing against null yields null.
func (e *Expr) Eq(other *Expr) *Expr { return binary(OpEq, e, other) }

// Ne returns e != other.
func (e *Expr) Ne(other *Expr) *Expr { return binary(OpNe, e, other) }

// Lt returns e < other.
func (e *Expr) Lt(other *Expr) *Expr { return binary(OpLt, e, other) }

// Le returns e <= other.
func (e *Expr) Le(other *Expr) *Expr { return binary(OpLe, e, other) }

// Gt returns e > other.
func (e *Expr) Gt(other *Expr) *Expr { return binary(OpGt, e, other) }

// Ge returns e >= other.
func (e *Expr) Ge(other *Expr) *Expr { return binary(OpGe, e, other) }

// And returns e AND other with three-valued logic.
func (e *Expr) And(other *Expr) *Expr { return binary(OpAnd, e, other) }

// Or returns e OR other with three-valued logic.
func (e *Expr) Or(other *Expr) *Expr { return binary(OpOr, e, other) }

// Not returns NOT e with three-valued logic.
func (e *Expr) Not() *Expr { return unary(OpNot, e) }

// Neg returns -e.
func (e *Expr) Neg() *Expr { return unary(OpNeg, e) }

// IsNull returns a boolean expression that is true where e is null.
// The result is never null.
func (e *Expr) IsNull() *Expr { return unary(OpIsNull, e) }

// IsNotNull returns a boolean expression that is true where e holds a
// value. The result is never null.
func (e *Expr) IsNotNull() *Expr { return unary(OpIsNotNull, e) }

// Cast converts e to the target type. Invalid conversions surface as
// compute errors at evaluation time.
func (e *Expr) Cast(to column.DataType) *Expr {
	return &Expr{Kind: KindCast, DataType: to, Children: []*Expr{e}}
}

// As names the expression's output column.
func (e *Expr) As(name string) *Expr {
	return &Expr{Kind: KindAlias, Name: name, Children: []*Expr{e}}
}

// Coalesce returns the first non-null value among the inputs,
// element-wise.
func Coalesce(inputs ...*Expr) *Expr {
	return &Expr{Kind: KindCoalesce, Children: inputs}
}

func aggregate(fn Op, in *Expr) *Expr {
	children := []*Expr{}
	if in != nil {
		children = append(children, in)
	}
	return &Expr{Kind: KindAgg, Op: fn, Children: children}
}

// Count counts the non-null values of the input.
func Count(in *Expr) *Expr { return aggregate(AggCount, in) }

// CountAll counts rows, like SQL's COUNT(*).
func CountAll() *Expr { return aggregate(AggCountAll, nil) }

// Sum sums the non-null values of the input.
func Sum(in *Expr) *Expr { return aggregate(AggSum, in) }

// Min returns the smallest non-null value of the input.
func Min(in *Expr) *Expr { return aggregate(AggMin, in) }

// Max returns the largest non-null value of the input.
func Max(in *Expr) *Expr { return aggregate(AggMax, in) }

// Mean returns the arithmetic mean of the non-null values of the
// input. The result is always floating-point.
func Mean(in *Expr) *Expr { return aggregate(AggMean, in) }

// First returns the first value of the input in encounter order,
// including a leading null.
func First(in *Expr) *Expr { return aggregate(AggFirst, in) }

// String renders the expression canonically. Two expressions render
// identically exactly when they are structurally identical, which the
// planner relies on for subplan sharing.
func (e *Expr) String() string {
	switch e.Kind {
	case KindColumn:
		return fmt.Sprintf("col(%s)", e.Name)
	case KindLiteral:
		if e.Value == nil {
			return fmt.Sprintf("null:%s", e.DataType)
		}
		if s, ok := e.Value.(string); ok {
			return fmt.Sprintf("%q", s)
		}
		return fmt.Sprintf("%v:%s", e.Value, e.DataType)
	case KindUnary:
		if e.Op == OpNeg {
			return fmt.Sprintf("(-%s)", e.Children[0])
		}
		return fmt.Sprintf("%s(%s)", e.Op, e.Children[0])
	case KindBinary:
		return fmt.Sprintf("(%s %s %s)", e.Children[0], e.Op, e.Children[1])
	case KindCast:
		return fmt.Sprintf("cast(%s as %s)", e.Children[0], e.DataType)
	case KindCoalesce:
		parts := make([]string, len(e.Children))
		for i, c := range e.Children {
			parts[i] = c.String()
		}
		return fmt.Sprintf("coalesce(%s)", strings.Join(parts, ", "))
	case KindAlias:
		return fmt.Sprintf("(%s as %s)", e.Children[0], e.Name)
	case KindAgg:
		if e.Op == AggCountAll {
			return "count(*)"
		}
		return fmt.Sprintf("%s(%s)", e.Op, e.Children[0])
	default:
		return fmt.Sprintf("expr(kind=%d)", int(e.Kind))
	}
}

// Equal reports whether two expressions are structurally identical.
func Equal(a, b *Expr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}

// OutputName returns the name the expression's result column carries:
// an explicit alias wins, a column reference keeps its name, an
// aggregate keeps its input's name, and count(*) is named "count".
func (e *Expr) OutputName() string {
	switch e.Kind {
	case KindAlias:
		return e.Name
	case KindColumn:
		return e.Name
	case KindAgg:
		if e.Op == AggCountAll {
			return "count"
		}
		return e.Children[0].OutputName()
	case KindLiteral:
		return "literal"
	default:
		if len(e.Children) > 0 {
			return e.Children[0].OutputName()
		}
		return "literal"
	}
}

// ColumnsUsed returns the distinct column names the expression
// references, in first-appearance order.
func ColumnsUsed(e *Expr) []string {
	var names []string
	seen := map[string]bool{}
	var walk func(*Expr)
	walk = func(x *Expr) {
		if x == nil {
			return
		}
		if x.Kind == KindColumn && !seen[x.Name] {
			seen[x.Name] = true
			names = append(names, x.Name)
		}
		for _, c := range x.Children {
			walk(c)
		}
	}
	walk(e)
	return names
}

// HasAggregate reports whether the tree contains an aggregate node.
func HasAggregate(e *Expr) bool {
	if e == nil {
		return false
	}
	if e.Kind == KindAgg {
		return true
	}
	for _, c := range e.Children {
		if HasAggregate(c) {
			return true
		}
	}
	return false
}

// UnwrapAggregate unwraps an aggregate expression, looking through a
// single outer alias. It returns the aggregate function, its input
// (nil for count(*)), and the output column name.
func UnwrapAggregate(e *Expr) (fn Op, input *Expr, name string, ok bool) {
	name = e.OutputName()
	if e.Kind == KindAlias {
		e = e.Children[0]
	}
	if e.Kind != KindAgg {
		return OpNone, nil, "", false
	}
	if len(e.Children) > 0 {
		input = e.Children[0]
	}
	return e.Op, input, name, true
}

// SplitConjunction flattens a tree of AND nodes into its conjuncts.
// Non-AND expressions are returned as a single-element slice.
func SplitConjunction(e *Expr) []*Expr {
	if e.Kind == KindBinary && e.Op == OpAnd {
		return append(SplitConjunction(e.Children[0]), SplitConjunction(e.Children[1])...)
	}
	return []*Expr{e}
}

// Conjoin combines predicates into a single AND tree. It returns nil
// for an empty input.
func Conjoin(preds []*Expr) *Expr {
	var out *Expr
	for _, p := range preds {
		if out == nil {
			out = p
		} else {
			out = out.And(p)
		}
	}
	return out
}

// SubstituteColumns returns a copy of the expression with column
// references replaced according to the mapping. Columns without a
// mapping entry are kept as-is.
func SubstituteColumns(e *Expr, mapping map[string]*Expr) *Expr {
	if e == nil {
		return nil
	}
	if e.Kind == KindColumn {
		if repl, ok := mapping[e.Name]; ok {
			return repl
		}
		return e
	}
	if len(e.Children) == 0 {
		return e
	}
	children := make([]*Expr, len(e.Children))
	changed := false
	for i, c := range e.Children {
		children[i] = SubstituteColumns(c, mapping)
		if children[i] != c {
			changed = true
		}
	}
	if !changed {
		return e
	}
	out := *e
	out.Children = children
	return &out
}
