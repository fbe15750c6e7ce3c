package expr

import (
	"fmt"
	"math"
	"strconv"

	"github.com/vegasq/lazyframe/column"
	"github.com/vegasq/lazyframe/qerror"
)

// Eval evaluates the expression against a chunk, producing one output
// column of the same length. Evaluation is vectorized: each node
// computes a whole column before its parent consumes it.
//
// Aggregate expressions cannot be evaluated element-wise; they are
// folded by the aggregation operator instead, and Eval rejects them.
func Eval(e *Expr, chunk *column.Chunk) (*column.Column, error) {
	col, err := eval(e, chunk)
	if err != nil {
		return nil, err
	}
	if name := e.OutputName(); col.Name() != name {
		col = col.Rename(name)
	}
	return col, nil
}

func eval(e *Expr, chunk *column.Chunk) (*column.Column, error) {
	switch e.Kind {
	case KindColumn:
		col, ok := chunk.ColumnByName(e.Name)
		if !ok {
			return nil, &qerror.SchemaError{Op: "evaluate", Column: e.Name, Detail: "column not found in chunk"}
		}
		return col, nil

	case KindLiteral:
		return broadcastLiteral(e, chunk.NumRows()), nil

	case KindUnary:
		in, err := eval(e.Children[0], chunk)
		if err != nil {
			return nil, err
		}
		return evalUnary(e, in)

	case KindBinary:
		left, err := eval(e.Children[0], chunk)
		if err != nil {
			return nil, err
		}
		right, err := eval(e.Children[1], chunk)
		if err != nil {
			return nil, err
		}
		return evalBinary(e, left, right)

	case KindCast:
		in, err := eval(e.Children[0], chunk)
		if err != nil {
			return nil, err
		}
		return evalCast(e, in)

	case KindCoalesce:
		return evalCoalesce(e, chunk)

	case KindAlias:
		return eval(e.Children[0], chunk)

	case KindAgg:
		return nil, &qerror.ComputeError{
			Op:     "evaluate",
			Expr:   e.String(),
			Detail: "aggregate expressions cannot be evaluated element-wise",
			Row:    -1,
		}

	default:
		return nil, &qerror.ComputeError{
			Op:     "evaluate",
			Expr:   e.String(),
			Detail: "unknown expression kind",
			Row:    -1,
		}
	}
}

// broadcastLiteral materializes a literal as a column of n identical
// rows.
func broadcastLiteral(e *Expr, n int) *column.Column {
	b := column.NewBuilder(e.OutputName(), e.DataType, n)
	for i := 0; i < n; i++ {
		if e.Value == nil {
			b.AppendNull()
			continue
		}
		switch e.DataType {
		case column.Bool:
			b.AppendBool(e.Value.(bool))
		case column.Int64:
			b.AppendInt64(e.Value.(int64))
		case column.Float64:
			b.AppendFloat64(e.Value.(float64))
		case column.String:
			b.AppendString(e.Value.(string))
		}
	}
	return b.Finish()
}

func evalUnary(e *Expr, in *column.Column) (*column.Column, error) {
	n := in.Len()
	switch e.Op {
	case OpNot:
		b := column.NewBuilder(e.OutputName(), column.Bool, n)
		for i := 0; i < n; i++ {
			if in.IsNull(i) {
				b.AppendNull()
			} else {
				b.AppendBool(!in.Bool(i))
			}
		}
		return b.Finish(), nil

	case OpNeg:
		b := column.NewBuilder(e.OutputName(), in.Type(), n)
		for i := 0; i < n; i++ {
			if in.IsNull(i) {
				b.AppendNull()
				continue
			}
			if in.Type() == column.Float64 {
				b.AppendFloat64(-in.Float64(i))
				continue
			}
			v := in.Int64(i)
			if v == math.MinInt64 {
				return nil, computeError(e, "negate", i, "integer overflow")
			}
			b.AppendInt64(-v)
		}
		return b.Finish(), nil

	case OpIsNull, OpIsNotNull:
		want := e.Op == OpIsNull
		b := column.NewBuilder(e.OutputName(), column.Bool, n)
		for i := 0; i < n; i++ {
			b.AppendBool(in.IsNull(i) == want)
		}
		return b.Finish(), nil
	}
	return nil, computeError(e, "evaluate", -1, "unknown unary operator")
}

func evalBinary(e *Expr, left, right *column.Column) (*column.Column, error) {
	switch e.Op {
	case OpAdd, OpSub, OpMul, OpDiv, OpMod:
		return evalArithmetic(e, left, right)
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return evalComparison(e, left, right)
	case OpAnd, OpOr:
		return evalBoolean(e, left, right)
	}
	return nil, computeError(e, "evaluate", -1, "unknown binary operator")
}

// evalArithmetic runs the integer kernel when both inputs are int64,
// otherwise promotes to float64. Integer arithmetic is checked:
// overflow and division by zero abort the query as compute errors.
func evalArithmetic(e *Expr, left, right *column.Column) (*column.Column, error) {
	n := left.Len()
	if left.Type() == column.Int64 && right.Type() == column.Int64 {
		b := column.NewBuilder(e.OutputName(), column.Int64, n)
		for i := 0; i < n; i++ {
			if left.IsNull(i) || right.IsNull(i) {
				b.AppendNull()
				continue
			}
			v, err := intArith(e, left.Int64(i), right.Int64(i), i)
			if err != nil {
				return nil, err
			}
			b.AppendInt64(v)
		}
		return b.Finish(), nil
	}

	b := column.NewBuilder(e.OutputName(), column.Float64, n)
	for i := 0; i < n; i++ {
		if left.IsNull(i) || right.IsNull(i) {
			b.AppendNull()
			continue
		}
		x, y := numericAt(left, i), numericAt(right, i)
		switch e.Op {
		case OpAdd:
			b.AppendFloat64(x + y)
		case OpSub:
			b.AppendFloat64(x - y)
		case OpMul:
			b.AppendFloat64(x * y)
		case OpDiv:
			if y == 0 {
				return nil, computeError(e, "divide", i, "division by zero")
			}
			b.AppendFloat64(x / y)
		case OpMod:
			return nil, computeError(e, "modulo", i, "modulo requires integer operands")
		}
	}
	return b.Finish(), nil
}

func intArith(e *Expr, a, b int64, row int) (int64, error) {
	switch e.Op {
	case OpAdd:
		if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
			return 0, computeError(e, "add", row, "integer overflow")
		}
		return a + b, nil
	case OpSub:
		if (b < 0 && a > math.MaxInt64+b) || (b > 0 && a < math.MinInt64+b) {
			return 0, computeError(e, "subtract", row, "integer overflow")
		}
		return a - b, nil
	case OpMul:
		if a != 0 && b != 0 {
			if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
				return 0, computeError(e, "multiply", row, "integer overflow")
			}
			r := a * b
			if r/a != b {
				return 0, computeError(e, "multiply", row, "integer overflow")
			}
			return r, nil
		}
		return 0, nil
	case OpDiv:
		if b == 0 {
			return 0, computeError(e, "divide", row, "division by zero")
		}
		if a == math.MinInt64 && b == -1 {
			return 0, computeError(e, "divide", row, "integer overflow")
		}
		return a / b, nil
	case OpMod:
		if b == 0 {
			return 0, computeError(e, "modulo", row, "modulo by zero")
		}
		if a == math.MinInt64 && b == -1 {
			return 0, nil
		}
		return a % b, nil
	}
	return 0, computeError(e, "evaluate", row, "unknown arithmetic operator")
}

// evalComparison compares element-wise with SQL null semantics: any
// comparison against null yields null, never true or false.
func evalComparison(e *Expr, left, right *column.Column) (*column.Column, error) {
	n := left.Len()
	b := column.NewBuilder(e.OutputName(), column.Bool, n)
	numeric := left.Type().IsNumeric() && right.Type().IsNumeric()

	for i := 0; i < n; i++ {
		if left.IsNull(i) || right.IsNull(i) {
			b.AppendNull()
			continue
		}
		var cmp int
		switch {
		case numeric:
			x, y := numericAt(left, i), numericAt(right, i)
			switch {
			case x < y:
				cmp = -1
			case x > y:
				cmp = 1
			}
		case left.Type() == column.String:
			x, y := left.String(i), right.String(i)
			switch {
			case x < y:
				cmp = -1
			case x > y:
				cmp = 1
			}
		case left.Type() == column.Bool:
			x, y := left.Bool(i), right.Bool(i)
			if x != y {
				cmp = 1
			}
			// Ordering of bools is rejected at type-check time, so
			// only equality matters here.
		}
		switch e.Op {
		case OpEq:
			b.AppendBool(cmp == 0)
		case OpNe:
			b.AppendBool(cmp != 0)
		case OpLt:
			b.AppendBool(cmp < 0)
		case OpLe:
			b.AppendBool(cmp <= 0)
		case OpGt:
			b.AppendBool(cmp > 0)
		case OpGe:
			b.AppendBool(cmp >= 0)
		}
	}
	return b.Finish(), nil
}

// evalBoolean implements three-valued AND/OR. Both sides are fully
// evaluated; there is no short-circuiting, which keeps evaluation
// deterministic and vectorized.
func evalBoolean(e *Expr, left, right *column.Column) (*column.Column, error) {
	n := left.Len()
	b := column.NewBuilder(e.OutputName(), column.Bool, n)
	for i := 0; i < n; i++ {
		lNull, rNull := left.IsNull(i), right.IsNull(i)
		var lVal, rVal bool
		if !lNull {
			lVal = left.Bool(i)
		}
		if !rNull {
			rVal = right.Bool(i)
		}
		if e.Op == OpAnd {
			switch {
			case !lNull && !lVal, !rNull && !rVal:
				b.AppendBool(false)
			case lNull || rNull:
				b.AppendNull()
			default:
				b.AppendBool(true)
			}
		} else {
			switch {
			case !lNull && lVal, !rNull && rVal:
				b.AppendBool(true)
			case lNull || rNull:
				b.AppendNull()
			default:
				b.AppendBool(false)
			}
		}
	}
	return b.Finish(), nil
}

func evalCast(e *Expr, in *column.Column) (*column.Column, error) {
	n := in.Len()
	to := e.DataType
	if in.Type() == to {
		return in, nil
	}
	b := column.NewBuilder(e.OutputName(), to, n)
	for i := 0; i < n; i++ {
		if in.IsNull(i) {
			b.AppendNull()
			continue
		}
		switch {
		case in.Type() == column.Int64 && to == column.Float64:
			b.AppendFloat64(float64(in.Int64(i)))
		case in.Type() == column.Float64 && to == column.Int64:
			v := in.Float64(i)
			if math.IsNaN(v) || math.IsInf(v, 0) || v < math.MinInt64 || v >= math.MaxInt64 {
				return nil, computeError(e, "cast", i, fmt.Sprintf("cannot cast %v to int64", v))
			}
			b.AppendInt64(int64(v))
		case to == column.String:
			switch in.Type() {
			case column.Int64:
				b.AppendString(strconv.FormatInt(in.Int64(i), 10))
			case column.Float64:
				b.AppendString(strconv.FormatFloat(in.Float64(i), 'g', -1, 64))
			case column.Bool:
				b.AppendString(strconv.FormatBool(in.Bool(i)))
			}
		case in.Type() == column.String:
			s := in.String(i)
			switch to {
			case column.Int64:
				v, err := strconv.ParseInt(s, 10, 64)
				if err != nil {
					return nil, computeError(e, "cast", i, fmt.Sprintf("invalid int64 %q", s))
				}
				b.AppendInt64(v)
			case column.Float64:
				v, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return nil, computeError(e, "cast", i, fmt.Sprintf("invalid float64 %q", s))
				}
				b.AppendFloat64(v)
			case column.Bool:
				v, err := strconv.ParseBool(s)
				if err != nil {
					return nil, computeError(e, "cast", i, fmt.Sprintf("invalid bool %q", s))
				}
				b.AppendBool(v)
			}
		default:
			return nil, computeError(e, "cast", i, fmt.Sprintf("unsupported cast %s to %s", in.Type(), to))
		}
	}
	return b.Finish(), nil
}

// evalCoalesce picks the first non-null input element-wise. This is
// the one operation that defines its own null handling instead of
// propagating.
func evalCoalesce(e *Expr, chunk *column.Chunk) (*column.Column, error) {
	inputs := make([]*column.Column, len(e.Children))
	outType := column.DataType(-1)
	for i, c := range e.Children {
		col, err := eval(c, chunk)
		if err != nil {
			return nil, err
		}
		inputs[i] = col
		switch {
		case outType == column.DataType(-1):
			outType = col.Type()
		case outType == col.Type():
		case outType.IsNumeric() && col.Type().IsNumeric():
			outType = column.Float64
		default:
			return nil, computeError(e, "coalesce", -1,
				fmt.Sprintf("inputs mix %s and %s", outType, col.Type()))
		}
	}

	n := chunk.NumRows()
	b := column.NewBuilder(e.OutputName(), outType, n)
	for i := 0; i < n; i++ {
		appended := false
		for _, col := range inputs {
			if col.IsNull(i) {
				continue
			}
			if outType == column.Float64 && col.Type() == column.Int64 {
				b.AppendFloat64(float64(col.Int64(i)))
			} else if err := b.AppendValue(col.Value(i)); err != nil {
				return nil, computeError(e, "coalesce", i, err.Error())
			}
			appended = true
			break
		}
		if !appended {
			b.AppendNull()
		}
	}
	return b.Finish(), nil
}

// numericAt reads a numeric column value as float64 regardless of its
// physical type.
func numericAt(c *column.Column, i int) float64 {
	if c.Type() == column.Int64 {
		return float64(c.Int64(i))
	}
	return c.Float64(i)
}

func computeError(e *Expr, op string, row int, detail string) error {
	return &qerror.ComputeError{Op: op, Expr: e.String(), Detail: detail, Row: row}
}
