package expr

import (
	"fmt"

	"github.com/vegasq/lazyframe/column"
	"github.com/vegasq/lazyframe/qerror"
)

// TypeOf statically infers the output type of an expression against an
// input schema. It is deterministic and side-effect free, and fails
// with a SchemaError when a referenced column does not exist or
// operand types are incompatible, so type errors surface at plan-build
// time rather than during execution.
func TypeOf(e *Expr, s *column.Schema) (column.DataType, error) {
	switch e.Kind {
	case KindColumn:
		f, _, ok := s.Lookup(e.Name)
		if !ok {
			return 0, &qerror.SchemaError{Op: "expression", Column: e.Name, Detail: "column not found"}
		}
		return f.Type, nil

	case KindLiteral:
		return e.DataType, nil

	case KindUnary:
		in, err := TypeOf(e.Children[0], s)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case OpNot:
			if in != column.Bool {
				return 0, typeError(e, "not requires a bool operand, got %s", in)
			}
			return column.Bool, nil
		case OpNeg:
			if !in.IsNumeric() {
				return 0, typeError(e, "negation requires a numeric operand, got %s", in)
			}
			return in, nil
		case OpIsNull, OpIsNotNull:
			return column.Bool, nil
		default:
			return 0, typeError(e, "unknown unary operator")
		}

	case KindBinary:
		left, err := TypeOf(e.Children[0], s)
		if err != nil {
			return 0, err
		}
		right, err := TypeOf(e.Children[1], s)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case OpAdd, OpSub, OpMul, OpDiv:
			if !left.IsNumeric() || !right.IsNumeric() {
				return 0, typeError(e, "arithmetic requires numeric operands, got %s and %s", left, right)
			}
			if left == column.Float64 || right == column.Float64 {
				return column.Float64, nil
			}
			return column.Int64, nil
		case OpMod:
			if left != column.Int64 || right != column.Int64 {
				return 0, typeError(e, "modulo requires integer operands, got %s and %s", left, right)
			}
			return column.Int64, nil
		case OpEq, OpNe:
			if !comparableTypes(left, right) {
				return 0, typeError(e, "cannot compare %s with %s", left, right)
			}
			return column.Bool, nil
		case OpLt, OpLe, OpGt, OpGe:
			if !comparableTypes(left, right) || left == column.Bool {
				return 0, typeError(e, "cannot order %s against %s", left, right)
			}
			return column.Bool, nil
		case OpAnd, OpOr:
			if left != column.Bool || right != column.Bool {
				return 0, typeError(e, "boolean logic requires bool operands, got %s and %s", left, right)
			}
			return column.Bool, nil
		default:
			return 0, typeError(e, "unknown binary operator")
		}

	case KindCast:
		in, err := TypeOf(e.Children[0], s)
		if err != nil {
			return 0, err
		}
		if !castable(in, e.DataType) {
			return 0, typeError(e, "cannot cast %s to %s", in, e.DataType)
		}
		return e.DataType, nil

	case KindCoalesce:
		if len(e.Children) == 0 {
			return 0, typeError(e, "coalesce requires at least one input")
		}
		out, err := TypeOf(e.Children[0], s)
		if err != nil {
			return 0, err
		}
		for _, c := range e.Children[1:] {
			t, err := TypeOf(c, s)
			if err != nil {
				return 0, err
			}
			switch {
			case t == out:
			case t.IsNumeric() && out.IsNumeric():
				out = column.Float64
			default:
				return 0, typeError(e, "coalesce inputs mix %s and %s", out, t)
			}
		}
		return out, nil

	case KindAlias:
		return TypeOf(e.Children[0], s)

	case KindAgg:
		var in column.DataType
		if len(e.Children) > 0 {
			if HasAggregate(e.Children[0]) {
				return 0, typeError(e, "aggregate expressions cannot be nested")
			}
			var err error
			in, err = TypeOf(e.Children[0], s)
			if err != nil {
				return 0, err
			}
		}
		switch e.Op {
		case AggCount, AggCountAll:
			return column.Int64, nil
		case AggSum:
			if !in.IsNumeric() {
				return 0, typeError(e, "sum requires a numeric input, got %s", in)
			}
			return in, nil
		case AggMean:
			if !in.IsNumeric() {
				return 0, typeError(e, "mean requires a numeric input, got %s", in)
			}
			return column.Float64, nil
		case AggMin, AggMax:
			if in == column.Bool {
				return 0, typeError(e, "min/max does not support bool input")
			}
			return in, nil
		case AggFirst:
			return in, nil
		default:
			return 0, typeError(e, "unknown aggregate function")
		}

	default:
		return 0, typeError(e, "unknown expression kind")
	}
}

// comparableTypes reports whether values of the two types can be compared
// for equality or ordering. Numeric types compare against each other.
func comparableTypes(a, b column.DataType) bool {
	if a == b {
		return true
	}
	return a.IsNumeric() && b.IsNumeric()
}

// castable reports whether a cast between the two types is defined.
func castable(from, to column.DataType) bool {
	if from == to {
		return true
	}
	switch from {
	case column.Int64, column.Float64:
		return to == column.Int64 || to == column.Float64 || to == column.String
	case column.Bool:
		return to == column.String
	case column.String:
		return to == column.Int64 || to == column.Float64 || to == column.Bool
	}
	return false
}

func typeError(e *Expr, format string, args ...interface{}) error {
	return &qerror.SchemaError{
		Op:     "expression " + e.String(),
		Detail: fmt.Sprintf(format, args...),
	}
}
