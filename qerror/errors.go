// Package qerror defines the error types surfaced by the query engine.
//
// Errors fall into four categories:
//
//   - SchemaError: a referenced column does not exist or operand types
//     are incompatible. Always detected while building or optimizing a
//     plan, before any data is read.
//   - ComputeError: a runtime evaluation failure such as integer
//     overflow, division by zero, or an invalid cast. Aborts the
//     in-flight query; partial results are discarded.
//   - OptimizerError: an optimizer rule violated an internal invariant
//     (for example, produced a plan with a different output schema).
//     Always a bug in the engine, never user-triggered.
//   - CancelledError: cooperative cancellation was observed between
//     chunk boundaries.
//
// All types work with errors.Is and errors.As.
package qerror

import (
	"context"
	"fmt"
)

// SchemaError reports an unknown column or a type mismatch detected
// during plan construction or optimization.
type SchemaError struct {
	Op     string // builder operation or operator name, e.g. "filter"
	Column string // offending column name, if known
	Detail string // human-readable description
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("schema error in %s: column %q: %s", e.Op, e.Column, e.Detail)
	}
	return fmt.Sprintf("schema error in %s: %s", e.Op, e.Detail)
}

// ComputeError reports a runtime evaluation failure. It identifies the
// offending expression and the operator where the failure occurred.
type ComputeError struct {
	Op     string // physical operator name, e.g. "filter", "project"
	Expr   string // rendered expression that failed
	Detail string // human-readable description
	Row    int    // row index within the chunk, -1 if not row-specific
}

// Error implements the error interface.
func (e *ComputeError) Error() string {
	msg := fmt.Sprintf("compute error in %s: expression %s: %s", e.Op, e.Expr, e.Detail)
	if e.Row >= 0 {
		msg += fmt.Sprintf(" (row %d)", e.Row)
	}
	return msg
}

// OptimizerError reports that a rewrite rule broke a plan invariant.
// This is always an engine bug: rules must preserve the output schema
// and row-set semantics of the plan they rewrite.
type OptimizerError struct {
	Rule   string // rule name
	Detail string
}

// Error implements the error interface.
func (e *OptimizerError) Error() string {
	return fmt.Sprintf("optimizer error in rule %s: %s", e.Rule, e.Detail)
}

// CancelledError reports that the query observed cooperative
// cancellation and stopped pulling chunks from upstream operators.
type CancelledError struct {
	QueryID string
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	if e.QueryID != "" {
		return fmt.Sprintf("query %s cancelled", e.QueryID)
	}
	return "query cancelled"
}

// Unwrap makes errors.Is(err, context.Canceled) succeed for callers
// that only deal in context errors.
func (e *CancelledError) Unwrap() error {
	return context.Canceled
}
