package optimizer

import (
	"github.com/vegasq/lazyframe/expr"
	"github.com/vegasq/lazyframe/plan"
)

// PredicatePushdown moves filters as close to the scans as possible.
// Conjunctions are split so pushable sub-predicates move even when
// others cannot:
//
//   - predicates travel through sort nodes and order-preserving
//     operators unchanged;
//   - through projections by substituting the projection's expressions
//     into the predicate;
//   - into the matching side of a join when they reference only that
//     side's columns (restricted by outer-join semantics);
//   - below an aggregation when they reference group keys only;
//   - and finally into the scan node itself, where the scan operator
//     enforces them.
//
// Predicates never cross a limit, and never cross a subset-distinct
// unless they reference only subset columns.
type PredicatePushdown struct{}

// Name implements Rule.
func (PredicatePushdown) Name() string { return "predicate-pushdown" }

// Apply implements Rule.
func (PredicatePushdown) Apply(p *plan.Plan, root plan.NodeID) (plan.NodeID, error) {
	return pushPredicates(p, root, nil)
}

// pushPredicates rewrites the subplan at id, carrying a set of
// conjuncts (expressed in id's column space) that want to move as far
// down as possible. Every conjunct is either absorbed by a scan or
// re-attached as a filter at the deepest legal position.
func pushPredicates(p *plan.Plan, id plan.NodeID, pending []*expr.Expr) (plan.NodeID, error) {
	n := p.Node(id)
	switch n.Kind {
	case plan.KindFilter:
		conjuncts := append(append([]*expr.Expr(nil), expr.SplitConjunction(n.Predicate)...), pending...)
		return pushPredicates(p, n.Input, conjuncts)

	case plan.KindScan:
		if len(pending) == 0 {
			return id, nil
		}
		all := pending
		if n.Pushed != nil {
			all = append(expr.SplitConjunction(n.Pushed), all...)
		}
		return p.ScanWith(n.Source, n.Columns, expr.Conjoin(dedupe(all)))

	case plan.KindProject:
		mapping := make(map[string]*expr.Expr, len(n.Exprs))
		for _, e := range n.Exprs {
			mapping[e.OutputName()] = unalias(e)
		}
		rewritten := make([]*expr.Expr, len(pending))
		for i, c := range pending {
			rewritten[i] = expr.SubstituteColumns(c, mapping)
		}
		child, err := pushPredicates(p, n.Input, rewritten)
		if err != nil {
			return id, err
		}
		return p.Project(child, n.Exprs)

	case plan.KindSort:
		child, err := pushPredicates(p, n.Input, pending)
		if err != nil {
			return id, err
		}
		return p.Sort(child, n.SortKeys, n.Descending)

	case plan.KindDistinct:
		// Below a whole-row distinct any predicate is safe: duplicates
		// agree on every column. Below a subset distinct only
		// predicates over the subset are safe, because other columns
		// may differ between the kept and dropped duplicates.
		var pushable, residual []*expr.Expr
		for _, c := range pending {
			if len(n.Subset) == 0 || coveredBy(c, n.Subset) {
				pushable = append(pushable, c)
			} else {
				residual = append(residual, c)
			}
		}
		child, err := pushPredicates(p, n.Input, pushable)
		if err != nil {
			return id, err
		}
		rebuilt, err := p.Distinct(child, n.Subset)
		if err != nil {
			return id, err
		}
		return wrapFilter(p, rebuilt, residual)

	case plan.KindLimit:
		// A filter below a limit would change which rows the limit
		// sees, so pending predicates stay above it.
		child, err := pushPredicates(p, n.Input, nil)
		if err != nil {
			return id, err
		}
		rebuilt, err := p.Limit(child, n.Limit)
		if err != nil {
			return id, err
		}
		return wrapFilter(p, rebuilt, pending)

	case plan.KindAggregate:
		var pushable, residual []*expr.Expr
		for _, c := range pending {
			if coveredBy(c, n.Keys) {
				pushable = append(pushable, c)
			} else {
				residual = append(residual, c)
			}
		}
		child, err := pushPredicates(p, n.Input, pushable)
		if err != nil {
			return id, err
		}
		rebuilt, err := p.Aggregate(child, n.Keys, n.Aggs)
		if err != nil {
			return id, err
		}
		return wrapFilter(p, rebuilt, residual)

	case plan.KindJoin:
		leftNames := nameSet(p.Schema(n.Input).Names())
		rightNames := nameSet(p.Schema(n.Right).Names())
		pushLeft := n.JoinType == plan.JoinInner || n.JoinType == plan.JoinLeft
		pushRight := n.JoinType == plan.JoinInner || n.JoinType == plan.JoinRight

		var leftPending, rightPending, residual []*expr.Expr
		for _, c := range pending {
			cols := expr.ColumnsUsed(c)
			switch {
			case pushLeft && allIn(cols, leftNames):
				leftPending = append(leftPending, c)
			case pushRight && allIn(cols, rightNames):
				rightPending = append(rightPending, c)
			default:
				residual = append(residual, c)
			}
		}
		newLeft, err := pushPredicates(p, n.Input, leftPending)
		if err != nil {
			return id, err
		}
		newRight, err := pushPredicates(p, n.Right, rightPending)
		if err != nil {
			return id, err
		}
		rebuilt, err := p.Join(newLeft, newRight, n.LeftKeys, n.RightKeys, n.JoinType)
		if err != nil {
			return id, err
		}
		return wrapFilter(p, rebuilt, residual)

	default:
		return id, nil
	}
}

// wrapFilter re-attaches leftover conjuncts as a filter above id.
func wrapFilter(p *plan.Plan, id plan.NodeID, conjuncts []*expr.Expr) (plan.NodeID, error) {
	conjuncts = dedupe(conjuncts)
	if len(conjuncts) == 0 {
		return id, nil
	}
	return p.Filter(id, expr.Conjoin(conjuncts))
}

// dedupe drops structurally identical conjuncts, which makes repeated
// identical filters collapse into one.
func dedupe(conjuncts []*expr.Expr) []*expr.Expr {
	seen := make(map[string]bool, len(conjuncts))
	out := conjuncts[:0]
	for _, c := range conjuncts {
		key := c.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// unalias strips alias wrappers so substitution inserts the underlying
// computation.
func unalias(e *expr.Expr) *expr.Expr {
	for e.Kind == expr.KindAlias {
		e = e.Children[0]
	}
	return e
}

// coveredBy reports whether the expression references only the given
// columns.
func coveredBy(e *expr.Expr, allowed []string) bool {
	return allIn(expr.ColumnsUsed(e), nameSet(allowed))
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func allIn(names []string, set map[string]bool) bool {
	for _, n := range names {
		if !set[n] {
			return false
		}
	}
	return true
}
