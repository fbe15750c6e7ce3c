package optimizer

import (
	"github.com/vegasq/lazyframe/expr"
	"github.com/vegasq/lazyframe/plan"
)

// ProjectionPushdown narrows scans to the columns the plan actually
// uses. A need set flows top-down: projections and aggregations
// declare exactly which input columns they consume, filters and sorts
// add the columns their expressions touch, and scans shrink their
// column list to the accumulated need. Interior projections and
// aggregations also drop output expressions nothing above consumes.
//
// A nil need set means "all columns", which is what the root starts
// with; narrowing therefore only happens beneath an operator that
// re-declares its output schema, so the plan's root schema is never
// affected.
type ProjectionPushdown struct{}

// Name implements Rule.
func (ProjectionPushdown) Name() string { return "projection-pushdown" }

// Apply implements Rule.
func (ProjectionPushdown) Apply(p *plan.Plan, root plan.NodeID) (plan.NodeID, error) {
	return pruneColumns(p, root, nil)
}

// pruneColumns rewrites the subplan at id given the set of output
// columns the parent needs. nil means every column is needed.
func pruneColumns(p *plan.Plan, id plan.NodeID, need map[string]bool) (plan.NodeID, error) {
	n := p.Node(id)
	switch n.Kind {
	case plan.KindScan:
		if need == nil {
			return id, nil
		}
		if n.Pushed != nil {
			need = union(need, nameSet(expr.ColumnsUsed(n.Pushed)))
		}
		cols := orderedSubset(p.Schema(id).Names(), need)
		if len(cols) == 0 {
			// count(*)-style plans need no particular column but the
			// scan must still produce row counts, so keep one.
			cols = p.Schema(id).Names()[:1]
		}
		if len(cols) == p.Schema(id).Len() {
			return id, nil
		}
		return p.ScanWith(n.Source, cols, n.Pushed)

	case plan.KindProject:
		exprs := n.Exprs
		if need != nil {
			kept := make([]*expr.Expr, 0, len(exprs))
			for _, e := range exprs {
				if need[e.OutputName()] {
					kept = append(kept, e)
				}
			}
			if len(kept) > 0 {
				exprs = kept
			}
		}
		childNeed := make(map[string]bool)
		for _, e := range exprs {
			for _, c := range expr.ColumnsUsed(e) {
				childNeed[c] = true
			}
		}
		child, err := pruneColumns(p, n.Input, childNeed)
		if err != nil {
			return id, err
		}
		return p.Project(child, exprs)

	case plan.KindAggregate:
		aggs := n.Aggs
		if need != nil {
			kept := make([]*expr.Expr, 0, len(aggs))
			for _, a := range aggs {
				if need[a.OutputName()] {
					kept = append(kept, a)
				}
			}
			if len(kept) == 0 && len(n.Keys) == 0 {
				// A keyless aggregation must keep at least one
				// aggregate to stay valid.
				kept = aggs[:1]
			}
			aggs = kept
		}
		childNeed := nameSet(n.Keys)
		for _, a := range aggs {
			for _, c := range expr.ColumnsUsed(a) {
				childNeed[c] = true
			}
		}
		child, err := pruneColumns(p, n.Input, childNeed)
		if err != nil {
			return id, err
		}
		return p.Aggregate(child, n.Keys, aggs)

	case plan.KindFilter:
		childNeed := need
		if childNeed != nil {
			childNeed = union(childNeed, nameSet(expr.ColumnsUsed(n.Predicate)))
		}
		child, err := pruneColumns(p, n.Input, childNeed)
		if err != nil {
			return id, err
		}
		return p.Filter(child, n.Predicate)

	case plan.KindSort:
		childNeed := need
		if childNeed != nil {
			childNeed = union(childNeed, nameSet(n.SortKeys))
		}
		child, err := pruneColumns(p, n.Input, childNeed)
		if err != nil {
			return id, err
		}
		return p.Sort(child, n.SortKeys, n.Descending)

	case plan.KindLimit:
		child, err := pruneColumns(p, n.Input, need)
		if err != nil {
			return id, err
		}
		return p.Limit(child, n.Limit)

	case plan.KindDistinct:
		childNeed := need
		if len(n.Subset) == 0 {
			// Whole-row distinct compares every column.
			childNeed = nil
		} else if childNeed != nil {
			childNeed = union(childNeed, nameSet(n.Subset))
		}
		child, err := pruneColumns(p, n.Input, childNeed)
		if err != nil {
			return id, err
		}
		return p.Distinct(child, n.Subset)

	case plan.KindJoin:
		var leftNeed, rightNeed map[string]bool
		if need != nil {
			leftSchema, rightSchema := p.Schema(n.Input), p.Schema(n.Right)
			leftNeed = nameSet(n.LeftKeys)
			rightNeed = nameSet(n.RightKeys)
			for name := range need {
				if _, _, ok := leftSchema.Lookup(name); ok {
					leftNeed[name] = true
				} else if _, _, ok := rightSchema.Lookup(name); ok {
					rightNeed[name] = true
				}
			}
		}
		left, err := pruneColumns(p, n.Input, leftNeed)
		if err != nil {
			return id, err
		}
		right, err := pruneColumns(p, n.Right, rightNeed)
		if err != nil {
			return id, err
		}
		return p.Join(left, right, n.LeftKeys, n.RightKeys, n.JoinType)

	default:
		return id, nil
	}
}

// orderedSubset keeps the names present in keep, preserving the order
// of names.
func orderedSubset(names []string, keep map[string]bool) []string {
	out := make([]string, 0, len(keep))
	for _, n := range names {
		if keep[n] {
			out = append(out, n)
		}
	}
	return out
}

func union(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool, len(a)+len(b))
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	return out
}
