// Package optimizer rewrites logical plans before execution. It
// applies a fixed, ordered sequence of semantics-preserving rules
// until the plan stops changing or a bounded number of passes is
// reached, which keeps non-terminating rewrite cycles impossible.
//
// Every rule is a pure plan-to-plan transformation and must be
// idempotent on its own output. After each rule the driver verifies
// that the root schema is unchanged; a violation surfaces as an
// OptimizerError, which always indicates an engine bug.
package optimizer

import (
	"fmt"

	"github.com/vegasq/lazyframe/plan"
	"github.com/vegasq/lazyframe/qerror"
)

// maxPasses bounds the fixed-point iteration.
const maxPasses = 10

// Rule is a pure logical-plan rewrite. Apply returns the new root,
// which may equal the old root when the rule found nothing to do.
type Rule interface {
	Name() string
	Apply(p *plan.Plan, root plan.NodeID) (plan.NodeID, error)
}

// Rules returns the default rule sequence in priority order.
func Rules() []Rule {
	return []Rule{
		PredicatePushdown{},
		ProjectionPushdown{},
		SubplanElimination{},
		JoinReorder{},
	}
}

// Optimize rewrites the plan rooted at root with the default rules and
// returns the optimized root.
func Optimize(p *plan.Plan, root plan.NodeID) (plan.NodeID, error) {
	return OptimizeWith(p, root, Rules())
}

// OptimizeWith rewrites the plan with an explicit rule sequence,
// running the sequence to a fixed point bounded by maxPasses.
func OptimizeWith(p *plan.Plan, root plan.NodeID, rules []Rule) (plan.NodeID, error) {
	want := p.Schema(root)
	for pass := 0; pass < maxPasses; pass++ {
		changed := false
		for _, r := range rules {
			next, err := r.Apply(p, root)
			if err != nil {
				return root, &qerror.OptimizerError{Rule: r.Name(), Detail: err.Error()}
			}
			if !p.Schema(next).Equal(want) {
				return root, &qerror.OptimizerError{
					Rule:   r.Name(),
					Detail: fmt.Sprintf("output schema changed from [%s] to [%s]", want, p.Schema(next)),
				}
			}
			if next != root {
				root = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return root, nil
}

// rebuild re-creates a node on top of (possibly rewritten) children
// through the plan builder, so schema resolution and interning apply.
func rebuild(p *plan.Plan, n *plan.Node, input, right plan.NodeID) (plan.NodeID, error) {
	switch n.Kind {
	case plan.KindScan:
		return p.ScanWith(n.Source, n.Columns, n.Pushed)
	case plan.KindFilter:
		return p.Filter(input, n.Predicate)
	case plan.KindProject:
		return p.Project(input, n.Exprs)
	case plan.KindAggregate:
		return p.Aggregate(input, n.Keys, n.Aggs)
	case plan.KindJoin:
		return p.Join(input, right, n.LeftKeys, n.RightKeys, n.JoinType)
	case plan.KindSort:
		return p.Sort(input, n.SortKeys, n.Descending)
	case plan.KindLimit:
		return p.Limit(input, n.Limit)
	case plan.KindDistinct:
		return p.Distinct(input, n.Subset)
	default:
		return plan.Invalid, fmt.Errorf("unknown node kind %s", n.Kind)
	}
}
