package optimizer

import "github.com/vegasq/lazyframe/plan"

// SubplanElimination re-canonicalizes a subtree bottom-up through the
// plan builders. Interning already collapses structurally identical
// nodes at construction time; this rule extends that to subtrees that
// only become identical after earlier rewrites, such as two filters
// whose conjuncts were reordered into the same canonical form.
type SubplanElimination struct{}

// Name implements Rule.
func (SubplanElimination) Name() string { return "subplan-elimination" }

// Apply implements Rule.
func (SubplanElimination) Apply(p *plan.Plan, root plan.NodeID) (plan.NodeID, error) {
	memo := make(map[plan.NodeID]plan.NodeID)
	return recanonicalize(p, root, memo)
}

func recanonicalize(p *plan.Plan, id plan.NodeID, memo map[plan.NodeID]plan.NodeID) (plan.NodeID, error) {
	if mapped, ok := memo[id]; ok {
		return mapped, nil
	}
	n := p.Node(id)

	input, right := n.Input, n.Right
	if input != plan.Invalid {
		rewritten, err := recanonicalize(p, input, memo)
		if err != nil {
			return id, err
		}
		input = rewritten
	}
	if right != plan.Invalid {
		rewritten, err := recanonicalize(p, right, memo)
		if err != nil {
			return id, err
		}
		right = rewritten
	}

	out := id
	if input != n.Input || right != n.Right {
		rebuilt, err := rebuild(p, n, input, right)
		if err != nil {
			return id, err
		}
		out = rebuilt
	}
	memo[id] = out
	return out, nil
}
