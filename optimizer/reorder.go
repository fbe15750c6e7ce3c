package optimizer

import (
	"github.com/vegasq/lazyframe/expr"
	"github.com/vegasq/lazyframe/plan"
)

// JoinReorder swaps join inputs so the side estimated smaller becomes
// the right child, which the execution engine materializes as the
// hash-build side. A swapped join reverses the output column order,
// so the rule wraps it in a projection restoring the original schema.
// Left and right outer joins flip with their inputs; inner and full
// joins are symmetric.
type JoinReorder struct{}

// Name implements Rule.
func (JoinReorder) Name() string { return "join-reorder" }

// Apply implements Rule.
func (JoinReorder) Apply(p *plan.Plan, root plan.NodeID) (plan.NodeID, error) {
	return reorderJoins(p, root)
}

func reorderJoins(p *plan.Plan, id plan.NodeID) (plan.NodeID, error) {
	n := p.Node(id)

	input, right := n.Input, n.Right
	if input != plan.Invalid {
		rewritten, err := reorderJoins(p, input)
		if err != nil {
			return id, err
		}
		input = rewritten
	}
	if right != plan.Invalid {
		rewritten, err := reorderJoins(p, right)
		if err != nil {
			return id, err
		}
		right = rewritten
	}

	if n.Kind != plan.KindJoin {
		if input == n.Input && right == n.Right {
			return id, nil
		}
		return rebuild(p, n, input, right)
	}

	if estimateRows(p, input) >= estimateRows(p, right) {
		return p.Join(input, right, n.LeftKeys, n.RightKeys, n.JoinType)
	}

	swapped, err := p.Join(right, input, n.RightKeys, n.LeftKeys, flip(n.JoinType))
	if err != nil {
		return id, err
	}
	restore := make([]*expr.Expr, 0, p.Schema(id).Len())
	for _, name := range p.Schema(id).Names() {
		restore = append(restore, expr.Col(name))
	}
	return p.Project(swapped, restore)
}

func flip(jt plan.JoinType) plan.JoinType {
	switch jt {
	case plan.JoinLeft:
		return plan.JoinRight
	case plan.JoinRight:
		return plan.JoinLeft
	default:
		return jt
	}
}
