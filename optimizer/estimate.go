package optimizer

import (
	"github.com/vegasq/lazyframe/plan"
	"github.com/vegasq/lazyframe/source"
)

// Cardinality estimation constants. These are deliberately crude
// heuristics: the join-reorder rule only needs a consistent relative
// ordering of input sizes, not accurate counts.
const (
	defaultScanRows      = 1000.0
	filterSelectivity    = 0.3
	distinctSelectivity  = 0.5
	aggregateSelectivity = 0.1
)

// estimateRows estimates the row count produced by a node.
func estimateRows(p *plan.Plan, id plan.NodeID) float64 {
	n := p.Node(id)
	switch n.Kind {
	case plan.KindScan:
		rows := defaultScanRows
		if sized, ok := n.Source.(source.Sized); ok {
			if count, known := sized.NumRows(); known {
				rows = float64(count)
			}
		}
		if n.Pushed != nil {
			rows *= filterSelectivity
		}
		return rows
	case plan.KindFilter:
		return estimateRows(p, n.Input) * filterSelectivity
	case plan.KindProject, plan.KindSort:
		return estimateRows(p, n.Input)
	case plan.KindLimit:
		rows := estimateRows(p, n.Input)
		if float64(n.Limit) < rows {
			return float64(n.Limit)
		}
		return rows
	case plan.KindDistinct:
		return estimateRows(p, n.Input) * distinctSelectivity
	case plan.KindAggregate:
		rows := estimateRows(p, n.Input) * aggregateSelectivity
		if rows < 1 {
			return 1
		}
		return rows
	case plan.KindJoin:
		// Assume keys match roughly one-to-one: the smaller side bounds
		// the output.
		left := estimateRows(p, n.Input)
		right := estimateRows(p, n.Right)
		if left < right {
			return left
		}
		return right
	default:
		return defaultScanRows
	}
}
