package plan

import (
	"fmt"
	"strings"
)

// Describe renders the subplan rooted at root as an indented tree, one
// node per line, annotated with node IDs so shared subplans are
// visible. A node already printed earlier is rendered as a reference.
func (p *Plan) Describe(root NodeID) string {
	var b strings.Builder
	seen := make(map[NodeID]bool)
	p.describe(&b, root, 0, seen)
	return b.String()
}

func (p *Plan) describe(b *strings.Builder, id NodeID, depth int, seen map[NodeID]bool) {
	indent := strings.Repeat("  ", depth)
	if seen[id] {
		fmt.Fprintf(b, "%s[shared #%d]\n", indent, id)
		return
	}
	seen[id] = true

	n := p.Node(id)
	fmt.Fprintf(b, "%s#%d %s", indent, id, n.Kind)
	switch n.Kind {
	case KindScan:
		if n.Columns != nil {
			fmt.Fprintf(b, " columns=%v", n.Columns)
		}
		if n.Pushed != nil {
			fmt.Fprintf(b, " pushed=%s", n.Pushed)
		}
	case KindFilter:
		fmt.Fprintf(b, " predicate=%s", n.Predicate)
	case KindProject:
		fmt.Fprintf(b, " exprs=[%s]", exprsKey(n.Exprs))
	case KindAggregate:
		fmt.Fprintf(b, " keys=%v aggs=[%s]", n.Keys, exprsKey(n.Aggs))
	case KindJoin:
		fmt.Fprintf(b, " type=%s on %v = %v", n.JoinType, n.LeftKeys, n.RightKeys)
	case KindSort:
		fmt.Fprintf(b, " keys=%v desc=%v", n.SortKeys, n.Descending)
	case KindLimit:
		fmt.Fprintf(b, " n=%d", n.Limit)
	case KindDistinct:
		if len(n.Subset) > 0 {
			fmt.Fprintf(b, " subset=%v", n.Subset)
		}
	}
	fmt.Fprintf(b, " -> [%s]\n", n.schema)

	if n.Input != Invalid {
		p.describe(b, n.Input, depth+1, seen)
	}
	if n.Right != Invalid {
		p.describe(b, n.Right, depth+1, seen)
	}
}
