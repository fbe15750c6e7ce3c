// Package plan implements the logical query plan: a DAG of relational
// operator nodes built lazily from user-facing calls. Building a plan
// is pure and allocation-only; it never reads data.
//
// Nodes live in an arena and are addressed by NodeID rather than
// owning pointers. Node construction is hash-consed: structurally
// identical nodes intern to the same ID, which makes subplan sharing
// explicit and keeps the graph cycle-free by construction (a node can
// only reference IDs created before it).
//
// Every builder call resolves the new node's output schema eagerly
// from its children's schemas and its own parameters, so unknown
// columns and type mismatches surface as SchemaError at build time,
// never after data has been materialized.
package plan

import (
	"fmt"
	"strings"

	"github.com/vegasq/lazyframe/column"
	"github.com/vegasq/lazyframe/expr"
	"github.com/vegasq/lazyframe/source"
)

// NodeID addresses a node within a Plan's arena.
type NodeID int32

// Invalid marks an absent child reference.
const Invalid NodeID = -1

// Kind discriminates logical node variants.
type Kind int

const (
	KindScan Kind = iota
	KindFilter
	KindProject
	KindAggregate
	KindJoin
	KindSort
	KindLimit
	KindDistinct
)

// String returns the lowercase node kind name.
func (k Kind) String() string {
	switch k {
	case KindScan:
		return "scan"
	case KindFilter:
		return "filter"
	case KindProject:
		return "project"
	case KindAggregate:
		return "aggregate"
	case KindJoin:
		return "join"
	case KindSort:
		return "sort"
	case KindLimit:
		return "limit"
	case KindDistinct:
		return "distinct"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// JoinType selects the join variant.
type JoinType int

const (
	JoinInner JoinType = iota
	JoinLeft
	JoinRight
	JoinFull
)

// String returns the lowercase join type name.
func (j JoinType) String() string {
	switch j {
	case JoinInner:
		return "inner"
	case JoinLeft:
		return "left"
	case JoinRight:
		return "right"
	case JoinFull:
		return "full"
	default:
		return fmt.Sprintf("join(%d)", int(j))
	}
}

// Node is one logical operator. Nodes are immutable once interned;
// the optimizer rewrites plans by interning new nodes, never by
// mutating existing ones. Only the fields relevant to the node's Kind
// are set.
type Node struct {
	Kind  Kind
	Input NodeID // primary child; Invalid for scans
	Right NodeID // join right child; Invalid otherwise

	// Scan
	Source  source.Source
	Columns []string   // scan column selection; nil means all
	Pushed  *expr.Expr // predicate pushed into the scan

	// Filter
	Predicate *expr.Expr

	// Project
	Exprs []*expr.Expr

	// Aggregate
	Keys []string
	Aggs []*expr.Expr

	// Join
	LeftKeys  []string
	RightKeys []string
	JoinType  JoinType

	// Sort
	SortKeys   []string
	Descending []bool

	// Limit
	Limit int64

	// Distinct
	Subset []string // nil means whole row

	schema *column.Schema
}

// Schema returns the node's resolved output schema.
func (n *Node) Schema() *column.Schema { return n.schema }

// Plan is an arena of logical nodes. A single Plan can hold several
// query roots that share subplans.
type Plan struct {
	nodes     []Node
	index     map[string]NodeID
	sourceIDs map[source.Source]int
}

// New creates an empty plan arena.
func New() *Plan {
	return &Plan{
		index:     make(map[string]NodeID),
		sourceIDs: make(map[source.Source]int),
	}
}

// Node returns the node addressed by id. The returned pointer must be
// treated as read-only.
func (p *Plan) Node(id NodeID) *Node { return &p.nodes[id] }

// Len returns the number of interned nodes.
func (p *Plan) Len() int { return len(p.nodes) }

// Schema returns the output schema of the node addressed by id.
func (p *Plan) Schema(id NodeID) *column.Schema { return p.nodes[id].schema }

// intern adds the node to the arena, or returns the ID of an existing
// structurally identical node. The node's schema must already be
// resolved.
func (p *Plan) intern(n Node) NodeID {
	key := p.fingerprint(&n)
	if id, ok := p.index[key]; ok {
		return id
	}
	id := NodeID(len(p.nodes))
	p.nodes = append(p.nodes, n)
	p.index[key] = id
	return id
}

// fingerprint renders the node's identity: kind, child IDs, and all
// parameters. Sources are identified by a per-plan registration
// number so that two scans of the same Source object collapse.
func (p *Plan) fingerprint(n *Node) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%d|%d", n.Kind, n.Input, n.Right)
	switch n.Kind {
	case KindScan:
		sid, ok := p.sourceIDs[n.Source]
		if !ok {
			sid = len(p.sourceIDs)
			p.sourceIDs[n.Source] = sid
		}
		fmt.Fprintf(&b, "|src=%d|cols=%v|pushed=%s", sid, n.Columns, exprKey(n.Pushed))
	case KindFilter:
		fmt.Fprintf(&b, "|pred=%s", exprKey(n.Predicate))
	case KindProject:
		fmt.Fprintf(&b, "|exprs=%s", exprsKey(n.Exprs))
	case KindAggregate:
		fmt.Fprintf(&b, "|keys=%v|aggs=%s", n.Keys, exprsKey(n.Aggs))
	case KindJoin:
		fmt.Fprintf(&b, "|type=%s|lk=%v|rk=%v", n.JoinType, n.LeftKeys, n.RightKeys)
	case KindSort:
		fmt.Fprintf(&b, "|keys=%v|desc=%v", n.SortKeys, n.Descending)
	case KindLimit:
		fmt.Fprintf(&b, "|n=%d", n.Limit)
	case KindDistinct:
		fmt.Fprintf(&b, "|subset=%v", n.Subset)
	}
	return b.String()
}

func exprKey(e *expr.Expr) string {
	if e == nil {
		return "<nil>"
	}
	return e.String()
}

func exprsKey(exprs []*expr.Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, "; ")
}

// Graft copies the subplan rooted at root in src into p, returning the
// corresponding root ID in p. Structurally identical nodes already
// present in p are shared rather than duplicated.
func (p *Plan) Graft(src *Plan, root NodeID) (NodeID, error) {
	if src == p {
		return root, nil
	}
	memo := make(map[NodeID]NodeID)
	return p.graft(src, root, memo)
}

func (p *Plan) graft(src *Plan, id NodeID, memo map[NodeID]NodeID) (NodeID, error) {
	if mapped, ok := memo[id]; ok {
		return mapped, nil
	}
	n := src.Node(id)
	copied := *n
	if n.Input != Invalid {
		input, err := p.graft(src, n.Input, memo)
		if err != nil {
			return Invalid, err
		}
		copied.Input = input
	}
	if n.Right != Invalid {
		right, err := p.graft(src, n.Right, memo)
		if err != nil {
			return Invalid, err
		}
		copied.Right = right
	}
	newID := p.intern(copied)
	memo[id] = newID
	return newID, nil
}
