// Package exec runs logical plans against their sources and produces
// materialized tables. Execution is pull-based: every physical
// operator exposes a Next method returning one chunk at a time, and a
// query is driven by draining its root operator.
//
// Two modes are supported. In streaming mode chunks flow through the
// operator tree as they are produced, bounding memory by the pipeline
// depth times the chunk size (pipeline-breaking operators such as
// aggregation, join build sides, and sort still buffer what their
// semantics require). In materializing mode every operator drains its
// input fully before producing output. Both modes produce the same
// rows; only ordering guarantees and memory behavior differ.
//
// Cancellation is cooperative: every operator checks the context
// between chunks and surfaces a CancelledError carrying the query ID.
package exec

import (
	"context"

	"github.com/google/uuid"

	"github.com/vegasq/lazyframe/column"
	"github.com/vegasq/lazyframe/plan"
	"github.com/vegasq/lazyframe/qerror"
	"github.com/vegasq/lazyframe/source"
)

// Options controls how a plan is executed.
type Options struct {
	// ChunkSize is the target number of rows per chunk. Zero selects
	// the default.
	ChunkSize int

	// Streaming selects streaming mode. The zero value materializes
	// every operator's input before producing output.
	Streaming bool

	// MaintainOrder forces deterministic row order even when
	// Parallelism would otherwise allow chunks to be reordered.
	MaintainOrder bool

	// Parallelism is the number of workers for stateless per-chunk
	// stages. Values below 2 run everything on the calling goroutine.
	Parallelism int
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = source.DefaultChunkSize
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 1
	}
	return o
}

// Operator is one node of the physical operator tree. Next returns
// (nil, nil) after the final chunk. Close releases buffered state and
// must be safe to call after an error.
type Operator interface {
	Schema() *column.Schema
	Open(ctx context.Context) error
	Next(ctx context.Context) (*column.Chunk, error)
	Close() error
}

// query carries per-execution state shared by all operators.
type query struct {
	id     string
	opts   Options
	plan   *plan.Plan
	refs   map[plan.NodeID]int
	shared map[plan.NodeID]*spool
}

// cancelled converts an observed context cancellation into the
// engine's error type. Operators call it between chunks.
func (q *query) cancelled(ctx context.Context) error {
	if ctx.Err() != nil {
		return &qerror.CancelledError{QueryID: q.id}
	}
	return nil
}

// Run executes the plan rooted at root and materializes the full
// result. The returned table's schema is exactly the root node's
// resolved schema.
func Run(ctx context.Context, p *plan.Plan, root plan.NodeID, opts Options) (*column.Table, error) {
	q := &query{
		id:     uuid.NewString(),
		opts:   opts.withDefaults(),
		plan:   p,
		refs:   make(map[plan.NodeID]int),
		shared: make(map[plan.NodeID]*spool),
	}
	q.countRefs(root)

	op, err := q.build(root)
	if err != nil {
		return nil, err
	}
	defer op.Close()

	if err := op.Open(ctx); err != nil {
		return nil, err
	}
	var chunks []*column.Chunk
	for {
		ch, err := op.Next(ctx)
		if err != nil {
			return nil, err
		}
		if ch == nil {
			break
		}
		if ch.NumRows() == 0 {
			continue
		}
		chunks = append(chunks, ch)
	}
	return column.NewTable(p.Schema(root), chunks)
}

// countRefs counts how many parents reach each node. Nodes referenced
// more than once are executed once and their output is shared.
func (q *query) countRefs(id plan.NodeID) {
	q.refs[id]++
	if q.refs[id] > 1 {
		return
	}
	n := q.plan.Node(id)
	if n.Input != plan.Invalid {
		q.countRefs(n.Input)
	}
	if n.Right != plan.Invalid {
		q.countRefs(n.Right)
	}
}

// build constructs the physical operator for a node, routing shared
// subplans through a spool so they execute exactly once.
func (q *query) build(id plan.NodeID) (Operator, error) {
	if q.refs[id] > 1 {
		sp, ok := q.shared[id]
		if !ok {
			inner, err := q.buildNode(id)
			if err != nil {
				return nil, err
			}
			sp = &spool{q: q, inner: inner, readers: q.refs[id]}
			q.shared[id] = sp
		}
		return &spoolReader{spool: sp}, nil
	}
	return q.buildNode(id)
}

func (q *query) buildNode(id plan.NodeID) (Operator, error) {
	n := q.plan.Node(id)
	var op Operator
	switch n.Kind {
	case plan.KindScan:
		op = &scanOp{q: q, src: n.Source, schema: n.Schema(), columns: n.Columns, pushed: n.Pushed}

	case plan.KindFilter:
		input, err := q.build(n.Input)
		if err != nil {
			return nil, err
		}
		op = q.maybeParallel(newFilterOp(q, input, n.Predicate))

	case plan.KindProject:
		input, err := q.build(n.Input)
		if err != nil {
			return nil, err
		}
		op = q.maybeParallel(newProjectOp(q, input, n.Exprs, n.Schema()))

	case plan.KindAggregate:
		input, err := q.build(n.Input)
		if err != nil {
			return nil, err
		}
		op = &hashAggOp{q: q, input: input, schema: n.Schema(), keys: n.Keys, aggs: n.Aggs}

	case plan.KindJoin:
		left, err := q.build(n.Input)
		if err != nil {
			return nil, err
		}
		right, err := q.build(n.Right)
		if err != nil {
			return nil, err
		}
		op = &hashJoinOp{
			q:         q,
			left:      left,
			right:     right,
			schema:    n.Schema(),
			leftKeys:  n.LeftKeys,
			rightKeys: n.RightKeys,
			joinType:  n.JoinType,
		}

	case plan.KindSort:
		input, err := q.build(n.Input)
		if err != nil {
			return nil, err
		}
		op = &sortOp{q: q, input: input, schema: n.Schema(), keys: n.SortKeys, descending: n.Descending}

	case plan.KindLimit:
		input, err := q.build(n.Input)
		if err != nil {
			return nil, err
		}
		op = &limitOp{q: q, input: input, schema: n.Schema(), remaining: n.Limit}

	case plan.KindDistinct:
		input, err := q.build(n.Input)
		if err != nil {
			return nil, err
		}
		op = &distinctOp{q: q, input: input, schema: n.Schema(), subset: n.Subset}

	default:
		return nil, &qerror.OptimizerError{Rule: "exec", Detail: "unknown node kind " + n.Kind.String()}
	}

	if !q.opts.Streaming {
		op = &materializeOp{q: q, inner: op}
	}
	return op, nil
}

func (q *query) maybeParallel(m *mapOp) Operator {
	if q.opts.Parallelism > 1 && !q.opts.MaintainOrder {
		return newParallelMap(q, m)
	}
	return m
}

// materializeOp drains its input fully during Open and replays the
// buffered chunks. It turns any operator into a pipeline breaker.
type materializeOp struct {
	q      *query
	inner  Operator
	chunks []*column.Chunk
	pos    int
	opened bool
}

func (m *materializeOp) Schema() *column.Schema { return m.inner.Schema() }

func (m *materializeOp) Open(ctx context.Context) error {
	if m.opened {
		return nil
	}
	m.opened = true
	if err := m.inner.Open(ctx); err != nil {
		return err
	}
	defer m.inner.Close()
	for {
		ch, err := m.inner.Next(ctx)
		if err != nil {
			return err
		}
		if ch == nil {
			return nil
		}
		m.chunks = append(m.chunks, ch)
	}
}

func (m *materializeOp) Next(ctx context.Context) (*column.Chunk, error) {
	if err := m.q.cancelled(ctx); err != nil {
		return nil, err
	}
	if m.pos >= len(m.chunks) {
		return nil, nil
	}
	ch := m.chunks[m.pos]
	m.pos++
	return ch, nil
}

func (m *materializeOp) Close() error {
	m.chunks = nil
	return m.inner.Close()
}

// spool executes a shared subplan once and lets several consumers
// replay its output independently.
type spool struct {
	q       *query
	inner   Operator
	filled  bool
	err     error
	chunks  []*column.Chunk
	readers int
}

func (s *spool) fill(ctx context.Context) error {
	if s.filled {
		return s.err
	}
	s.filled = true
	if s.err = s.inner.Open(ctx); s.err != nil {
		return s.err
	}
	defer s.inner.Close()
	for {
		ch, err := s.inner.Next(ctx)
		if err != nil {
			s.err = err
			return err
		}
		if ch == nil {
			return nil
		}
		s.chunks = append(s.chunks, ch)
	}
}

func (s *spool) release() {
	s.readers--
	if s.readers <= 0 {
		s.chunks = nil
	}
}

type spoolReader struct {
	spool *spool
	pos   int
}

func (r *spoolReader) Schema() *column.Schema { return r.spool.inner.Schema() }

func (r *spoolReader) Open(ctx context.Context) error {
	return r.spool.fill(ctx)
}

func (r *spoolReader) Next(ctx context.Context) (*column.Chunk, error) {
	if err := r.spool.q.cancelled(ctx); err != nil {
		return nil, err
	}
	if r.pos >= len(r.spool.chunks) {
		return nil, nil
	}
	ch := r.spool.chunks[r.pos]
	r.pos++
	return ch, nil
}

func (r *spoolReader) Close() error {
	r.spool.release()
	return nil
}
