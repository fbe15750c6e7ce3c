package exec

import (
	"context"
	"sort"

	"github.com/vegasq/lazyframe/column"
)

// sortOp is a pipeline breaker: it drains its input fully, sorts the
// rows stably by the key columns, and emits the result re-chunked.
// Nulls sort before every value regardless of direction.
type sortOp struct {
	q          *query
	input      Operator
	schema     *column.Schema
	keys       []string
	descending []bool

	sorted  *column.Chunk
	order   []int
	emitPos int
	done    bool
}

func (s *sortOp) Schema() *column.Schema { return s.schema }

func (s *sortOp) Open(ctx context.Context) error { return s.input.Open(ctx) }

func (s *sortOp) Next(ctx context.Context) (*column.Chunk, error) {
	if err := s.q.cancelled(ctx); err != nil {
		return nil, err
	}
	if !s.done {
		if err := s.collect(ctx); err != nil {
			return nil, err
		}
		s.done = true
	}
	if s.sorted == nil || s.emitPos >= len(s.order) {
		return nil, nil
	}
	end := s.emitPos + s.q.opts.ChunkSize
	if end > len(s.order) {
		end = len(s.order)
	}
	out, err := gatherChunk(s.sorted, s.order[s.emitPos:end])
	if err != nil {
		return nil, err
	}
	s.emitPos = end
	return out, nil
}

// collect concatenates all input chunks and computes the sorted row
// order.
func (s *sortOp) collect(ctx context.Context) error {
	var chunks []*column.Chunk
	total := 0
	for {
		if err := s.q.cancelled(ctx); err != nil {
			return err
		}
		ch, err := s.input.Next(ctx)
		if err != nil {
			return err
		}
		if ch == nil {
			break
		}
		chunks = append(chunks, ch)
		total += ch.NumRows()
	}
	if total == 0 {
		return nil
	}

	cols := make([]*column.Column, s.schema.Len())
	for i, f := range s.schema.Fields() {
		b := column.NewBuilder(f.Name, f.Type, total)
		for _, ch := range chunks {
			col, _ := ch.ColumnByName(f.Name)
			for row := 0; row < col.Len(); row++ {
				if err := b.AppendValue(col.Value(row)); err != nil {
					return err
				}
			}
		}
		cols[i] = b.Finish()
	}
	combined, err := column.NewChunk(cols...)
	if err != nil {
		return err
	}
	s.sorted = combined

	keyCols := make([]*column.Column, len(s.keys))
	for i, name := range s.keys {
		keyCols[i], _ = combined.ColumnByName(name)
	}
	s.order = make([]int, total)
	for i := range s.order {
		s.order[i] = i
	}
	sort.SliceStable(s.order, func(a, b int) bool {
		ra, rb := s.order[a], s.order[b]
		for k, col := range keyCols {
			cmp := compareAt(col, ra, rb)
			if cmp == 0 {
				continue
			}
			// Nulls stay first even under a descending key.
			if s.descending[k] && !col.IsNull(ra) && !col.IsNull(rb) {
				cmp = -cmp
			}
			return cmp < 0
		}
		return false
	})
	return nil
}

func (s *sortOp) Close() error {
	s.sorted = nil
	s.order = nil
	return s.input.Close()
}
