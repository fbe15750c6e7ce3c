package exec

import (
	"context"
	"strings"

	"github.com/vegasq/lazyframe/column"
	"github.com/vegasq/lazyframe/plan"
	"github.com/vegasq/lazyframe/qerror"
)

// hashJoinOp joins two inputs on equal keys. The right input is the
// build side: it is drained fully into a hash table during Open, and
// left chunks then probe it one at a time. Rows with a null key never
// match; outer variants emit them (and unmatched build rows) padded
// with nulls. Same-named key pairs merge into a single output column
// fed from the probe side on matches and from the build side on
// build-only rows.
type hashJoinOp struct {
	q         *query
	left      Operator
	right     Operator
	schema    *column.Schema
	leftKeys  []string
	rightKeys []string
	joinType  plan.JoinType

	buildChunks  []*column.Chunk
	buildIndex   map[string][]rowRef
	buildMatched [][]bool

	// outputs maps each output column to its originating side.
	outputs []joinOutput

	pending  []*column.Chunk
	leftDone bool
	tailDone bool
}

type rowRef struct {
	chunk int
	row   int
}

type joinOutput struct {
	fromLeft  bool
	name      string
	mergedKey int // right key index feeding this column on build-only rows; -1 otherwise
}

func (j *hashJoinOp) Schema() *column.Schema { return j.schema }

func (j *hashJoinOp) Open(ctx context.Context) error {
	if err := j.left.Open(ctx); err != nil {
		return err
	}
	if err := j.right.Open(ctx); err != nil {
		return err
	}
	j.planOutputs()
	return j.buildTable(ctx)
}

// planOutputs decides, per output column, which side feeds it.
func (j *hashJoinOp) planOutputs() {
	leftSchema := j.left.Schema()
	merged := make(map[string]int)
	for i := range j.leftKeys {
		if j.leftKeys[i] == j.rightKeys[i] {
			merged[j.leftKeys[i]] = i
		}
	}
	j.outputs = make([]joinOutput, j.schema.Len())
	for i, f := range j.schema.Fields() {
		out := joinOutput{name: f.Name, mergedKey: -1}
		if _, _, ok := leftSchema.Lookup(f.Name); ok {
			out.fromLeft = true
			if k, isMerged := merged[f.Name]; isMerged {
				out.mergedKey = k
			}
		}
		j.outputs[i] = out
	}
}

// buildTable drains the build side into the hash table.
func (j *hashJoinOp) buildTable(ctx context.Context) error {
	j.buildIndex = make(map[string][]rowRef)
	for {
		if err := j.q.cancelled(ctx); err != nil {
			return err
		}
		ch, err := j.right.Next(ctx)
		if err != nil {
			return err
		}
		if ch == nil {
			return nil
		}
		keyCols, err := keyColumns(ch, j.rightKeys)
		if err != nil {
			return err
		}
		chunkIdx := len(j.buildChunks)
		j.buildChunks = append(j.buildChunks, ch)
		j.buildMatched = append(j.buildMatched, make([]bool, ch.NumRows()))
		var b strings.Builder
		for row := 0; row < ch.NumRows(); row++ {
			key, ok := joinKey(&b, keyCols, row)
			if !ok {
				continue
			}
			j.buildIndex[key] = append(j.buildIndex[key], rowRef{chunk: chunkIdx, row: row})
		}
	}
}

func (j *hashJoinOp) Next(ctx context.Context) (*column.Chunk, error) {
	for {
		if err := j.q.cancelled(ctx); err != nil {
			return nil, err
		}
		if len(j.pending) > 0 {
			ch := j.pending[0]
			j.pending = j.pending[1:]
			return ch, nil
		}
		if j.leftDone {
			if j.tailDone {
				return nil, nil
			}
			j.tailDone = true
			if err := j.emitBuildOnly(); err != nil {
				return nil, err
			}
			continue
		}
		ch, err := j.left.Next(ctx)
		if err != nil {
			return nil, err
		}
		if ch == nil {
			j.leftDone = true
			continue
		}
		if err := j.probe(ch); err != nil {
			return nil, err
		}
	}
}

// probe matches one probe-side chunk against the hash table and
// queues the resulting output chunks.
func (j *hashJoinOp) probe(ch *column.Chunk) error {
	keyCols, err := keyColumns(ch, j.leftKeys)
	if err != nil {
		return err
	}
	w := j.newWriter()
	var b strings.Builder
	for row := 0; row < ch.NumRows(); row++ {
		key, ok := joinKey(&b, keyCols, row)
		var matches []rowRef
		if ok {
			matches = j.buildIndex[key]
		}
		if len(matches) == 0 {
			if j.joinType == plan.JoinLeft || j.joinType == plan.JoinFull {
				if err := w.append(ch, row, nil, 0); err != nil {
					return err
				}
			}
			continue
		}
		for _, ref := range matches {
			j.buildMatched[ref.chunk][ref.row] = true
			if err := w.append(ch, row, j.buildChunks[ref.chunk], ref.row); err != nil {
				return err
			}
		}
	}
	return w.flush()
}

// emitBuildOnly queues the build-side rows no probe row matched, for
// right and full joins.
func (j *hashJoinOp) emitBuildOnly() error {
	if j.joinType != plan.JoinRight && j.joinType != plan.JoinFull {
		return nil
	}
	w := j.newWriter()
	for chunkIdx, matched := range j.buildMatched {
		for row, m := range matched {
			if m {
				continue
			}
			if err := w.append(nil, 0, j.buildChunks[chunkIdx], row); err != nil {
				return err
			}
		}
	}
	return w.flush()
}

// joinWriter accumulates output rows and flushes full chunks onto the
// pending queue.
type joinWriter struct {
	j        *hashJoinOp
	builders []*column.Builder
	rows     int
}

func (j *hashJoinOp) newWriter() *joinWriter {
	w := &joinWriter{j: j}
	w.reset()
	return w
}

func (w *joinWriter) reset() {
	fields := w.j.schema.Fields()
	w.builders = make([]*column.Builder, len(fields))
	for i, f := range fields {
		w.builders[i] = column.NewBuilder(f.Name, f.Type, w.j.q.opts.ChunkSize)
	}
	w.rows = 0
}

// append writes one output row. Either side may be nil, which fills
// its columns with nulls, except that a merged key column on a
// build-only row is fed from the build side.
func (w *joinWriter) append(left *column.Chunk, leftRow int, right *column.Chunk, rightRow int) error {
	for i, out := range w.j.outputs {
		var src *column.Chunk
		var row int
		name := out.name
		if out.fromLeft {
			src, row = left, leftRow
			if src == nil && out.mergedKey >= 0 {
				src, row = right, rightRow
				name = w.j.rightKeys[out.mergedKey]
			}
		} else {
			src, row = right, rightRow
		}
		if src == nil {
			w.builders[i].AppendNull()
			continue
		}
		col, ok := src.ColumnByName(name)
		if !ok {
			return &qerror.SchemaError{Op: "join", Column: name, Detail: "column missing from chunk"}
		}
		if err := w.builders[i].AppendValue(col.Value(row)); err != nil {
			return err
		}
	}
	w.rows++
	if w.rows >= w.j.q.opts.ChunkSize {
		return w.flush()
	}
	return nil
}

func (w *joinWriter) flush() error {
	if w.rows == 0 {
		return nil
	}
	cols := make([]*column.Column, len(w.builders))
	for i, b := range w.builders {
		cols[i] = b.Finish()
	}
	ch, err := column.NewChunk(cols...)
	if err != nil {
		return err
	}
	w.j.pending = append(w.j.pending, ch)
	w.reset()
	return nil
}

func (j *hashJoinOp) Close() error {
	j.buildChunks = nil
	j.buildIndex = nil
	j.buildMatched = nil
	j.pending = nil
	lerr := j.left.Close()
	rerr := j.right.Close()
	if lerr != nil {
		return lerr
	}
	return rerr
}

// keyColumns resolves the key columns of a chunk by name.
func keyColumns(ch *column.Chunk, names []string) ([]*column.Column, error) {
	cols := make([]*column.Column, len(names))
	for i, name := range names {
		col, ok := ch.ColumnByName(name)
		if !ok {
			return nil, &qerror.SchemaError{Op: "join", Column: name, Detail: "key missing from chunk"}
		}
		cols[i] = col
	}
	return cols, nil
}

// joinKey encodes a row's key values. ok is false when any key value
// is null, which means the row can never match.
func joinKey(b *strings.Builder, keyCols []*column.Column, row int) (string, bool) {
	b.Reset()
	for _, col := range keyCols {
		if col.IsNull(row) {
			return "", false
		}
		appendKeyPart(b, col, row)
	}
	return b.String(), true
}
