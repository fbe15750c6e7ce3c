package exec

import (
	"context"
	"sync"

	"github.com/vegasq/lazyframe/column"
)

// parallelMapOp runs a stateless per-chunk transform on a pool of
// workers. Output chunk order follows completion order, so the engine
// only installs it when the caller has not asked for order to be
// maintained.
type parallelMapOp struct {
	q     *query
	inner *mapOp

	cancel  context.CancelFunc
	results chan parallelResult
	started bool
	drained bool
}

type parallelResult struct {
	chunk *column.Chunk
	err   error
}

func newParallelMap(q *query, inner *mapOp) *parallelMapOp {
	return &parallelMapOp{q: q, inner: inner}
}

func (p *parallelMapOp) Schema() *column.Schema { return p.inner.schema }

func (p *parallelMapOp) Open(ctx context.Context) error {
	return p.inner.input.Open(ctx)
}

// start launches one feeder pulling input chunks and a worker pool
// applying the transform. The feeder is the only goroutine touching
// the upstream operator.
func (p *parallelMapOp) start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	work := make(chan *column.Chunk, p.q.opts.Parallelism)
	p.results = make(chan parallelResult, p.q.opts.Parallelism)

	var wg sync.WaitGroup
	for i := 0; i < p.q.opts.Parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ch := range work {
				out, err := p.inner.fn(ch)
				select {
				case p.results <- parallelResult{chunk: out, err: err}:
				case <-ctx.Done():
					return
				}
				if err != nil {
					return
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(work)
		for {
			ch, err := p.inner.input.Next(ctx)
			if err != nil {
				select {
				case p.results <- parallelResult{err: err}:
				case <-ctx.Done():
				}
				return
			}
			if ch == nil {
				return
			}
			select {
			case work <- ch:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(p.results)
	}()
}

func (p *parallelMapOp) Next(ctx context.Context) (*column.Chunk, error) {
	if err := p.q.cancelled(ctx); err != nil {
		return nil, err
	}
	if !p.started {
		p.started = true
		p.start(ctx)
	}
	res, ok := <-p.results
	if !ok {
		p.drained = true
		return nil, nil
	}
	if res.err != nil {
		p.cancel()
		return nil, res.err
	}
	return res.chunk, nil
}

func (p *parallelMapOp) Close() error {
	if p.cancel != nil {
		p.cancel()
		if !p.drained {
			// Unblock any worker parked on the results channel.
			for range p.results {
			}
		}
	}
	return p.inner.input.Close()
}
