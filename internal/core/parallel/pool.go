// Package parallel provides the shared fork-join scheduler used by the
// comparison engines.
//
// A single Pool is shared by every directory level of a run. Work items that
// find a free slot run on a new goroutine; the rest run inline on the caller.
// Because acquiring a slot never blocks, nested ForEach calls cannot
// deadlock however deep the tree is, and the number of goroutines executing
// work at once never exceeds the configured worker count.
package parallel

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of concurrently active workers
type Pool struct {
	workers int
	sem     *semaphore.Weighted

	active atomic.Int64
	peak   atomic.Int64
}

// NewPool creates a pool allowing maxWorkers concurrent workers. The calling
// goroutine counts as one. maxWorkers <= 0 means runtime.NumCPU().
func NewPool(maxWorkers int) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU()
	}
	return &Pool{
		workers: maxWorkers,
		sem:     semaphore.NewWeighted(int64(maxWorkers - 1)),
	}
}

// Workers returns the configured degree of parallelism
func (p *Pool) Workers() int {
	return p.workers
}

// Peak returns the highest number of goroutines seen executing work at
// once, the calling goroutine included.
func (p *Pool) Peak() int {
	return int(p.peak.Load()) + 1
}

// ForEach runs fn for every index in [0, n) and waits for all of them.
// The first error cancels the context passed to the remaining items and is
// returned. ctx cancellation stops scheduling new items.
func (p *Pool) ForEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if n == 0 {
		return ctx.Err()
	}

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(cctx)

	var inlineErr error
	for i := 0; i < n; i++ {
		if err := gctx.Err(); err != nil {
			break
		}

		i := i
		if p.sem.TryAcquire(1) {
			g.Go(func() error {
				defer p.sem.Release(1)
				p.enter()
				defer p.active.Add(-1)
				return fn(gctx, i)
			})
			continue
		}

		if err := fn(gctx, i); err != nil {
			inlineErr = err
			cancel()
			break
		}
	}

	waitErr := g.Wait()
	switch {
	case inlineErr != nil && (waitErr == nil || !isContextErr(inlineErr)):
		return inlineErr
	case waitErr != nil:
		// A worker's failure cancelled the inline item; report the cause
		return waitErr
	default:
		// Items may have been skipped because the parent was cancelled
		return ctx.Err()
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (p *Pool) enter() {
	n := p.active.Add(1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			return
		}
	}
}
