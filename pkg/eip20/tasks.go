package eip20

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// taskGroup runs background tasks with bounded concurrency and cancels them
// all on Close.
type taskGroup struct {
	ctx     context.Context
	cancel  context.CancelFunc
	sem     *semaphore.Weighted
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func newTaskGroup(limit int64, timeout time.Duration) *taskGroup {
	ctx, cancel := context.WithCancel(context.Background())
	return &taskGroup{
		ctx:     ctx,
		cancel:  cancel,
		sem:     semaphore.NewWeighted(limit),
		timeout: timeout,
	}
}

// Go queues fn unless the group is closed. Queued tasks wait for a free slot
// in FIFO order and are abandoned if the group closes first. It reports
// whether fn was queued.
func (g *taskGroup) Go(fn func(ctx context.Context)) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.sem.Acquire(g.ctx, 1); err != nil {
			return
		}
		defer g.sem.Release(1)

		ctx := g.ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		fn(ctx)
	}()
	return true
}

// Close cancels running tasks and waits for them to return.
func (g *taskGroup) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	g.cancel()
	g.wg.Wait()
}
