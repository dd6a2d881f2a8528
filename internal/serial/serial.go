// Package serial provides an unbounded FIFO job queue executed by a single
// worker goroutine. Each skill owns one queue, which is how the runtime
// guarantees that lifecycle hooks, topic/event handlers and dialogue reply
// handlers for the same skill never run concurrently while different skills
// proceed in parallel.
package serial

import (
	"context"
	"sync"
)

// Queue executes submitted jobs one at a time in submission order.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	jobs   []func(context.Context)
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a queue and starts its worker goroutine. The worker runs
// until Close, draining any jobs still queued at that point.
func New() *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{ctx: ctx, cancel: cancel, done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Submit enqueues fn for execution. Returns false if the queue is closed,
// in which case fn will never run.
func (q *Queue) Submit(fn func(ctx context.Context)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.jobs = append(q.jobs, fn)
	q.cond.Signal()
	return true
}

// Close stops accepting jobs. Jobs already queued still run; Done is
// closed once the worker drains them and exits. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.cond.Signal()
	}
	q.mu.Unlock()
}

// Abandon cancels the context passed to running and remaining jobs. Used
// when a drain deadline expires; the worker still runs queued jobs, but
// they observe a cancelled context and should return promptly.
func (q *Queue) Abandon() { q.cancel() }

// Done is closed when the worker has drained the queue after Close.
func (q *Queue) Done() <-chan struct{} { return q.done }

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.jobs) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.jobs) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		fn := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		fn(q.ctx)
	}
}
