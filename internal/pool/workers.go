// Package pool provides the shared worker and buffer pools behind
// CPU-bound frame work.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("worker pool is closed")
	// ErrBusy is returned when every worker is occupied and the queue
	// is full. The caller decides whether to run inline or drop.
	ErrBusy = errors.New("worker pool is busy")
)

// Task is one unit of pooled work.
type Task func(ctx context.Context) error

// WorkerPool runs CPU-bound tasks on a fixed crew of workers. Frame
// re-encoding submits here so concurrent sessions share one budget
// instead of each fanning out to every core. Completion signaling is
// the caller's: wrap tasks with a WaitGroup when you need to join.
type WorkerPool struct {
	queue   chan job
	wg      sync.WaitGroup
	onPanic func(any)

	mu     sync.RWMutex
	closed bool

	submitted atomic.Int64
	done      atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	running   atomic.Int32
}

type job struct {
	ctx  context.Context
	task Task
}

// WorkerPoolOptions configures a pool.
type WorkerPoolOptions struct {
	// Workers is the crew size. Values below 1 become 1.
	Workers int
	// QueueDepth is how many tasks may wait for a worker.
	QueueDepth int
	// OnPanic observes recovered task panics. A panicking task counts
	// as failed either way.
	OnPanic func(any)
}

// NewWorkerPool starts the crew immediately. Parked workers cost a few
// kilobytes of stack each; there is no lazy spawning to get wrong.
func NewWorkerPool(opts WorkerPoolOptions) *WorkerPool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueDepth < 0 {
		opts.QueueDepth = 0
	}
	p := &WorkerPool{
		queue:   make(chan job, opts.QueueDepth),
		onPanic: opts.OnPanic,
	}
	for i := 0; i < opts.Workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

// Submit enqueues a task without blocking. The task runs with the
// context it was submitted under, so session cancellation reaches
// pooled work the same way it reaches inline work.
func (p *WorkerPool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	select {
	case p.queue <- job{ctx: ctx, task: task}:
		p.submitted.Add(1)
		return nil
	default:
		p.rejected.Add(1)
		return ErrBusy
	}
}

func (p *WorkerPool) work() {
	defer p.wg.Done()
	for j := range p.queue {
		p.running.Add(1)
		if err := p.execute(j); err != nil {
			p.failed.Add(1)
		} else {
			p.done.Add(1)
		}
		p.running.Add(-1)
	}
}

func (p *WorkerPool) execute(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if p.onPanic != nil {
				p.onPanic(r)
			}
			err = errors.New("task panicked")
		}
	}()
	return j.task(j.ctx)
}

// Close stops intake, drains queued tasks, and waits for the crew.
// Safe to call more than once.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.queue)
	p.wg.Wait()
}

// Stats returns a point-in-time snapshot of pool activity.
func (p *WorkerPool) Stats() WorkerPoolStats {
	return WorkerPoolStats{
		Running:   int(p.running.Load()),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Done:      p.done.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// WorkerPoolStats describes pool activity.
type WorkerPoolStats struct {
	Running   int   `json:"running"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Done      int64 `json:"done"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}
