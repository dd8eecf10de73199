package corpus

import (
	"context"
	"sync"
)

// Job is a unit of work submitted to the WorkerPool.
type Job func(ctx context.Context) error

// Pool is the subset of WorkerPool the Scanner depends on, so tests can
// inject failing implementations.
type Pool interface {
	Start(ctx context.Context)
	SubmitCtx(ctx context.Context, job Job) error
	Close()
}

// WorkerPool runs jobs on a fixed number of goroutines. The Scanner uses it
// to read and segment files in parallel.
type WorkerPool struct {
	jobs    chan Job
	wg      sync.WaitGroup
	workers int
	closeMu sync.RWMutex
	closed  bool
	done    chan struct{}
	once    sync.Once
}

// NewWorkerPool creates a pool with the given number of workers and job
// queue capacity.
func NewWorkerPool(workers, queue int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = workers * 2
	}
	return &WorkerPool{
		jobs:    make(chan Job, queue),
		workers: workers,
		done:    make(chan struct{}),
	}
}

// Start launches the workers. They exit when ctx is done or Close is called.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-p.jobs:
					if !ok {
						return
					}
					// Jobs report failures through their own result slots.
					_ = job(ctx)
				}
			}
		}()
	}
}

// Submit enqueues a job, blocking while the queue is full.
func (p *WorkerPool) Submit(job Job) error {
	return p.SubmitCtx(context.Background(), job)
}

// SubmitCtx enqueues a job but returns early if ctx is canceled or the pool
// is closed while waiting for queue space.
func (p *WorkerPool) SubmitCtx(ctx context.Context, job Job) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPoolClosed
	}
}

// Close stops accepting jobs and waits for the workers to drain the queue.
func (p *WorkerPool) Close() {
	// Release submitters blocked on a full queue before taking the lock.
	p.once.Do(func() { close(p.done) })
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.closeMu.Unlock()
	p.wg.Wait()
}

// ErrPoolClosed is returned if a job is submitted after Close.
var ErrPoolClosed = &PoolError{"worker pool closed"}

// PoolError is a typed error for pool operations.
type PoolError struct{ msg string }

func (e *PoolError) Error() string { return e.msg }
