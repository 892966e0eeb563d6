// Package performance provides concurrency utilities shared by the analytics
// and provider layers: a worker pool, a batch processor and a token-bucket
// rate limiter.
package performance

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrPoolStopped is returned when work is handed to a pool that is not running.
var ErrPoolStopped = errors.New("worker pool is not running")

// WorkerPool runs submitted tasks on a fixed number of goroutines.
type WorkerPool struct {
	workers int
	queue   chan func()
	wg      sync.WaitGroup

	// mu guards closing queue against concurrent sends.
	mu        sync.RWMutex
	running   atomic.Bool
	submitted atomic.Uint64
	completed atomic.Uint64
}

// NewWorkerPool creates a pool of workers goroutines. Zero or fewer
// workers means one per CPU. Start must be called before submitting.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &WorkerPool{
		workers: workers,
		queue:   make(chan func(), workers*16),
	}
}

// Start launches the workers. Starting a running pool does nothing.
func (p *WorkerPool) Start() {
	if p.running.Swap(true) {
		return
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range p.queue {
				task()
				p.completed.Add(1)
			}
		}()
	}
}

// Submit queues task without blocking. It reports false when the pool is
// not running or the queue is full.
func (p *WorkerPool) Submit(task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running.Load() {
		return false
	}
	select {
	case p.queue <- task:
		p.submitted.Add(1)
		return true
	default:
		return false
	}
}

// SubmitContext queues task, waiting for queue space until ctx is done.
// It reports false when the pool is not running or ctx ended first.
func (p *WorkerPool) SubmitContext(ctx context.Context, task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running.Load() {
		return false
	}
	select {
	case p.queue <- task:
		p.submitted.Add(1)
		return true
	case <-ctx.Done():
		return false
	}
}

// ForEach calls fn(i) for every i in [0, n) on the pool and waits for the
// calls to return. Calls already queued still run when ctx ends; the
// remaining indexes are skipped and ctx.Err() is returned. A nil pool runs
// the calls on the caller's goroutine.
func (p *WorkerPool) ForEach(ctx context.Context, n int, fn func(i int)) error {
	if p == nil {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(i)
		}
		return nil
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		if !p.SubmitContext(ctx, func() {
			defer wg.Done()
			fn(i)
		}) {
			wg.Done()
			if err := ctx.Err(); err != nil {
				return err
			}
			return ErrPoolStopped
		}
	}
	return nil
}

// Stop stops accepting tasks, runs the queued ones and waits for the
// workers to exit. Stopping a stopped pool does nothing.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if !p.running.Swap(false) {
		p.mu.Unlock()
		return
	}
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats returns pool statistics.
func (p *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		Running:    p.running.Load(),
		TasksTotal: p.submitted.Load(),
		TasksDone:  p.completed.Load(),
		QueueLen:   len(p.queue),
	}
}

// PoolStats contains worker pool statistics.
type PoolStats struct {
	Workers    int
	Running    bool
	TasksTotal uint64
	TasksDone  uint64
	QueueLen   int
}
