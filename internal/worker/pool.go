// Package worker runs background tasks under a shared lifecycle: bounded
// concurrency, panic containment and a cancellable drain on shutdown.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"pulse/pkg/logging"
)

var ErrPoolClosed = errors.New("worker pool is shut down")

// Pool is a supervised task pool. Tasks receive the pool's context, which is
// cancelled by Shutdown.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	logger logging.Logger

	mu     sync.Mutex
	closed bool

	running atomic.Int64
	panics  atomic.Int64
	onPanic func(task string)
}

func NewPool(size int, logger logging.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		ctx:    ctx,
		cancel: cancel,
		sem:    semaphore.NewWeighted(int64(size)),
		logger: logger,
	}
}

// OnPanic registers a callback run after a task panic is recovered. It must
// be set before the first task is scheduled.
func (p *Pool) OnPanic(fn func(task string)) *Pool {
	p.onPanic = fn
	return p
}

// Go schedules fn without blocking the caller. The task waits for a free
// slot; if the pool shuts down first it never runs.
func (p *Pool) Go(name string, fn func(ctx context.Context)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			p.logger.WithField("task", name).Debug("Task dropped before start: pool shutting down")
			return
		}
		defer p.sem.Release(1)

		p.running.Add(1)
		defer p.running.Add(-1)
		p.run(name, fn)
	}()
	return nil
}

func (p *Pool) run(name string, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.WithFields(logging.Fields{
				"task":  name,
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			}).Error("Worker task panic")
			if p.onPanic != nil {
				p.onPanic(name)
			}
		}
	}()
	fn(p.ctx)
}

// Running returns the number of tasks currently executing
func (p *Pool) Running() int64 {
	return p.running.Load()
}

// Panics returns how many tasks have panicked since the pool started
func (p *Pool) Panics() int64 {
	return p.panics.Load()
}

// Shutdown stops accepting tasks, cancels the running ones and waits for
// them to return or for ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool drain: %w", ctx.Err())
	}
}
