package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
)

func TestPoolRunsTasks(t *testing.T) {
	logger, _ := logrustest.NewNullLogger()
	p := NewPool(4, logger)

	var wg sync.WaitGroup
	var count atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		if err := p.Go("count", func(context.Context) {
			defer wg.Done()
			count.Add(1)
		}); err != nil {
			t.Fatalf("Go: %v", err)
		}
	}
	wg.Wait()

	if got := count.Load(); got != 10 {
		t.Fatalf("expected 10 tasks to run, got %d", got)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	logger, _ := logrustest.NewNullLogger()
	p := NewPool(2, logger)

	release := make(chan struct{})
	var peak, current atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		_ = p.Go("block", func(context.Context) {
			defer wg.Done()
			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			current.Add(-1)
		})
	}

	time.Sleep(50 * time.Millisecond)
	if got := p.Running(); got != 2 {
		t.Fatalf("expected 2 running tasks, got %d", got)
	}
	close(release)
	wg.Wait()

	if got := peak.Load(); got > 2 {
		t.Fatalf("concurrency exceeded bound: %d", got)
	}
	_ = p.Shutdown(context.Background())
}

func TestPoolRecoversPanics(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()
	p := NewPool(1, logger)

	exploded := make(chan struct{})
	_ = p.Go("explode", func(context.Context) {
		defer close(exploded)
		panic("boom")
	})
	<-exploded

	done := make(chan struct{})
	_ = p.Go("after", func(context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool stopped running tasks after a panic")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if p.Panics() != 1 {
		t.Fatalf("expected 1 recorded panic, got %d", p.Panics())
	}
	found := false
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Data["task"] == "explode" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected panic to be logged with the task name")
	}
}

func TestPoolShutdownCancelsTasks(t *testing.T) {
	logger, _ := logrustest.NewNullLogger()
	p := NewPool(1, logger)

	started := make(chan struct{})
	var cancelled atomic.Bool
	_ = p.Go("wait", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !cancelled.Load() {
		t.Fatal("task did not observe cancellation")
	}

	if err := p.Go("late", func(context.Context) {}); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}

func TestPoolShutdownTimesOut(t *testing.T) {
	logger, _ := logrustest.NewNullLogger()
	p := NewPool(1, logger)

	stuck := make(chan struct{})
	defer close(stuck)
	started := make(chan struct{})
	_ = p.Go("stuck", func(context.Context) {
		close(started)
		<-stuck
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestPoolPanicHook(t *testing.T) {
	logger, _ := logrustest.NewNullLogger()
	hooked := make(chan string, 1)
	p := NewPool(1, logger).OnPanic(func(task string) { hooked <- task })

	_ = p.Go("poll:vid-1", func(context.Context) { panic("bad label") })

	select {
	case task := <-hooked:
		if task != "poll:vid-1" {
			t.Fatalf("unexpected task in panic hook: %q", task)
		}
	case <-time.After(time.Second):
		t.Fatal("panic hook not called")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
