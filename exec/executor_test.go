package exec

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestGoroutineExecutorRunsFn(t *testing.T) {
	c := qt.New(t)
	e := NewGoroutineExecutor(nil)
	done := make(chan struct{})

	e.Go(context.Background(), func(ctx context.Context) {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		c.Fatal("fn was not run")
	}
}

func TestGoroutineExecutorRestartsAfterPanic(t *testing.T) {
	c := qt.New(t)
	e := NewGoroutineExecutor(nil)
	var calls atomic.Int64

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.Go(ctx, func(ctx context.Context) {
		n := calls.Add(1)
		if n == 1 {
			panic("boom")
		}
	})

	deadline := time.Now().Add(time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.Assert(calls.Load() >= 2, qt.IsTrue)
}

func TestGoroutineExecutorStopsOnContextCancel(t *testing.T) {
	c := qt.New(t)
	e := NewGoroutineExecutor(nil)
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	e.Go(ctx, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})

	<-started
	cancel()

	done := make(chan struct{})
	go func() {
		e.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		c.Fatal("executor did not observe cancellation")
	}
}

func TestSynchronousExecutorRunsInline(t *testing.T) {
	c := qt.New(t)
	var ran bool
	SynchronousExecutor{}.Go(context.Background(), func(ctx context.Context) {
		ran = true
	})
	c.Assert(ran, qt.IsTrue)
}
