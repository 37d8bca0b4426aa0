// Package exec provides the background-task-executor abstraction used
// throughout this module's concurrency model: something that schedules
// long-running loops and short work items without requiring every
// caller to know whether the host process is multi-threaded.
package exec

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/intelligentplant/appstoreconnect-adapters-core/rlog"
)

// Executor schedules fn to run, either concurrently or inline depending
// on the implementation. Callers must treat Go as fire-and-forget;
// cancellation is communicated through ctx, not through Executor.
type Executor interface {
	// Go schedules fn. fn must return when ctx is done.
	Go(ctx context.Context, fn func(ctx context.Context))
}

// GoroutineExecutor runs each fn on its own goroutine. It is the default
// used by every component in this module unless the caller supplies a
// SynchronousExecutor for tests or single-threaded hosts.
type GoroutineExecutor struct {
	wg  sync.WaitGroup
	log zerolog.Logger
}

// NewGoroutineExecutor creates a GoroutineExecutor. log may be nil, in
// which case rlog's process-wide default is used.
func NewGoroutineExecutor(log *zerolog.Logger) *GoroutineExecutor {
	return &GoroutineExecutor{log: rlog.WithLogger(log, "exec")}
}

// Go launches fn on a new goroutine. If fn is a long-running loop that
// panics, it is restarted with exponential backoff rather than being
// allowed to silently vanish, using backoff's ExponentialBackOff policy
// to make a background loop resilient to transient failure.
func (e *GoroutineExecutor) Go(ctx context.Context, fn func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runWithRestart(ctx, fn)
	}()
}

func (e *GoroutineExecutor) runWithRestart(ctx context.Context, fn func(ctx context.Context)) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0 // retry indefinitely until ctx is done

	for {
		if ctx.Err() != nil {
			return
		}
		panicked := e.runOnce(ctx, fn)
		if !panicked {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(b.NextBackOff()):
		}
	}
}

func (e *GoroutineExecutor) runOnce(ctx context.Context, fn func(ctx context.Context)) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			e.log.Error().Interface("panic", r).Msg("background task panicked, restarting")
		}
	}()
	fn(ctx)
	return false
}

// Wait blocks until every fn scheduled via Go has returned, letting a
// caller confirm that its loops have observed cancellation. No
// component in this module calls it during its own Shutdown.
func (e *GoroutineExecutor) Wait() {
	e.wg.Wait()
}

// SynchronousExecutor runs fn inline on the calling goroutine, letting
// a single-threaded host serialize all tasks onto one goroutine without
// violating any contract. It is primarily useful in tests that want
// deterministic ordering.
type SynchronousExecutor struct{}

// Go runs fn synchronously and returns once fn returns.
func (SynchronousExecutor) Go(ctx context.Context, fn func(ctx context.Context)) {
	fn(ctx)
}
