// Package subchannel implements the per-subscriber value delivery
// primitive: a bounded queue with drop-newest-on-full backpressure and
// optional rate-limited emission.
package subchannel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/intelligentplant/appstoreconnect-adapters-core/exec"
	"github.com/intelligentplant/appstoreconnect-adapters-core/rlog"
)

// Channel delivers a sequence of values of type T to exactly one
// consumer. Publish never blocks the publisher: when the queue is full,
// the newest value is dropped and PublishFailed is counted.
type Channel[T any] struct {
	id      int64
	ctx     context.Context
	cause   context.CancelFunc
	cleanup func()
	cleanupOnce sync.Once

	// mu guards queue against a send racing Cancel's close: RLock is held
	// for the duration of a send so Cancel's Lock cannot close the queue
	// out from under an in-flight "case c.queue <- value" select.
	mu     sync.RWMutex
	closed bool

	capacity int
	queue    chan T

	publishInterval time.Duration
	pending         atomic.Pointer[T]
	pendingSet      atomic.Bool

	publishFailed atomic.Int64

	log zerolog.Logger
}

// Config configures a new Channel.
type Config struct {
	// ID identifies the channel for logging purposes only.
	ID int64
	// PublishInterval, if > 0, switches the channel into rate-limited
	// mode: only the most-recently-published value is kept, and a
	// background loop emits it at most once per interval.
	PublishInterval time.Duration
	// Capacity bounds the internal queue. <= 0 selects a fixed internal
	// buffer of 4096 values; the queue is not unbounded, and once that
	// buffer is full Publish drops the newest value as it does for an
	// explicit capacity.
	Capacity int
	// Linked is a set of parent contexts; if any of them is done, the
	// channel is cancelled.
	Linked []context.Context
	// Cleanup is invoked exactly once, when the channel is cancelled.
	Cleanup func()
	Log     *zerolog.Logger
}

// New constructs a Channel and, if PublishInterval > 0, starts its
// rate-limiting loop on ex.
func New[T any](parent context.Context, ex exec.Executor, cfg Config) *Channel[T] {
	ctx, cancel := context.WithCancel(parent)

	c := &Channel[T]{
		id:              cfg.ID,
		ctx:             ctx,
		cause:           cancel,
		cleanup:         cfg.Cleanup,
		capacity:        cfg.Capacity,
		publishInterval: cfg.PublishInterval,
		log:             rlog.WithLogger(cfg.Log, "subchannel").With().Int64("subscription_id", cfg.ID).Logger(),
	}

	if cfg.Capacity > 0 {
		c.queue = make(chan T, cfg.Capacity)
	} else {
		c.queue = make(chan T, 4096)
	}

	for _, l := range cfg.Linked {
		l := l
		go func() {
			select {
			case <-l.Done():
				c.Cancel()
			case <-ctx.Done():
			}
		}()
	}

	if cfg.PublishInterval > 0 {
		ex.Go(ctx, c.runRateLimiter)
	}

	return c
}

// Publish attempts to enqueue value for the consumer. It returns false,
// without blocking, if the channel has been cancelled or (in the
// non-rate-limited case) the queue is full.
func (c *Channel[T]) Publish(value T) bool {
	if c.ctx.Err() != nil {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}

	if c.publishInterval > 0 {
		v := value
		c.pending.Store(&v)
		c.pendingSet.Store(true)
		return true
	}

	select {
	case c.queue <- value:
		return true
	default:
		c.publishFailed.Add(1)
		return false
	}
}

// PublishFailedCount reports how many values were dropped due to a full
// queue, counting both Publish calls and rate-limited emissions.
func (c *Channel[T]) PublishFailedCount() int64 {
	return c.publishFailed.Load()
}

// Reader returns the channel's delivery end. It is closed when Cancel
// is called; ranging over it is the idiomatic way to consume a Channel.
func (c *Channel[T]) Reader() <-chan T {
	return c.queue
}

// Cancel idempotently trips the cancellation signal, closes the reader,
// and invokes the cleanup hook exactly once.
func (c *Channel[T]) Cancel() {
	c.cause()
	c.cleanupOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.queue)
		c.mu.Unlock()
		if c.cleanup != nil {
			c.cleanup()
		}
	})
}

// Done reports the channel's cancellation signal, for callers composing
// their own select loops.
func (c *Channel[T]) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *Channel[T]) runRateLimiter(ctx context.Context) {
	ticker := time.NewTicker(c.publishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.pendingSet.CompareAndSwap(true, false) {
				continue
			}
			v := c.pending.Load()
			if v == nil {
				continue
			}
			c.mu.RLock()
			if !c.closed {
				select {
				case c.queue <- *v:
				default:
					c.publishFailed.Add(1)
					c.log.Warn().Msg("rate-limited emission dropped: consumer queue full")
				}
			}
			c.mu.RUnlock()
		}
	}
}
