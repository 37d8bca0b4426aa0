package subchannel

import (
	"context"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/intelligentplant/appstoreconnect-adapters-core/exec"
)

func TestPublishAndRead(t *testing.T) {
	c := qt.New(t)
	ex := exec.NewGoroutineExecutor(nil)
	ch := New[int](context.Background(), ex, Config{Capacity: 4})

	c.Assert(ch.Publish(1), qt.IsTrue)
	c.Assert(ch.Publish(2), qt.IsTrue)

	c.Assert(<-ch.Reader(), qt.Equals, 1)
	c.Assert(<-ch.Reader(), qt.Equals, 2)
}

func TestPublishDropsNewestOnFull(t *testing.T) {
	c := qt.New(t)
	ex := exec.NewGoroutineExecutor(nil)
	ch := New[int](context.Background(), ex, Config{Capacity: 1})

	c.Assert(ch.Publish(1), qt.IsTrue)
	c.Assert(ch.Publish(2), qt.IsFalse)
	c.Assert(ch.PublishFailedCount(), qt.Equals, int64(1))
	c.Assert(<-ch.Reader(), qt.Equals, 1)
}

func TestCancelIsIdempotentAndClosesReader(t *testing.T) {
	c := qt.New(t)
	ex := exec.NewGoroutineExecutor(nil)
	cleanups := 0
	ch := New[int](context.Background(), ex, Config{Capacity: 1, Cleanup: func() { cleanups++ }})

	ch.Cancel()
	ch.Cancel()
	c.Assert(cleanups, qt.Equals, 1)

	_, ok := <-ch.Reader()
	c.Assert(ok, qt.IsFalse)

	c.Assert(ch.Publish(1), qt.IsFalse)
}

func TestRateLimitedEmissionKeepsMostRecent(t *testing.T) {
	c := qt.New(t)
	ex := exec.NewGoroutineExecutor(nil)
	ch := New[int](context.Background(), ex, Config{Capacity: 4, PublishInterval: 20 * time.Millisecond})

	ch.Publish(1)
	ch.Publish(2)
	ch.Publish(3)

	select {
	case v := <-ch.Reader():
		c.Assert(v, qt.Equals, 3)
	case <-time.After(time.Second):
		c.Fatal("timed out waiting for rate-limited emission")
	}

	ch.Cancel()
}

func TestConcurrentPublishDuringCancelNeverPanics(t *testing.T) {
	ex := exec.NewGoroutineExecutor(nil)

	for i := 0; i < 200; i++ {
		ch := New[int](context.Background(), ex, Config{Capacity: 1})

		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 50; j++ {
				ch.Publish(j)
			}
		}()

		go ch.Cancel()

		<-done
		for range ch.Reader() {
		}
	}
}

func TestLinkedCancellationPropagates(t *testing.T) {
	c := qt.New(t)
	ex := exec.NewGoroutineExecutor(nil)
	parent, cancel := context.WithCancel(context.Background())
	ch := New[int](context.Background(), ex, Config{Capacity: 1, Linked: []context.Context{parent}})

	cancel()

	select {
	case <-ch.Done():
	case <-time.After(time.Second):
		c.Fatal("linked cancellation did not propagate")
	}
}
