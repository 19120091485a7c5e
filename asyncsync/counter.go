package asyncsync

import (
	"sync"

	"github.com/netcore-go/netcore/reactor"
)

// Counter is a monotonic-to-zero reference counter used by server to track
// in-flight connection handlers: Inc acquires a guard, the guard's Done
// decrements, and any goroutine parked in WaitZero resumes once the count
// returns to zero (including immediately, if it was already zero).
type Counter struct {
	rt      *reactor.Runtime
	mu      sync.Mutex
	n       int
	waiters reactor.WaiterQueue
}

// NewCounter creates a Counter whose drain waiters are scheduled on rt.
func NewCounter(rt *reactor.Runtime) *Counter {
	return &Counter{rt: rt}
}

// CounterGuard represents one held increment. Call Done exactly once.
type CounterGuard struct {
	c    *Counter
	done bool
}

// Inc increments the counter and returns a guard.
func (c *Counter) Inc() *CounterGuard {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return &CounterGuard{c: c}
}

// Value returns the current count.
func (c *Counter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Done releases the guard's increment. If the count reaches zero, every
// goroutine parked in WaitZero is scheduled for resumption. Idempotent.
func (g *CounterGuard) Done() {
	if g.done {
		return
	}
	g.done = true

	c := g.c
	c.mu.Lock()
	c.n--
	var waiters []*reactor.Waiter
	if c.n == 0 {
		for {
			w, ok := c.waiters.Pop()
			if !ok {
				break
			}
			waiters = append(waiters, w)
		}
	}
	c.mu.Unlock()

	for _, w := range waiters {
		c.rt.Schedule(w, nil)
	}
}

// WaitZero suspends the calling goroutine until the count is (or becomes)
// zero.
func (c *Counter) WaitZero() error {
	c.mu.Lock()
	if c.n == 0 {
		c.mu.Unlock()
		return nil
	}
	w := c.rt.NewWaiter()
	c.waiters.Push(w)
	c.mu.Unlock()

	_, err := w.Wait()
	return err
}
