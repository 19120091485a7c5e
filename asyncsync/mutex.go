// Package asyncsync provides coroutine-aware synchronization primitives
// built directly on reactor's pending-queue and Waiter machinery: a FIFO
// Mutex, a cancellable broadcast Event[T], and a drain-to-zero Counter used
// by server's connection accounting.
package asyncsync

import (
	"sync"

	"github.com/netcore-go/netcore/reactor"
)

// Mutex is a coroutine-aware mutual exclusion lock: Lock suspends the
// calling goroutine (rather than blocking an OS thread) when contended, and
// Unlock hands ownership directly to the next waiter in FIFO order via the
// owning runtime's pending queue, never clearing and re-acquiring the
// locked flag in between.
type Mutex struct {
	rt      *reactor.Runtime
	mu      sync.Mutex
	locked  bool
	waiters reactor.WaiterQueue
}

// NewMutex creates a Mutex whose waiters are scheduled on rt.
func NewMutex(rt *reactor.Runtime) *Mutex {
	return &Mutex{rt: rt}
}

// Guard represents mutex ownership. Call Unlock exactly once to release it.
type Guard struct {
	m        *Mutex
	released bool
}

// Lock acquires the mutex, suspending the caller if it is already held.
// Returns a CancelledError if the runtime force-shuts-down while the caller
// is suspended waiting for the guard.
func (m *Mutex) Lock() (*Guard, error) {
	m.mu.Lock()
	if !m.locked {
		m.locked = true
		m.mu.Unlock()
		return &Guard{m: m}, nil
	}
	w := m.rt.NewWaiter()
	m.waiters.Push(w)
	m.mu.Unlock()

	if _, err := w.Wait(); err != nil {
		return nil, err
	}
	return &Guard{m: m}, nil
}

// Unlock releases the guard. If another goroutine is waiting, ownership
// passes directly to it (the locked flag is never cleared in between);
// otherwise the mutex becomes free. Unlock is idempotent.
func (g *Guard) Unlock() {
	if g.released {
		return
	}
	g.released = true

	m := g.m
	m.mu.Lock()
	next, ok := m.waiters.Pop()
	if !ok {
		m.locked = false
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.rt.Schedule(next, struct{}{})
}
