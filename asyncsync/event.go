package asyncsync

import (
	"sync"

	"github.com/netcore-go/netcore/neterr"
	"github.com/netcore-go/netcore/reactor"
)

// Event is a cancellable broadcast: any number of coroutines can Wait, and
// a single Emit resumes every one of them with the same value. Unlike a
// closed Go channel, an Event can be emitted more than once — each Emit
// only affects waiters parked since the previous Emit or Cancel, since a
// resumed waiter's Wait call has already returned.
type Event[T any] struct {
	rt      *reactor.Runtime
	mu      sync.Mutex
	waiters reactor.WaiterQueue
}

// NewEvent creates an Event[T] whose waiters are scheduled on rt.
func NewEvent[T any](rt *reactor.Runtime) *Event[T] {
	return &Event[T]{rt: rt}
}

// Wait suspends the calling goroutine until the next Emit or Cancel.
func (e *Event[T]) Wait() (T, error) {
	w := e.rt.NewWaiter()
	e.mu.Lock()
	e.waiters.Push(w)
	e.mu.Unlock()

	var zero T
	val, err := w.Wait()
	if err != nil {
		return zero, err
	}
	v, _ := val.(T)
	return v, nil
}

// Emit stores v into every currently-waiting coroutine's out-slot and
// schedules them all via the runtime's pending queue, so the emitting
// goroutine never synchronously re-enters a listener's continuation.
func (e *Event[T]) Emit(v T) {
	e.mu.Lock()
	waiters := e.drainLocked()
	e.mu.Unlock()
	for _, w := range waiters {
		e.rt.Schedule(w, v)
	}
}

// Cancel fails every currently-waiting coroutine with a CancelledError,
// scheduled the same way Emit schedules a value.
func (e *Event[T]) Cancel(reason string) {
	e.mu.Lock()
	waiters := e.drainLocked()
	e.mu.Unlock()
	for _, w := range waiters {
		e.rt.ScheduleError(w, &neterr.CancelledError{Reason: reason})
	}
}

func (e *Event[T]) drainLocked() []*reactor.Waiter {
	var out []*reactor.Waiter
	for {
		w, ok := e.waiters.Pop()
		if !ok {
			break
		}
		out = append(out, w)
	}
	return out
}
