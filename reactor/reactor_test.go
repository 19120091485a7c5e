package reactor_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/netcore-go/netcore/reactor"
)

func pipeFDs() (r, w int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return 0, 0, err
	}
	return fds[0], fds[1], nil
}

func closeFDs(fds ...int) {
	for _, fd := range fds {
		_ = unix.Close(fd)
	}
}

// TestYieldOrdersBehindAlreadyPendingWaiters exercises the invariant that
// yielding once puts the calling goroutine behind every waiter already in
// the pending queue at the moment of the yield: by construction, a single
// drainPending pass completes queued awaiters in push order before the
// Yield call's own waiter (pushed last) resumes, so by the time Yield
// returns, both earlier waiters must already be resolved — checked here by
// asserting their Wait calls return immediately, with the right values,
// with no further suspension.
func TestYieldOrdersBehindAlreadyPendingWaiters(t *testing.T) {
	rt, err := reactor.New()
	require.NoError(t, err)
	defer rt.Close()

	done := make(chan struct{})
	var v1, v2 any
	var err1, err2 error

	err = rt.Run(func(rt *reactor.Runtime) {
		defer close(done)

		w1 := rt.NewWaiter()
		w2 := rt.NewWaiter()
		rt.Schedule(w1, "a")
		rt.Schedule(w2, "b")

		require.NoError(t, rt.Yield())

		// If Yield had resumed ahead of w1/w2, these would still be
		// legitimately blocking; instead they must already be complete.
		v1, err1 = w1.Wait()
		v2, err2 = w2.Wait()
	})
	require.NoError(t, err)
	<-done

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, "a", v1)
	assert.Equal(t, "b", v2)
}

// TestWaiterQueueResumesInFifoOrder exercises reactor.WaiterQueue's FIFO
// contract directly: Pop always returns the oldest still-pushed Waiter
// first, regardless of how many were pushed before popping begins.
func TestWaiterQueueResumesInFifoOrder(t *testing.T) {
	rt, err := reactor.New()
	require.NoError(t, err)
	defer rt.Close()

	done := make(chan struct{})
	var resumed []int

	err = rt.Run(func(rt *reactor.Runtime) {
		defer close(done)

		var wq reactor.WaiterQueue
		const n = 5
		waiters := make([]*reactor.Waiter, n)
		for i := 0; i < n; i++ {
			waiters[i] = rt.NewWaiter()
			wq.Push(waiters[i])
		}
		assert.Equal(t, n, wq.Len())

		for i := 0; i < n; i++ {
			w, ok := wq.Pop()
			require.True(t, ok)
			rt.Schedule(w, i)
			v, werr := w.Wait()
			require.NoError(t, werr)
			resumed = append(resumed, v.(int))
		}
		assert.True(t, wq.Empty())
	})
	require.NoError(t, err)
	<-done

	assert.Equal(t, []int{0, 1, 2, 3, 4}, resumed)
}

// TestCancelResumesPendingReadReady exercises Event's cancellation
// contract: a goroutine parked in ReadReady resumes with a CancelledError
// as soon as Cancel is called, without requiring Drop first.
func TestCancelResumesPendingReadReady(t *testing.T) {
	rt, err := reactor.New()
	require.NoError(t, err)
	defer rt.Close()

	done := make(chan struct{})
	var readErr error
	var mu sync.Mutex

	err = rt.Run(func(rt *reactor.Runtime) {
		defer close(done)

		r, w, perr := pipeFDs()
		require.NoError(t, perr)
		defer closeFDs(r, w)

		ev, rerr := rt.Register(r)
		require.NoError(t, rerr)

		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			_, e := rt.ReadReady(ev)
			mu.Lock()
			readErr = e
			mu.Unlock()
		}()

		require.NoError(t, rt.Yield())
		rt.Cancel(ev)
		<-readDone
		rt.Drop(ev)
	})
	require.NoError(t, err)
	<-done

	require.Error(t, readErr)
}
