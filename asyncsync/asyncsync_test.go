package asyncsync_test

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netcore-go/netcore/asyncsync"
	"github.com/netcore-go/netcore/reactor"
)

// runOnReactor spins up a Runtime, runs root to completion, and stops the
// loop once root returns, mirroring the teacher's pattern of driving a
// loop-under-test from a single root task and synchronizing on its exit.
func runOnReactor(t *testing.T, root func(rt *reactor.Runtime)) {
	t.Helper()
	rt, err := reactor.New()
	require.NoError(t, err)
	defer rt.Close()

	done := make(chan struct{})
	err = rt.Run(func(rt *reactor.Runtime) {
		defer close(done)
		root(rt)
	})
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("root task never completed")
	}
}

func TestMutexFIFOHandoff(t *testing.T) {
	const n = 10
	runOnReactor(t, func(rt *reactor.Runtime) {
		m := asyncsync.NewMutex(rt)

		holder, err := m.Lock()
		require.NoError(t, err)

		var mu sync.Mutex
		var order []int
		var wg sync.WaitGroup
		wg.Add(n)

		for i := 0; i < n; i++ {
			i := i
			rt.Spawn(func(rt *reactor.Runtime) {
				defer wg.Done()
				g, err := m.Lock()
				require.NoError(t, err)
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				g.Unlock()
			})
			// Yield so each lock attempt enqueues in launch order before the
			// next one starts, giving the test a deterministic expected order.
			require.NoError(t, rt.Yield())
		}

		holder.Unlock()
		wg.Wait()

		sorted := append([]int(nil), order...)
		sort.Ints(sorted)
		assert.Equal(t, sorted, order, "each waiter must acquire exactly once, in FIFO order")
		assert.Len(t, order, n)
	})
}

func TestEventEmitBroadcastsToAllWaiters(t *testing.T) {
	runOnReactor(t, func(rt *reactor.Runtime) {
		ev := asyncsync.NewEvent[int](rt)

		results := make(chan int, 3)
		for i := 0; i < 3; i++ {
			rt.Spawn(func(rt *reactor.Runtime) {
				v, err := ev.Wait()
				require.NoError(t, err)
				results <- v
			})
		}
		require.NoError(t, rt.Yield())

		ev.Emit(42)

		for i := 0; i < 3; i++ {
			select {
			case v := <-results:
				assert.Equal(t, 42, v)
			case <-time.After(2 * time.Second):
				t.Fatal("listener never woke")
			}
		}
	})
}

func TestEventCancelFailsWaiters(t *testing.T) {
	runOnReactor(t, func(rt *reactor.Runtime) {
		ev := asyncsync.NewEvent[int](rt)
		errs := make(chan error, 1)
		rt.Spawn(func(rt *reactor.Runtime) {
			_, err := ev.Wait()
			errs <- err
		})
		require.NoError(t, rt.Yield())

		ev.Cancel("shutting down")

		select {
		case err := <-errs:
			require.Error(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("cancelled listener never woke")
		}
	})
}

func TestCounterWaitZero(t *testing.T) {
	runOnReactor(t, func(rt *reactor.Runtime) {
		c := asyncsync.NewCounter(rt)
		assert.NoError(t, c.WaitZero(), "WaitZero on an already-zero counter must return immediately")

		g1 := c.Inc()
		g2 := c.Inc()
		assert.Equal(t, 2, c.Value())

		drained := make(chan struct{})
		rt.Spawn(func(rt *reactor.Runtime) {
			require.NoError(t, c.WaitZero())
			close(drained)
		})
		require.NoError(t, rt.Yield())

		g1.Done()
		select {
		case <-drained:
			t.Fatal("drain must not complete until every guard is Done")
		case <-time.After(50 * time.Millisecond):
		}

		g2.Done()
		select {
		case <-drained:
		case <-time.After(2 * time.Second):
			t.Fatal("drain never completed after last guard was Done")
		}
	})
}
