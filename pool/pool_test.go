package pool_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netcore-go/netcore/pool"
	"github.com/netcore-go/netcore/reactor"
)

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
	<-done
}

type counterItem struct {
	id int
}

func TestPoolCapacitySuspendsThenRecyclesItem(t *testing.T) {
	runOnReactor(t, func(rt *reactor.Runtime) {
		var nextID atomic.Int32
		p := pool.New(rt, 2, func() (*counterItem, error) {
			return &counterItem{id: int(nextID.Add(1))}, nil
		})

		h1, err := p.Checkout()
		require.NoError(t, err)
		h2, err := p.Checkout()
		require.NoError(t, err)

		thirdDone := make(chan struct{})
		var h3 *pool.Handle[*counterItem]
		var thirdErr error
		rt.Spawn(func(rt *reactor.Runtime) {
			defer close(thirdDone)
			h3, thirdErr = p.Checkout()
		})

		// Give the third checkout a chance to reach the suspend point
		// before releasing capacity.
		require.NoError(t, rt.Yield())
		time.Sleep(10 * time.Millisecond)

		select {
		case <-thirdDone:
			t.Fatal("third checkout must not complete before a checkin frees capacity")
		default:
		}

		h1.Release()
		<-thirdDone

		require.NoError(t, thirdErr)
		assert.Equal(t, h1.Value().id, h3.Value().id, "the third checkout must receive the recycled item, not a new one")

		h2.Release()
		h3.Release()
	})
}

func TestPoolCheckoutRejectsStaleItems(t *testing.T) {
	runOnReactor(t, func(rt *reactor.Runtime) {
		var nextID atomic.Int32
		p := pool.New(rt, 2,
			func() (*counterItem, error) { return &counterItem{id: int(nextID.Add(1))}, nil },
			pool.WithCheckout[*counterItem](func(c *counterItem) bool { return c.id != 1 }),
		)

		h1, err := p.Checkout()
		require.NoError(t, err)
		assert.Equal(t, 1, h1.Value().id)
		h1.Release() // cached, but id==1 so the next checkout must reject and discard it

		h2, err := p.Checkout()
		require.NoError(t, err)
		assert.NotEqual(t, 1, h2.Value().id)
		h2.Release()
	})
}

func TestPoolCheckinPredicateDiscardsRejectedItems(t *testing.T) {
	runOnReactor(t, func(rt *reactor.Runtime) {
		var nextID atomic.Int32
		p := pool.New(rt, 2,
			func() (*counterItem, error) { return &counterItem{id: int(nextID.Add(1))}, nil },
			pool.WithCheckin[*counterItem](func(c *counterItem) bool { return false }),
		)

		h1, err := p.Checkout()
		require.NoError(t, err)
		h1.Release()

		assert.Equal(t, 0, p.Len(), "checkin rejection must discard rather than cache the item")

		h2, err := p.Checkout()
		require.NoError(t, err)
		assert.NotEqual(t, h1.Value().id, h2.Value().id)
		h2.Release()
	})
}
