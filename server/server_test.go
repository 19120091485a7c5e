package server_test

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netcore-go/netcore/endpoint"
	"github.com/netcore-go/netcore/reactor"
	"github.com/netcore-go/netcore/server"
	"github.com/netcore-go/netcore/socket"
)

type echoContext struct {
	listened atomic.Bool
	closed   atomic.Bool
}

func (c *echoContext) Connection(rt *reactor.Runtime, client *socket.Socket) {
	buf := make([]byte, 4)
	n, err := client.Read(buf)
	if err != nil || n == 0 {
		return
	}
	_, _ = client.Write(buf[:n])
}

func (c *echoContext) Listen(addr endpoint.ResolvedAddr) { c.listened.Store(true) }
func (c *echoContext) Close()                            { c.closed.Store(true) }

func TestServerEchoScenario(t *testing.T) {
	rt, err := reactor.New()
	require.NoError(t, err)
	defer rt.Close()

	sockPath := filepath.Join(t.TempDir(), "echo.sock")
	ep, perr := endpoint.Parse(sockPath)
	require.NoError(t, perr)

	done := make(chan struct{})
	var received []byte
	var clientErr error
	ctx := &echoContext{}

	err = rt.Run(func(rt *reactor.Runtime) {
		defer close(done)

		srv, serr := server.New(rt, ep, ctx)
		require.NoError(t, serr)

		addr, rerr := ep.Resolve()
		require.NoError(t, rerr)
		conn, cerr := socket.Connect(rt, addr)
		require.NoError(t, cerr)

		if _, werr := conn.Write([]byte{0x01, 0x02, 0x03, 0x04}); werr != nil {
			clientErr = werr
			return
		}
		buf := make([]byte, 4)
		n, rerr2 := conn.Read(buf)
		if rerr2 != nil {
			clientErr = rerr2
			return
		}
		received = buf[:n]
		conn.Close()

		require.NoError(t, srv.Close())
	})
	require.NoError(t, err)
	<-done

	require.NoError(t, clientErr)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, received)
	assert.True(t, ctx.listened.Load())
	assert.True(t, ctx.closed.Load())
}

func TestServerGracefulCloseWaitsForInFlightHandler(t *testing.T) {
	rt, err := reactor.New()
	require.NoError(t, err)
	defer rt.Close()

	sockPath := filepath.Join(t.TempDir(), "block.sock")
	ep, perr := endpoint.Parse(sockPath)
	require.NoError(t, perr)

	release := make(chan struct{})
	var handlerStarted, handlerFinished atomic.Bool
	ctx := &blockingContext{release: release, started: &handlerStarted, finished: &handlerFinished}

	done := make(chan struct{})
	var closeErr error

	err = rt.Run(func(rt *reactor.Runtime) {
		defer close(done)

		srv, serr := server.New(rt, ep, ctx)
		require.NoError(t, serr)

		addr, rerr := ep.Resolve()
		require.NoError(t, rerr)
		conn, cerr := socket.Connect(rt, addr)
		require.NoError(t, cerr)
		defer conn.Close()

		_, werr := conn.Write([]byte{0xFF})
		require.NoError(t, werr)

		for !handlerStarted.Load() {
			require.NoError(t, rt.Yield())
		}

		closeFinished := make(chan struct{})
		rt.Spawn(func(rt *reactor.Runtime) {
			defer close(closeFinished)
			closeErr = srv.Close()
		})

		require.NoError(t, rt.Yield())
		assert.False(t, handlerFinished.Load(), "Close must not complete while handler is still running")

		close(release)
		<-closeFinished
	})
	require.NoError(t, err)
	<-done

	require.NoError(t, closeErr)
	assert.True(t, handlerFinished.Load())
}

type blockingContext struct {
	release  chan struct{}
	started  *atomic.Bool
	finished *atomic.Bool
}

func (c *blockingContext) Connection(rt *reactor.Runtime, client *socket.Socket) {
	c.started.Store(true)
	<-c.release
	c.finished.Store(true)
}

func TestServerListBindsAndJoins(t *testing.T) {
	rt, err := reactor.New()
	require.NoError(t, err)
	defer rt.Close()

	dir := t.TempDir()
	endpoints := []endpoint.Endpoint{
		mustParse(t, filepath.Join(dir, "a.sock")),
		mustParse(t, filepath.Join(dir, "b.sock")),
	}

	done := make(chan struct{})
	var bound int

	err = rt.Run(func(rt *reactor.Runtime) {
		defer close(done)

		var mu sync.Mutex
		var bindErrs int
		list := server.NewList(rt, endpoints, func(ep endpoint.Endpoint) server.Context {
			return &echoContext{}
		}, func(ep endpoint.Endpoint, err error) {
			mu.Lock()
			bindErrs++
			mu.Unlock()
		})

		bound = list.Len()
		require.NoError(t, list.Close())
		require.NoError(t, list.Join())
	})
	require.NoError(t, err)
	<-done

	assert.Equal(t, 2, bound)
}

func mustParse(t *testing.T, s string) endpoint.Endpoint {
	t.Helper()
	ep, err := endpoint.Parse(s)
	require.NoError(t, err)
	return ep
}
