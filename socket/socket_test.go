package socket_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netcore-go/netcore/endpoint"
	"github.com/netcore-go/netcore/reactor"
	"github.com/netcore-go/netcore/socket"
)

func unixEndpoint(t *testing.T) endpoint.ResolvedAddr {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.sock")
	return endpoint.ResolvedAddr{Kind: endpoint.KindUnix, Path: path}
}

func TestUnixListenConnectEcho(t *testing.T) {
	rt, err := reactor.New()
	require.NoError(t, err)
	defer rt.Close()

	addr := unixEndpoint(t)
	done := make(chan struct{})
	var serverErr, clientErr error
	var echoed string

	err = rt.Run(func(rt *reactor.Runtime) {
		defer close(done)

		ln, lerr := socket.Listen(rt, addr, 0)
		require.NoError(t, lerr)
		defer ln.Close()

		serverDone := make(chan struct{})
		rt.Spawn(func(rt *reactor.Runtime) {
			defer close(serverDone)
			conn, aerr := ln.Accept()
			if aerr != nil {
				serverErr = aerr
				return
			}
			defer conn.Close()
			buf := make([]byte, 5)
			n, rerr := conn.Read(buf)
			if rerr != nil {
				serverErr = rerr
				return
			}
			if _, werr := conn.Write(buf[:n]); werr != nil {
				serverErr = werr
			}
		})

		conn, cerr := socket.Connect(rt, addr)
		require.NoError(t, cerr)
		defer conn.Close()

		if _, err := conn.Write([]byte("hello")); err != nil {
			clientErr = err
			return
		}
		buf := make([]byte, 5)
		n, rerr := conn.Read(buf)
		if rerr != nil {
			clientErr = rerr
			return
		}
		echoed = string(buf[:n])
		<-serverDone
	})
	require.NoError(t, err)
	<-done

	require.NoError(t, serverErr)
	require.NoError(t, clientErr)
	assert.Equal(t, "hello", echoed)
}

func TestConnectRefusedReturnsError(t *testing.T) {
	rt, err := reactor.New()
	require.NoError(t, err)
	defer rt.Close()

	addr := unixEndpoint(t) // nothing listening on this path
	done := make(chan struct{})
	var connectErr error

	err = rt.Run(func(rt *reactor.Runtime) {
		defer close(done)
		_, connectErr = socket.Connect(rt, addr)
	})
	require.NoError(t, err)
	<-done

	require.Error(t, connectErr)
}

func TestSendfileTransfersWholeFile(t *testing.T) {
	rt, err := reactor.New()
	require.NoError(t, err)
	defer rt.Close()

	content := make([]byte, 64*1024)
	for i := range content {
		content[i] = byte(i)
	}
	srcPath := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(srcPath, content, 0o600))

	addr := unixEndpoint(t)
	done := make(chan struct{})
	var serverErr, clientErr error
	var received []byte

	err = rt.Run(func(rt *reactor.Runtime) {
		defer close(done)

		ln, lerr := socket.Listen(rt, addr, 0)
		require.NoError(t, lerr)
		defer ln.Close()

		serverDone := make(chan struct{})
		rt.Spawn(func(rt *reactor.Runtime) {
			defer close(serverDone)
			conn, aerr := ln.Accept()
			if aerr != nil {
				serverErr = aerr
				return
			}
			defer conn.Close()
			buf := make([]byte, len(content))
			total := 0
			for total < len(buf) {
				n, rerr := conn.Read(buf[total:])
				if rerr != nil {
					serverErr = rerr
					return
				}
				if n == 0 {
					break
				}
				total += n
			}
			received = buf[:total]
		})

		conn, cerr := socket.Connect(rt, addr)
		require.NoError(t, cerr)

		f, ferr := os.Open(srcPath)
		require.NoError(t, ferr)
		defer f.Close()

		var offset int64
		_, clientErr = conn.Sendfile(int(f.Fd()), &offset, len(content))
		conn.Close()
		<-serverDone
	})
	require.NoError(t, err)
	<-done

	require.NoError(t, serverErr)
	require.NoError(t, clientErr)
	assert.Equal(t, content, received)
}

func TestSocketFailedStaysFailed(t *testing.T) {
	rt, err := reactor.New()
	require.NoError(t, err)
	defer rt.Close()

	addr := unixEndpoint(t)
	done := make(chan struct{})
	var firstErr, secondErr error

	err = rt.Run(func(rt *reactor.Runtime) {
		defer close(done)

		ln, lerr := socket.Listen(rt, addr, 0)
		require.NoError(t, lerr)
		defer ln.Close()

		serverDone := make(chan struct{})
		rt.Spawn(func(rt *reactor.Runtime) {
			defer close(serverDone)
			conn, aerr := ln.Accept()
			require.NoError(t, aerr)
			conn.Close()
		})

		conn, cerr := socket.Connect(rt, addr)
		require.NoError(t, cerr)
		<-serverDone

		// Close the descriptor out from under the Socket, then force two
		// syscalls against it: the first observes the real EBADF failure
		// and latches it, the second must return the identical cached
		// error without re-entering the kernel.
		require.NoError(t, conn.Close())

		buf := make([]byte, 16)
		_, firstErr = conn.Read(buf)
		_, secondErr = conn.Read(buf)
	})
	require.NoError(t, err)
	<-done

	require.Error(t, firstErr)
	assert.Equal(t, firstErr, secondErr)
}
