package signalfd_test

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/netcore-go/netcore/reactor"
	"github.com/netcore-go/netcore/signalfd"
)

func TestSignalsWaitObservesBlockedSignal(t *testing.T) {
	rt, err := reactor.New()
	require.NoError(t, err)
	defer rt.Close()

	done := make(chan struct{})
	var got unix.Signal
	var waitErr error

	err = rt.Run(func(rt *reactor.Runtime) {
		defer close(done)
		sig, serr := signalfd.New(rt, unix.SIGUSR1)
		require.NoError(t, serr)
		defer sig.Close()

		waitDone := make(chan struct{})
		rt.Spawn(func(rt *reactor.Runtime) {
			defer close(waitDone)
			got, waitErr = sig.Wait()
		})
		require.NoError(t, rt.Yield())
		time.Sleep(10 * time.Millisecond)
		require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))
		<-waitDone
	})
	require.NoError(t, err)
	<-done

	require.NoError(t, waitErr)
	assert.Equal(t, unix.SIGUSR1, got)
}
