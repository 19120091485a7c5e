// Package signalfd wraps Linux's signalfd: construction blocks the given
// signals in the process's signal mask and returns a descriptor that
// reports them as readiness events instead of asynchronous interrupts.
package signalfd

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/netcore-go/netcore/fd"
	"github.com/netcore-go/netcore/internal/ioready"
	"github.com/netcore-go/netcore/neterr"
	"github.com/netcore-go/netcore/reactor"
)

// Signals is a signal descriptor for a fixed set of signals.
type Signals struct {
	rt *reactor.Runtime
	fd *fd.FD
	ev *reactor.Event
}

// New blocks sigs in the process signal mask and creates a signalfd that
// reports them.
func New(rt *reactor.Runtime, sigs ...unix.Signal) (*Signals, error) {
	var set unix.Sigset_t
	for _, s := range sigs {
		addSignal(&set, s)
	}
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &set, nil); err != nil {
		return nil, neterr.NewSystemError("sigprocmask", err)
	}

	raw, err := unix.Signalfd(-1, &set, unix.SFD_NONBLOCK|unix.SFD_CLOEXEC)
	if err != nil {
		return nil, neterr.NewSystemError("signalfd", err)
	}
	ev, err := rt.Register(raw)
	if err != nil {
		_ = unix.Close(raw)
		return nil, err
	}
	return &Signals{rt: rt, fd: fd.New(raw), ev: ev}, nil
}

func addSignal(set *unix.Sigset_t, s unix.Signal) {
	idx := (int(s) - 1) / 64
	bit := uint((int(s) - 1) % 64)
	set.Val[idx] |= 1 << bit
}

// Wait reads exactly one pending signal, suspending until one arrives.
// Returns 0, nil if cancelled rather than having observed a signal.
func (s *Signals) Wait() (unix.Signal, error) {
	for {
		var info unix.SignalfdSiginfo
		buf := (*[unsafe.Sizeof(info)]byte)(unsafe.Pointer(&info))[:]
		n, err := unix.Read(s.fd.Fd(), buf)
		if err == nil {
			if n != len(buf) {
				return 0, nil
			}
			return unix.Signal(info.Signo), nil
		}
		if !ioready.WouldBlock(err) {
			return 0, neterr.NewSystemError("read", err)
		}
		if _, werr := s.rt.ReadReady(s.ev); werr != nil {
			return 0, nil
		}
	}
}

// Close deregisters and closes the underlying descriptor. It does not
// restore the process signal mask; callers that need the signals
// un-blocked again should PthreadSigmask(SIG_UNBLOCK, ...) themselves.
func (s *Signals) Close() error {
	s.rt.Cancel(s.ev)
	s.rt.Drop(s.ev)
	return s.fd.Close()
}
