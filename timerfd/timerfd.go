// Package timerfd wraps Linux's timerfd in a descriptor that plugs into
// reactor: set arms it, wait suspends until the next expiration (or 0 if
// disarmed/cancelled).
package timerfd

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/netcore-go/netcore/fd"
	"github.com/netcore-go/netcore/internal/ioready"
	"github.com/netcore-go/netcore/neterr"
	"github.com/netcore-go/netcore/reactor"
)

// Timer is a monotonic-clock timerfd registered with a Runtime.
type Timer struct {
	rt *reactor.Runtime
	fd *fd.FD
	ev *reactor.Event
}

// New creates and registers a disarmed Timer.
func New(rt *reactor.Runtime) (*Timer, error) {
	raw, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return nil, neterr.NewSystemError("timerfd_create", err)
	}
	ev, err := rt.Register(raw)
	if err != nil {
		_ = unix.Close(raw)
		return nil, err
	}
	return &Timer{rt: rt, fd: fd.New(raw), ev: ev}, nil
}

// Set arms the timer to first expire after delay, then (if interval > 0)
// repeatedly every interval thereafter. delay == 0 disarms the timer.
func (t *Timer) Set(delay, interval time.Duration) error {
	spec := unix.ItimerSpec{
		Value:    unix.NsecToTimespec(delay.Nanoseconds()),
		Interval: unix.NsecToTimespec(interval.Nanoseconds()),
	}
	if err := unix.TimerfdSettime(t.fd.Fd(), 0, &spec, nil); err != nil {
		return neterr.NewSystemError("timerfd_settime", err)
	}
	return nil
}

// Disarm clears the timer's expiration values and cancels any in-flight
// Wait, which then returns (0, nil).
func (t *Timer) Disarm() error {
	zero := unix.ItimerSpec{}
	if err := unix.TimerfdSettime(t.fd.Fd(), 0, &zero, nil); err != nil {
		return neterr.NewSystemError("timerfd_settime", err)
	}
	t.rt.Cancel(t.ev)
	return nil
}

// Wait suspends until the timer expires at least once, returning the
// number of expirations since the last Wait (normally 1, or more under a
// short interval and scheduling delay). Returns 0, nil if the wait was
// cancelled via Disarm or runtime shutdown rather than a genuine
// expiration.
func (t *Timer) Wait() (uint64, error) {
	for {
		n, err := t.tryWait()
		if err == nil {
			return n, nil
		}
		if !ioready.WouldBlock(err) {
			return 0, neterr.NewSystemError("read", err)
		}
		mask, werr := t.rt.ReadReady(t.ev)
		if werr != nil {
			return 0, nil
		}
		_ = mask
	}
}

func (t *Timer) tryWait() (uint64, error) {
	var buf [8]byte
	n, err := unix.Read(t.fd.Fd(), buf[:])
	if err != nil {
		return 0, err
	}
	if n != 8 {
		return 0, nil
	}
	return ioready.DecodeUint64(buf[:]), nil
}

// Close disarms, deregisters, and closes the underlying descriptor.
func (t *Timer) Close() error {
	t.rt.Cancel(t.ev)
	t.rt.Drop(t.ev)
	return t.fd.Close()
}
