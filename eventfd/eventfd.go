// Package eventfd wraps Linux's eventfd as a 64-bit kernel-provided
// counter: Set adds to it, Wait reads and clears the accumulated value.
package eventfd

import (
	"golang.org/x/sys/unix"

	"github.com/netcore-go/netcore/fd"
	"github.com/netcore-go/netcore/internal/ioready"
	"github.com/netcore-go/netcore/neterr"
	"github.com/netcore-go/netcore/reactor"
)

// Counter is an eventfd-backed 64-bit counter registered with a Runtime.
type Counter struct {
	rt *reactor.Runtime
	fd *fd.FD
	ev *reactor.Event
}

// New creates and registers a zero-initialized Counter.
func New(rt *reactor.Runtime) (*Counter, error) {
	raw, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, neterr.NewSystemError("eventfd", err)
	}
	ev, err := rt.Register(raw)
	if err != nil {
		_ = unix.Close(raw)
		return nil, err
	}
	return &Counter{rt: rt, fd: fd.New(raw), ev: ev}, nil
}

// Set adds v to the kernel counter, waking any in-flight Wait.
func (c *Counter) Set(v uint64) error {
	buf := ioready.EncodeUint64(v)
	if _, err := unix.Write(c.fd.Fd(), buf[:]); err != nil {
		return neterr.NewSystemError("write", err)
	}
	return nil
}

// Wait suspends until the counter is non-zero, then reads and clears it,
// returning the accumulated value. Returns 0, nil if cancelled rather than
// genuinely signalled.
func (c *Counter) Wait() (uint64, error) {
	for {
		var buf [8]byte
		n, err := unix.Read(c.fd.Fd(), buf[:])
		if err == nil {
			if n != 8 {
				return 0, nil
			}
			return ioready.DecodeUint64(buf[:]), nil
		}
		if !ioready.WouldBlock(err) {
			return 0, neterr.NewSystemError("read", err)
		}
		if _, werr := c.rt.ReadReady(c.ev); werr != nil {
			return 0, nil
		}
	}
}

// Close deregisters and closes the underlying descriptor, cancelling any
// in-flight Wait.
func (c *Counter) Close() error {
	c.rt.Cancel(c.ev)
	c.rt.Drop(c.ev)
	return c.fd.Close()
}
