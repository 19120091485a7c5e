// Package fd provides a move-only owning wrapper around a raw kernel file
// descriptor, as specified for every descriptor-owning primitive in
// netcore-go (sockets, timers, eventfds, signalfds, pidfds).
package fd

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Invalid is the sentinel value for a descriptor that owns nothing.
const Invalid = -1

// FD owns a raw descriptor and closes it exactly once. The zero value is not
// usable; construct with New. Go offers no compile-time move semantics, so
// "move-only" is enforced at runtime: Close and Release both invalidate the
// owner, and a second call to either is a safe no-op.
type FD struct {
	raw atomic.Int64
}

// New wraps an already-open descriptor.
func New(raw int) *FD {
	f := &FD{}
	f.raw.Store(int64(raw))
	return f
}

// Fd returns the raw descriptor, or Invalid if it has been closed or
// released.
func (f *FD) Fd() int {
	return int(f.raw.Load())
}

// Valid reports whether the wrapper still owns an open descriptor.
func (f *FD) Valid() bool {
	return f.Fd() != Invalid
}

// Release returns the raw descriptor and invalidates the owner without
// closing it, transferring ownership to the caller.
func (f *FD) Release() int {
	return int(f.raw.Swap(Invalid))
}

// Close closes the descriptor if still owned. Closing an already-closed or
// released FD is a no-op that returns nil.
func (f *FD) Close() error {
	raw := f.raw.Swap(Invalid)
	if raw == Invalid {
		return nil
	}
	return unix.Close(int(raw))
}

// SetNonblockCloexec arranges for a freshly created descriptor to be
// non-blocking and close-on-exec. The kernel-level equivalents of
// SOCK_NONBLOCK|SOCK_CLOEXEC are preferred at creation time where the
// syscall supports them directly (socket, accept4); this helper covers the
// remaining cases (e.g. descriptors returned by timerfd_create without the
// combined flag, or inherited descriptors).
func SetNonblockCloexec(raw int) error {
	if err := unix.SetNonblock(raw, true); err != nil {
		return err
	}
	flags, err := unix.FcntlInt(uintptr(raw), unix.F_GETFD, 0)
	if err != nil {
		return err
	}
	if flags&unix.FD_CLOEXEC != 0 {
		return nil
	}
	_, err = unix.FcntlInt(uintptr(raw), unix.F_SETFD, flags|unix.FD_CLOEXEC)
	return err
}
