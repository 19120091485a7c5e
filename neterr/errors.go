// Package neterr defines the error taxonomy shared by every netcore-go
// package: stream teardown (Eof), cooperative cancellation (Cancelled),
// unrecoverable syscall failures (SystemError), address resolution failures
// (ResolveError), and non-zero child exits (SubprocessError).
package neterr

import (
	"errors"
	"fmt"
)

// ErrEOF is returned when a stream closed before the requested number of
// bytes were delivered. errors.Is(err, ErrEOF) holds for the concrete
// EofError below via its Unwrap (it does not match io.EOF); ErrEOF itself
// is the sentinel used when no richer context is available.
var ErrEOF = errors.New("netcore: eof")

// ErrCancelled is the sentinel cancellation error. Operations that cannot
// return a typed CancelledError (e.g. deep in a generic helper) may return
// this directly; errors.Is(err, ErrCancelled) must still succeed for a
// *CancelledError.
var ErrCancelled = errors.New("netcore: cancelled")

// EofError wraps ErrEOF with the number of bytes that were actually
// transferred before the stream ended.
type EofError struct {
	// Transferred is how many bytes were copied before EOF was observed.
	Transferred int
}

func (e *EofError) Error() string {
	return fmt.Sprintf("netcore: eof after %d bytes", e.Transferred)
}

func (e *EofError) Unwrap() error { return ErrEOF }

// CancelledError is returned by an awaitable operation that was cancelled by
// runtime force-shutdown, an explicit Cancel call, or the drop of the
// primitive it was suspended on.
type CancelledError struct {
	// Reason is an optional human-readable cause, e.g. "runtime shutdown".
	Reason string
}

func (e *CancelledError) Error() string {
	if e.Reason == "" {
		return "netcore: cancelled"
	}
	return "netcore: cancelled: " + e.Reason
}

func (e *CancelledError) Unwrap() error { return ErrCancelled }

// SystemError preserves an unrecoverable syscall failure's errno alongside a
// human-readable message, so callers can still errors.Is against the
// underlying syscall.Errno.
type SystemError struct {
	// Errno is the underlying platform error code.
	Errno error
	// Call names the syscall that failed, e.g. "epoll_ctl".
	Call string
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("netcore: %s: %v", e.Call, e.Errno)
}

func (e *SystemError) Unwrap() error { return e.Errno }

// NewSystemError builds a SystemError, returning nil if err is nil (so it
// can be used directly as `return neterr.NewSystemError("connect", err)` in
// a syscall-wrapping loop without an extra nil check).
func NewSystemError(call string, err error) error {
	if err == nil {
		return nil
	}
	return &SystemError{Errno: err, Call: call}
}

// ResolveError wraps an address-resolution failure (the Go analogue of
// EAI_* codes from getaddrinfo).
type ResolveError struct {
	Host string
	Err  error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("netcore: resolve %q: %v", e.Host, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// SubprocessError is returned when a spawned child process exits with a
// non-zero status, or is terminated by a signal.
type SubprocessError struct {
	Pid int
	// State describes the termination, e.g. "exited", "signaled".
	State string
	// Status is the raw exit code or signal number, depending on State.
	Status int
	// Stderr holds a bounded tail of the child's standard error, if the
	// caller opted to capture it.
	Stderr string
}

func (e *SubprocessError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("netcore: subprocess %d %s with status %d", e.Pid, e.State, e.Status)
	}
	return fmt.Sprintf("netcore: subprocess %d %s with status %d: %s", e.Pid, e.State, e.Status, e.Stderr)
}

// IsCancelled reports whether err is, or wraps, a cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsEOF reports whether err is, or wraps, an end-of-stream condition.
func IsEOF(err error) bool {
	return errors.Is(err, ErrEOF)
}
