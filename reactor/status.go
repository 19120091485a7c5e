package reactor

import "sync/atomic"

// Status is the runtime's lifecycle state.
//
//	Stopped --Run()--> Running
//	Running --Shutdown()--> GracefulShutdown
//	GracefulShutdown --timeout expires, or Stop()--> ForceShutdown
//	* --loop exit condition met--> Stopped
//
// Values are ordered the way the teacher's eventloop.LoopState orders its
// own machine (terminal/sleep states given low numbers), a convention kept
// here purely for parity with that file's commentary, not for any binary
// compatibility requirement of our own.
type Status int32

const (
	// StatusStopped is the state before Run and after the loop exits.
	StatusStopped Status = iota
	// StatusRunning is the normal operating state.
	StatusRunning
	// StatusGracefulShutdown is entered by Shutdown; a countdown begins and
	// outstanding work keeps running until it drains or the countdown
	// expires. The runtime itself does not stop any accept loop.
	StatusGracefulShutdown
	// StatusForceShutdown cancels every outstanding awaiter immediately.
	StatusForceShutdown
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusRunning:
		return "running"
	case StatusGracefulShutdown:
		return "graceful-shutdown"
	case StatusForceShutdown:
		return "force-shutdown"
	default:
		return "unknown"
	}
}

// fastStatus is a lock-free holder for Status, modeled on the teacher's
// eventloop.FastState: pure CAS transitions, no internal validation beyond
// what callers encode via tryTransition.
type fastStatus struct {
	v atomic.Int32
}

func (s *fastStatus) load() Status {
	return Status(s.v.Load())
}

func (s *fastStatus) store(v Status) {
	s.v.Store(int32(v))
}

func (s *fastStatus) tryTransition(from, to Status) bool {
	return s.v.CompareAndSwap(int32(from), int32(to))
}
