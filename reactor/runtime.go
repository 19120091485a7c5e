// Package reactor implements the single-goroutine, epoll-driven readiness
// loop at the core of netcore-go: a Runtime owns one epoll instance, the
// descriptor table of registered Events, and a pending-task queue, and
// drives both to completion from a single "loop goroutine" per instance.
//
// A stackless-coroutine runtime (the shape this package is translated from)
// has no direct Go equivalent: Go has no notion of suspending a function at
// an arbitrary await point and resuming it later on a scheduler's terms.
// Here, "suspend" is a goroutine blocking on an unbuffered channel
// (awaiter), and "resume" is closing that channel from the loop goroutine.
// The pending queue plays the same role the spec's coroutine-handle queue
// plays: a deferred-to-next-turn resumption point, used by Yield and by the
// synchronization primitives in asyncsync so that a lock release or a
// broadcast never resumes a waiter synchronously on the releasing
// goroutine's own stack.
package reactor

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/netcore-go/netcore/internal/gid"
	"github.com/netcore-go/netcore/internal/logadapt"
	"github.com/netcore-go/netcore/neterr"
)

// ErrAlreadyRunning is returned by Run when the Runtime is not Stopped.
var ErrAlreadyRunning = errors.New("reactor: runtime already running")

// ErrGoroutineBound is returned by Run when the calling goroutine already
// has a different Runtime bound to it. The spec's "one runtime per thread"
// invariant is enforced here per goroutine, since Go has no user-visible OS
// thread identity — see SPEC_FULL.md's Go-specific concurrency note.
var ErrGoroutineBound = errors.New("reactor: goroutine already has a bound runtime")

// Runtime is one epoll-driven readiness loop. The zero value is not usable;
// construct with New.
type Runtime struct {
	epfd     int
	wakeFD   int
	eventBuf []unix.EpollEvent
	logger   logadapt.Logger

	mu      sync.Mutex
	byFD    map[int32]*Event
	pending awaiterQueue

	awaiters         atomic.Int64
	tasks            atomic.Int64
	status           fastStatus
	shutdownDeadline time.Time
	loopGID          int64
}

// New creates a Runtime. It does not start the loop; call Run.
func New(opts ...Option) (*Runtime, error) {
	cfg := resolveOptions(opts)

	epfd, err := epollCreate()
	if err != nil {
		return nil, wrapErrno("epoll_create1", err)
	}

	wakeFD, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, wrapErrno("eventfd", err)
	}

	rt := &Runtime{
		epfd:     epfd,
		wakeFD:   wakeFD,
		eventBuf: make([]unix.EpollEvent, cfg.maxEvents),
		logger:   cfg.logger,
		byFD:     make(map[int32]*Event),
	}

	if err := epollCtlAdd(epfd, wakeFD, epollIn|edgeTriggered); err != nil {
		_ = unix.Close(wakeFD)
		_ = unix.Close(epfd)
		return nil, wrapErrno("epoll_ctl_add", err)
	}

	return rt, nil
}

// Close releases the epoll instance and wake descriptor. Call only after
// Run has returned.
func (rt *Runtime) Close() error {
	err1 := unix.Close(rt.wakeFD)
	err2 := unix.Close(rt.epfd)
	if err1 != nil {
		return wrapErrno("close", err1)
	}
	if err2 != nil {
		return wrapErrno("close", err2)
	}
	return nil
}

// Status reports the current lifecycle state.
func (rt *Runtime) Status() Status {
	return rt.status.load()
}

// Logger returns the Logger this Runtime was configured with (WithLogger),
// for packages built on top of reactor (server, pool) that want to log
// through the same sink without threading a separate Option.
func (rt *Runtime) Logger() logadapt.Logger {
	return rt.logger
}

// wake unblocks a goroutine parked in epoll_wait(-1), used whenever state
// that affects the loop's exit condition or timeout changes from outside
// the loop goroutine. Grounded on the teacher's wakeup_linux.go self-pipe.
func (rt *Runtime) wake() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(rt.wakeFD, buf[:])
		if err == unix.EINTR {
			continue
		}
		return
	}
}

// drainWake reads and discards every pending increment on the eventfd,
// looping until EAGAIN as required by the edge-triggered contract.
func (rt *Runtime) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(rt.wakeFD, buf[:])
		if err == nil {
			continue
		}
		if err == unix.EINTR {
			continue
		}
		return
	}
}

// Spawn starts task as a tracked, detached goroutine. The Runtime's loop
// exit condition counts Spawn'd tasks still running, so Run will not return
// while any spawned task (including the root task passed to Run) is still
// executing, even if it currently holds no registered Event and has nothing
// queued.
func (rt *Runtime) Spawn(task func(*Runtime)) {
	rt.tasks.Add(1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				rt.logger.Error().Str("panic", panicString(r)).Log("spawned task panicked")
			}
			rt.tasks.Add(-1)
			rt.wake()
		}()
		task(rt)
	}()
}

// Yield suspends the calling goroutine until the Runtime's next loop turn,
// giving any currently-ready descriptors and already-pending waiters a
// chance to run first. Returns a CancelledError if the runtime force-shuts
// down while the caller is suspended.
func (rt *Runtime) Yield() error {
	w := rt.NewWaiter()
	rt.mu.Lock()
	rt.pending.push(w.a)
	rt.mu.Unlock()
	rt.wake()
	_, err := w.Wait()
	return err
}

// Run pins the calling goroutine as this Runtime's loop goroutine, spawns
// root as the first task, and drives the epoll_wait loop until no Events
// are registered, the pending queue is empty, and no spawned task remains
// running.
func (rt *Runtime) Run(root func(*Runtime)) error {
	if !rt.status.tryTransition(StatusStopped, StatusRunning) {
		return ErrAlreadyRunning
	}

	id := gid.Current()
	if err := installRuntime(id, rt); err != nil {
		rt.status.store(StatusStopped)
		return err
	}
	rt.loopGID = id
	defer uninstallRuntime(id)
	defer rt.status.store(StatusStopped)

	rt.Spawn(root)

	for rt.hasWork() {
		timeout := rt.computeTimeout()
		n, err := epollWait(rt.epfd, rt.eventBuf, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return wrapErrno("epoll_wait", err)
		}

		if rt.status.load() == StatusGracefulShutdown && !time.Now().Before(rt.shutdownDeadline) {
			rt.forceShutdown("graceful shutdown timeout elapsed")
		}

		for i := 0; i < n; i++ {
			rt.dispatchOne(rt.eventBuf[i])
		}
		rt.drainPending()
	}

	return nil
}

func (rt *Runtime) hasWork() bool {
	rt.mu.Lock()
	pendingEmpty := rt.pending.head == nil
	rt.mu.Unlock()
	return rt.awaiters.Load() > 0 || !pendingEmpty || rt.tasks.Load() > 0
}

func (rt *Runtime) computeTimeout() int {
	rt.mu.Lock()
	pendingNonEmpty := rt.pending.head != nil
	rt.mu.Unlock()

	if pendingNonEmpty {
		return 0
	}
	if rt.status.load() == StatusGracefulShutdown {
		remaining := time.Until(rt.shutdownDeadline)
		if remaining < 0 {
			remaining = 0
		}
		ms := remaining.Milliseconds()
		if ms > math.MaxInt32 {
			ms = math.MaxInt32
		}
		return int(ms)
	}
	return -1
}

func (rt *Runtime) dispatchOne(raw unix.EpollEvent) {
	fd := raw.Fd
	if int(fd) == rt.wakeFD {
		rt.drainWake()
		return
	}

	rt.mu.Lock()
	ev, ok := rt.byFD[fd]
	if !ok {
		rt.mu.Unlock()
		return
	}
	ev.received = raw.Events
	ra, wa := ev.readA, ev.writeA
	mask := raw.Events

	var resumeRead, resumeWrite bool
	if ra == nil && wa != nil {
		// Only a write continuation is installed: either this is a
		// connect-phase wait (both IN and OUT were submitted together, and
		// either direction resolves it) or a plain write wait.
		if ev.submitted&epollIn != 0 && ev.submitted&epollOut != 0 {
			resumeWrite = true
		} else if mask&ev.submitted != 0 {
			resumeWrite = true
		}
	} else {
		if ra != nil && mask&(epollIn|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			resumeRead = true
		}
		if wa != nil && mask&(epollOut|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			resumeWrite = true
		}
	}

	if resumeRead {
		ev.readA = nil
	}
	if resumeWrite {
		ev.writeA = nil
	}
	if resumeRead || resumeWrite {
		_ = rt.syncInterestLocked(ev)
	}
	rt.mu.Unlock()

	if resumeRead {
		ra.value = mask
		ra.complete()
	}
	if resumeWrite {
		wa.value = mask
		wa.complete()
	}
}

func (rt *Runtime) drainPending() {
	rt.mu.Lock()
	head := rt.pending.drain()
	rt.mu.Unlock()
	completeChain(head)
}

// Shutdown begins graceful shutdown: the loop continues servicing
// in-flight work, but will force-shutdown (cancelling everything
// outstanding) once timeout elapses. A no-op if the runtime is not
// currently Running.
func (rt *Runtime) Shutdown(timeout time.Duration) {
	if rt.status.tryTransition(StatusRunning, StatusGracefulShutdown) {
		rt.shutdownDeadline = time.Now().Add(timeout)
		rt.wake()
	}
}

// Stop immediately force-shuts-down the runtime: every pending waiter and
// every registered Event is resumed with cancellation, regardless of
// current phase.
func (rt *Runtime) Stop() {
	rt.forceShutdown("stop requested")
	rt.wake()
}

func (rt *Runtime) forceShutdown(reason string) {
	if !rt.status.tryTransition(StatusGracefulShutdown, StatusForceShutdown) &&
		!rt.status.tryTransition(StatusRunning, StatusForceShutdown) {
		return
	}

	rt.mu.Lock()
	head := rt.pending.drain()
	events := make([]*Event, 0, len(rt.byFD))
	for _, ev := range rt.byFD {
		events = append(events, ev)
	}
	rt.mu.Unlock()

	failChain(head, &neterr.CancelledError{Reason: reason})
	for _, ev := range events {
		rt.Cancel(ev)
	}
}

func panicString(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return "unrecoverable panic in spawned task"
}
