package reactor

// edgeTriggered is OR'd into every epoll_ctl interest mask this package
// submits. netcore-go never registers a descriptor level-triggered: the
// edge-triggered contract (read/write until EAGAIN before suspending again)
// is pushed onto every I/O primitive built on top of Event.
const edgeTriggered = uint32(epollET)

// Event is the per-descriptor readiness object. It is reference counted
// rather than tied to Go's GC: one ref belongs to the owning wrapper (a
// socket, timer, etc.) from Register until Drop; one additional ref is held
// per in-flight ReadReady/WriteReady call, so an Event a coroutine is
// suspended on cannot be torn down out from under it even if the owner
// drops its own handle concurrently (e.g. Close racing a pending read).
//
// All fields are mutated only while holding the owning Runtime's mu; there
// is deliberately no per-Event lock, matching how the teacher's FastPoller
// keeps a single coarse map mutex rather than one per registration.
type Event struct {
	fd        int32
	submitted uint32
	received  uint32
	cancelled bool
	refs      int
	readA     *awaiter
	writeA    *awaiter
}

// Fd returns the raw descriptor this Event was registered for.
func (ev *Event) Fd() int { return int(ev.fd) }

// Register adds raw to the runtime's epoll set with no initial interest
// (edge-triggered, zero read/write bits) and returns an Event handle with
// one ref, owned by the caller. The caller must eventually call Drop.
func (rt *Runtime) Register(raw int) (*Event, error) {
	ev := &Event{fd: int32(raw), refs: 1}

	rt.mu.Lock()
	rt.byFD[ev.fd] = ev
	rt.mu.Unlock()

	if err := epollCtlAdd(rt.epfd, raw, edgeTriggered); err != nil {
		rt.mu.Lock()
		delete(rt.byFD, ev.fd)
		rt.mu.Unlock()
		return nil, wrapErrno("epoll_ctl_add", err)
	}
	rt.awaiters.Add(1)
	return ev, nil
}

// Drop releases the owner's handle on ev. When the last ref (owner plus any
// in-flight awaiters) is released, ev is removed from epoll and the fd
// table. Drop does not close the underlying descriptor — that remains the
// caller's responsibility (typically via fd.FD.Close).
func (rt *Runtime) Drop(ev *Event) {
	rt.mu.Lock()
	ev.refs--
	dead := ev.refs <= 0
	if dead {
		rt.deregisterLocked(ev)
	}
	rt.mu.Unlock()
}

func (rt *Runtime) deregisterLocked(ev *Event) {
	delete(rt.byFD, ev.fd)
	_ = epollCtlDel(rt.epfd, int(ev.fd))
	rt.awaiters.Add(-1)
}

// syncInterestLocked recomputes the submitted mask as the OR of whichever
// of readA/writeA are non-nil and pushes it via epoll_ctl MOD if changed.
func (rt *Runtime) syncInterestLocked(ev *Event) error {
	want := uint32(0)
	if ev.readA != nil {
		want |= epollIn
	}
	if ev.writeA != nil {
		want |= epollOut
	}
	if want == ev.submitted {
		return nil
	}
	if err := epollCtlMod(rt.epfd, int(ev.fd), want|edgeTriggered); err != nil {
		return err
	}
	ev.submitted = want
	return nil
}

// ReadReady suspends the calling goroutine until ev is readable, cancelled,
// or an epoll_ctl error occurs while arming interest. Only one read await
// may be in flight on a given Event at a time; a second concurrent call is
// a caller bug, mirroring the spec's "one continuation per direction".
func (rt *Runtime) ReadReady(ev *Event) (uint32, error) {
	return rt.awaitDirection(ev, false)
}

// WriteReady suspends the calling goroutine until ev is writable or
// cancelled. It submits write interest only; socket.Connect uses it
// unchanged for the connect phase.
func (rt *Runtime) WriteReady(ev *Event) (uint32, error) {
	return rt.awaitDirection(ev, true)
}

func (rt *Runtime) awaitDirection(ev *Event, write bool) (uint32, error) {
	rt.mu.Lock()
	if ev.cancelled {
		rt.mu.Unlock()
		return 0, newCancelledError("event already cancelled")
	}
	a := newAwaiter()
	if write {
		ev.writeA = a
	} else {
		ev.readA = a
	}
	ev.refs++
	if err := rt.syncInterestLocked(ev); err != nil {
		if write {
			ev.writeA = nil
		} else {
			ev.readA = nil
		}
		ev.refs--
		rt.mu.Unlock()
		return 0, wrapErrno("epoll_ctl_mod", err)
	}
	rt.mu.Unlock()

	val, _ := a.wait()
	mask, _ := val.(uint32)

	rt.mu.Lock()
	cancelled := ev.cancelled
	rt.mu.Unlock()
	rt.Drop(ev)

	if cancelled {
		return 0, newCancelledError("event cancelled while awaiting readiness")
	}
	return mask, nil
}

// Cancel resumes any in-flight read/write awaiters on ev with a zero
// received mask and marks ev cancelled, per the spec's event-cancellation
// contract. It does not deregister ev or touch its ref count — the owner is
// still expected to call Drop separately. Safe to call from any goroutine;
// actual resumption is deferred to whichever goroutine is parked in
// awaitDirection, which observes ev.cancelled once woken.
func (rt *Runtime) Cancel(ev *Event) {
	rt.mu.Lock()
	ev.cancelled = true
	ra, wa := ev.readA, ev.writeA
	ev.readA, ev.writeA = nil, nil
	if ev.submitted != 0 {
		_ = epollCtlMod(rt.epfd, int(ev.fd), edgeTriggered)
		ev.submitted = 0
	}
	rt.mu.Unlock()

	if ra != nil {
		ra.value = uint32(0)
		ra.complete()
	}
	if wa != nil {
		wa.value = uint32(0)
		wa.complete()
	}
}
