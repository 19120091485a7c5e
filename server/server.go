// Package server implements the accept loop and connection lifecycle: bind
// + listen + accept, per-connection detached dispatch tracked by a
// connection counter, and a four-state (Idle/Listening/Draining/Closed)
// shutdown sequence that waits for every in-flight handler to return before
// reporting closed.
package server

import (
	"errors"
	"os"
	"os/user"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/netcore-go/netcore/asyncsync"
	"github.com/netcore-go/netcore/endpoint"
	"github.com/netcore-go/netcore/internal/logadapt"
	"github.com/netcore-go/netcore/reactor"
	"github.com/netcore-go/netcore/socket"
)

// State is the server's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateListening
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Context supplies the connection handler and optional lifecycle hooks. It
// mirrors the spec's "context" parameterization: only Connection is
// required, everything else has a zero-value (no-op) default.
type Context interface {
	// Connection handles one accepted client. Panics are recovered, logged,
	// and suppressed — one broken client never terminates the server.
	Connection(rt *reactor.Runtime, client *socket.Socket)
}

// Backlogger is an optional Context extension overriding the listen
// backlog (default: system max, i.e. unix.SOMAXCONN).
type Backlogger interface {
	Backlog() int
}

// Listener is an optional Context extension notified once the server
// starts listening, with its resolved address.
type Listener interface {
	Listen(addr endpoint.ResolvedAddr)
}

// Shutdowner is an optional Context extension notified when the accept
// loop has terminated and the server begins draining in-flight handlers.
type Shutdowner interface {
	Shutdown()
}

// Closer is an optional Context extension notified once every in-flight
// handler has returned and the server has fully closed.
type Closer interface {
	Close()
}

// Server binds one endpoint, runs its accept loop as a detached task, and
// tracks in-flight connection handlers via a Counter so Close can wait for
// graceful drain.
type Server struct {
	rt     *reactor.Runtime
	ctx    Context
	logger logadapt.Logger

	mu    sync.Mutex
	state State
	ln    *socket.ListenSocket
	ep    endpoint.Endpoint
	addr  endpoint.ResolvedAddr
	conns *asyncsync.Counter

	acceptDone chan struct{}
}

// New constructs a Server bound to ep and immediately starts listening and
// accepting. The endpoint's Path (for Unix sockets) has Mode/Owner/Group
// applied after bind, mirroring the spec's "Unix socket extras".
func New(rt *reactor.Runtime, ep endpoint.Endpoint, ctx Context) (*Server, error) {
	addr, err := ep.Resolve()
	if err != nil {
		return nil, err
	}

	backlog := 0
	if b, ok := ctx.(Backlogger); ok {
		backlog = b.Backlog()
	}

	ln, err := socket.Listen(rt, addr, backlog)
	if err != nil {
		return nil, err
	}

	if ep.Kind == endpoint.KindUnix {
		if ep.Mode != 0 {
			_ = os.Chmod(ep.Path, os.FileMode(ep.Mode))
		}
		if ep.Owner != "" || ep.Group != "" {
			chownUnixSocket(ep)
		}
	}

	s := &Server{
		rt:         rt,
		ctx:        ctx,
		logger:     rt.Logger(),
		state:      StateListening,
		ln:         ln,
		ep:         ep,
		addr:       addr,
		conns:      asyncsync.NewCounter(rt),
		acceptDone: make(chan struct{}),
	}

	if l, ok := ctx.(Listener); ok {
		l.Listen(addr)
	}

	rt.Spawn(func(rt *reactor.Runtime) { s.acceptLoop() })

	return s, nil
}

// Addr returns the resolved bound address.
func (s *Server) Addr() endpoint.ResolvedAddr { return s.addr }

// State reports the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Server) acceptLoop() {
	defer close(s.acceptDone)
	for {
		client, err := s.ln.Accept()
		if err != nil {
			s.transitionDraining()
			return
		}

		guard := s.conns.Inc()
		rt := s.rt
		rt.Spawn(func(rt *reactor.Runtime) {
			defer guard.Done()
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error().Log("connection handler panicked")
				}
			}()
			defer client.Close()
			s.ctx.Connection(rt, client)
		})
	}
}

func (s *Server) transitionDraining() {
	s.mu.Lock()
	if s.state == StateListening {
		s.state = StateDraining
	}
	s.mu.Unlock()

	if sd, ok := s.ctx.(Shutdowner); ok {
		sd.Shutdown()
	}
}

// Close terminates the accept loop (if not already terminated by
// cancellation), waits for every in-flight handler to finish, removes a
// Unix socket file if applicable, and transitions to Closed.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	_ = s.ln.Close()
	<-s.acceptDone

	if err := s.conns.WaitZero(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	if c, ok := s.ctx.(Closer); ok {
		c.Close()
	}

	if s.ep.Kind == endpoint.KindUnix {
		_ = os.Remove(s.ep.Path)
	}
	return nil
}

func chownUnixSocket(ep endpoint.Endpoint) {
	uid, gid := -1, -1
	if ep.Owner != "" {
		if n, err := strconv.Atoi(ep.Owner); err == nil {
			uid = n
		} else if u, err := user.Lookup(ep.Owner); err == nil {
			if n, err := strconv.Atoi(u.Uid); err == nil {
				uid = n
			}
		}
	}
	if ep.Group != "" {
		if n, err := strconv.Atoi(ep.Group); err == nil {
			gid = n
		} else if g, err := user.LookupGroup(ep.Group); err == nil {
			if n, err := strconv.Atoi(g.Gid); err == nil {
				gid = n
			}
		}
	}
	if uid != -1 || gid != -1 {
		_ = unix.Chown(ep.Path, uid, gid)
	}
}

// List binds one Server per endpoint using factory, collecting bind errors
// via handler rather than aborting on the first failure, and exposes bulk
// Close/Join that fan out over every successfully bound constituent.
// Grounded on the collect-errors-don't-abort shape of a multi-endpoint
// server pool.
type List struct {
	mu      sync.Mutex
	servers []*Server
}

// NewList binds a Server for each of endpoints via factory. A bind failure
// is reported through handler (if non-nil) and that endpoint is skipped;
// NewList itself never returns an error.
func NewList(rt *reactor.Runtime, endpoints []endpoint.Endpoint, factory func(endpoint.Endpoint) Context, handler func(endpoint.Endpoint, error)) *List {
	l := &List{}
	for _, ep := range endpoints {
		srv, err := New(rt, ep, factory(ep))
		if err != nil {
			if handler != nil {
				handler(ep, err)
			}
			continue
		}
		l.servers = append(l.servers, srv)
	}
	return l
}

// Len reports how many servers are currently tracked.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.servers)
}

// Close closes every constituent server, collecting all non-nil errors via
// errors.Join.
func (l *List) Close() error {
	l.mu.Lock()
	servers := append([]*Server(nil), l.servers...)
	l.mu.Unlock()

	var errs []error
	for _, s := range servers {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Join waits for every constituent server's accept loop to finish (i.e.
// each has entered Draining, whether via explicit Close or cancellation),
// using golang.org/x/sync/errgroup to fan out the wait without a manual
// WaitGroup.
func (l *List) Join() error {
	l.mu.Lock()
	servers := append([]*Server(nil), l.servers...)
	l.mu.Unlock()

	var g errgroup.Group
	for _, s := range servers {
		s := s
		g.Go(func() error {
			<-s.acceptDone
			return nil
		})
	}
	return g.Wait()
}
