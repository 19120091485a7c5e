// Package socket implements the awaitable stream socket primitive: Unix and
// TCP connect, edge-triggered read/write looped until EAGAIN, Sendfile, and
// a server-side listener used by the server package's accept loop.
package socket

import (
	"golang.org/x/sys/unix"

	"github.com/netcore-go/netcore/endpoint"
	"github.com/netcore-go/netcore/fd"
	"github.com/netcore-go/netcore/neterr"
	"github.com/netcore-go/netcore/reactor"
)

// Socket wraps a connected stream descriptor. It implements bufio2.Source
// and bufio2.Sink directly, so a Socket can be handed straight to
// bufio2.NewReader/NewWriter.
//
// failed is sticky: once a syscall returns an error other than EAGAIN (or
// the connect-phase checks), every subsequent call returns that same error
// without re-entering the kernel, matching the spec's "once a socket has
// failed, it stays failed" rule.
type Socket struct {
	rt     *reactor.Runtime
	fd     *fd.FD
	ev     *reactor.Event
	failed error
}

// Connect creates a non-blocking stream socket of the kind described by
// addr and connects it, awaiting writability if the connect is still in
// progress (EINPROGRESS), then verifying completion via SO_ERROR.
func Connect(rt *reactor.Runtime, addr endpoint.ResolvedAddr) (*Socket, error) {
	domain := unix.AF_INET
	if addr.Kind == endpoint.KindUnix {
		domain = unix.AF_UNIX
	} else if addr.IP.To4() == nil {
		domain = unix.AF_INET6
	}

	raw, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, neterr.NewSystemError("socket", err)
	}

	sa, err := sockaddr(addr)
	if err != nil {
		unix.Close(raw)
		return nil, err
	}

	ev, err := rt.Register(raw)
	if err != nil {
		unix.Close(raw)
		return nil, err
	}

	s := &Socket{rt: rt, fd: fd.New(raw), ev: ev}

	err = unix.Connect(raw, sa)
	if err != nil && err != unix.EINPROGRESS {
		rt.Drop(ev)
		s.fd.Close()
		return nil, neterr.NewSystemError("connect", err)
	}
	if err == unix.EINPROGRESS {
		if _, werr := rt.WriteReady(ev); werr != nil {
			rt.Drop(ev)
			s.fd.Close()
			return nil, werr
		}
		soerr, gerr := unix.GetsockoptInt(raw, unix.SOL_SOCKET, unix.SO_ERROR)
		if gerr != nil {
			rt.Drop(ev)
			s.fd.Close()
			return nil, neterr.NewSystemError("getsockopt", gerr)
		}
		if soerr != 0 {
			rt.Drop(ev)
			s.fd.Close()
			return nil, neterr.NewSystemError("connect", unix.Errno(soerr))
		}
	}

	return s, nil
}

func sockaddr(addr endpoint.ResolvedAddr) (unix.Sockaddr, error) {
	if addr.Kind == endpoint.KindUnix {
		return &unix.SockaddrUnix{Name: addr.Path}, nil
	}
	if ip4 := addr.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa, nil
	}
	ip6 := addr.IP.To16()
	if ip6 == nil {
		return nil, &neterr.ResolveError{Host: addr.IP.String(), Err: unix.EAFNOSUPPORT}
	}
	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], ip6)
	return sa, nil
}

// newAccepted wraps an already-accepted client descriptor (from the
// server's accept4 loop).
func newAccepted(rt *reactor.Runtime, raw int) (*Socket, error) {
	ev, err := rt.Register(raw)
	if err != nil {
		unix.Close(raw)
		return nil, err
	}
	return &Socket{rt: rt, fd: fd.New(raw), ev: ev}, nil
}

// Fd returns the raw descriptor, for diagnostics.
func (s *Socket) Fd() int { return s.fd.Fd() }

// TryRead performs one non-blocking read attempt, implementing
// bufio2.Source.
func (s *Socket) TryRead(dst []byte) (int, bool, error) {
	if s.failed != nil {
		return 0, false, s.failed
	}
	n, err := unix.Read(s.fd.Fd(), dst)
	if err == nil {
		return n, true, nil
	}
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return 0, false, nil
	}
	s.failed = neterr.NewSystemError("read", err)
	return 0, false, s.failed
}

// Read suspends the caller until at least one byte is available, the peer
// closes (n == 0, err == nil), or an unrecoverable error occurs.
func (s *Socket) Read(dst []byte) (int, error) {
	for {
		n, ok, err := s.TryRead(dst)
		if err != nil {
			return 0, err
		}
		if ok {
			return n, nil
		}
		if _, err := s.rt.ReadReady(s.ev); err != nil {
			return 0, err
		}
	}
}

// TryWrite performs one non-blocking write attempt, implementing
// bufio2.Sink. SIGPIPE is suppressed via MSG_NOSIGNAL rather than being
// delivered as a process signal, so a write to a peer that has reset the
// connection surfaces as EPIPE through the normal error path.
func (s *Socket) TryWrite(src []byte) (int, bool, error) {
	if s.failed != nil {
		return 0, false, s.failed
	}
	err := unix.Send(s.fd.Fd(), src, unix.MSG_NOSIGNAL)
	if err == nil {
		return len(src), true, nil
	}
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return 0, false, nil
	}
	s.failed = neterr.NewSystemError("send", err)
	return 0, false, s.failed
}

// Write suspends the caller until src is fully accepted by the kernel
// send buffer or an unrecoverable error occurs, retrying after each
// WriteReady wakeup until every byte has been handed to the kernel.
func (s *Socket) Write(src []byte) (int, error) {
	total := 0
	for total < len(src) {
		n, ok, err := s.TryWrite(src[total:])
		if err != nil {
			return total, err
		}
		if ok {
			total += n
			continue
		}
		if _, err := s.rt.WriteReady(s.ev); err != nil {
			return total, err
		}
	}
	return total, nil
}

// Sendfile transfers count bytes from src (a regular file descriptor,
// typically opened via os.Open) to the socket starting at *offset, looping
// past short transfers and EAGAIN until the full count has been sent.
func (s *Socket) Sendfile(src int, offset *int64, count int) (int, error) {
	total := 0
	for total < count {
		if s.failed != nil {
			return total, s.failed
		}
		n, err := unix.Sendfile(s.fd.Fd(), src, offset, count-total)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				if _, werr := s.rt.WriteReady(s.ev); werr != nil {
					return total, werr
				}
				continue
			}
			s.failed = neterr.NewSystemError("sendfile", err)
			return total, s.failed
		}
		if n == 0 {
			return total, &neterr.EofError{Transferred: total}
		}
		total += n
	}
	return total, nil
}

// Shutdown half- or fully closes the connection at the protocol level
// (SHUT_RD/SHUT_WR/SHUT_RDWR) without releasing the descriptor.
func (s *Socket) Shutdown(how int) error {
	if err := unix.Shutdown(s.fd.Fd(), how); err != nil {
		return neterr.NewSystemError("shutdown", err)
	}
	return nil
}

// Close cancels any in-flight awaiters on the socket's Event, deregisters
// it from epoll, and closes the underlying descriptor.
func (s *Socket) Close() error {
	s.rt.Cancel(s.ev)
	s.rt.Drop(s.ev)
	return s.fd.Close()
}

// ListenSocket is a bound, listening stream socket accepting connections
// via edge-triggered accept4.
type ListenSocket struct {
	rt   *reactor.Runtime
	fd   *fd.FD
	ev   *reactor.Event
	addr endpoint.ResolvedAddr
}

// Listen creates, binds, and listens on addr. For Unix sockets, backlog is
// still honoured; Path permissions (Mode/Owner/Group) are applied by the
// server package after bind, since chown/chmod need the Endpoint's string
// fields rather than the resolved address.
func Listen(rt *reactor.Runtime, addr endpoint.ResolvedAddr, backlog int) (*ListenSocket, error) {
	domain := unix.AF_INET
	if addr.Kind == endpoint.KindUnix {
		domain = unix.AF_UNIX
	} else if addr.IP.To4() == nil {
		domain = unix.AF_INET6
	}

	raw, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, neterr.NewSystemError("socket", err)
	}

	if domain != unix.AF_UNIX {
		_ = unix.SetsockoptInt(raw, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}

	sa, err := sockaddr(addr)
	if err != nil {
		unix.Close(raw)
		return nil, err
	}
	if err := unix.Bind(raw, sa); err != nil {
		unix.Close(raw)
		return nil, neterr.NewSystemError("bind", err)
	}
	if backlog <= 0 {
		backlog = unix.SOMAXCONN
	}
	if err := unix.Listen(raw, backlog); err != nil {
		unix.Close(raw)
		return nil, neterr.NewSystemError("listen", err)
	}

	ev, err := rt.Register(raw)
	if err != nil {
		unix.Close(raw)
		return nil, err
	}

	return &ListenSocket{rt: rt, fd: fd.New(raw), ev: ev, addr: addr}, nil
}

// Fd returns the raw listening descriptor.
func (l *ListenSocket) Fd() int { return l.fd.Fd() }

// Addr returns the resolved address this listener is bound to.
func (l *ListenSocket) Addr() endpoint.ResolvedAddr { return l.addr }

// TryAccept performs one non-blocking accept4 attempt.
func (l *ListenSocket) TryAccept() (*Socket, bool, error) {
	raw, _, err := unix.Accept4(l.fd.Fd(), unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err == nil {
		s, werr := newAccepted(l.rt, raw)
		if werr != nil {
			return nil, false, werr
		}
		return s, true, nil
	}
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return nil, false, nil
	}
	return nil, false, neterr.NewSystemError("accept4", err)
}

// Accept suspends the caller until a connection is ready, an unrecoverable
// accept4 error occurs, or the listener is closed/cancelled.
func (l *ListenSocket) Accept() (*Socket, error) {
	for {
		s, ok, err := l.TryAccept()
		if err != nil {
			return nil, err
		}
		if ok {
			return s, nil
		}
		if _, err := l.rt.ReadReady(l.ev); err != nil {
			return nil, err
		}
	}
}

// Close cancels any in-flight Accept, deregisters the listener, and closes
// the underlying descriptor.
func (l *ListenSocket) Close() error {
	l.rt.Cancel(l.ev)
	l.rt.Drop(l.ev)
	return l.fd.Close()
}
