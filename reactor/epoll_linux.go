//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"

	"github.com/netcore-go/netcore/neterr"
)

const (
	epollET  = unix.EPOLLET
	epollIn  = unix.EPOLLIN
	epollOut = unix.EPOLLOUT
)

func epollCreate() (int, error) {
	return unix.EpollCreate1(unix.EPOLL_CLOEXEC)
}

func epollCtlAdd(epfd, fd int, events uint32) error {
	return unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: events, Fd: int32(fd)})
}

func epollCtlMod(epfd, fd int, events uint32) error {
	return unix.EpollCtl(epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Events: events, Fd: int32(fd)})
}

func epollCtlDel(epfd, fd int) error {
	return unix.EpollCtl(epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func epollWait(epfd int, events []unix.EpollEvent, timeoutMS int) (int, error) {
	return unix.EpollWait(epfd, events, timeoutMS)
}

func wrapErrno(call string, err error) error {
	return neterr.NewSystemError(call, err)
}

func newCancelledError(reason string) error {
	return &neterr.CancelledError{Reason: reason}
}
