package proxy

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// poller is a thin epoll wrapper giving the single-threaded readiness loop
// its level-triggered multiplexing primitive (spec §4.5's "single-threaded
// cooperative readiness loop ... level-triggered multiplexer").
type poller struct {
	epfd int
}

func newPoller() (*poller, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("proxy: epoll_create1: %w", err)
	}
	return &poller{epfd: fd}, nil
}

func (p *poller) close() error { return unix.Close(p.epfd) }

func (p *poller) add(fd int, writable bool) error {
	events := uint32(unix.EPOLLIN)
	if writable {
		events |= unix.EPOLLOUT
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: events, Fd: int32(fd)})
}

func (p *poller) modify(fd int, writable bool) error {
	events := uint32(unix.EPOLLIN)
	if writable {
		events |= unix.EPOLLOUT
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Events: events, Fd: int32(fd)})
}

func (p *poller) remove(fd int) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && err != unix.ENOENT {
		return err
	}
	return nil
}

// wait blocks up to timeoutMs for readiness events, standing in for
// rinetd.cpp's select() call plus its coarse periodic timer tick (spec §9:
// "any implementation of a readiness loop with a coarse (seconds) timer
// tick suffices" — no separate timerfd is used here, the wait timeout
// itself is the tick).
func (p *poller) wait(timeoutMs int) ([]unix.EpollEvent, error) {
	buf := make([]unix.EpollEvent, 256)
	n, err := unix.EpollWait(p.epfd, buf, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("proxy: epoll_wait: %w", err)
	}
	return buf[:n], nil
}
