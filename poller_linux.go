//go:build linux

package microio

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// epollReactor is the Linux [Reactor] backend, one level-triggered epoll
// instance per loop.
type epollReactor struct {
	epfd       int
	registered map[int]struct{}
	eventBuf   []unix.EpollEvent
}

func newPlatformReactor() (Reactor, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollReactor{
		epfd:       fd,
		registered: make(map[int]struct{}),
		eventBuf:   make([]unix.EpollEvent, 256),
	}, nil
}

func (r *epollReactor) Register(fd int, mask EventMask) error {
	if _, ok := r.registered[fd]; ok {
		return fmt.Errorf("microio: fd %d already registered", fd)
	}
	ev := unix.EpollEvent{Events: eventsToEpoll(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return err
	}
	r.registered[fd] = struct{}{}
	return nil
}

func (r *epollReactor) Modify(fd int, mask EventMask) error {
	if _, ok := r.registered[fd]; !ok {
		return fmt.Errorf("microio: fd %d not registered", fd)
	}
	ev := unix.EpollEvent{Events: eventsToEpoll(mask), Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (r *epollReactor) Unregister(fd int) error {
	if _, ok := r.registered[fd]; !ok {
		return nil
	}
	delete(r.registered, fd)
	err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && err != unix.ENOENT && err != unix.EBADF {
		return err
	}
	return nil
}

func (r *epollReactor) Poll(timeout time.Duration) ([]ReadyFD, error) {
	n, err := unix.EpollWait(r.epfd, r.eventBuf, epollMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	ready := make([]ReadyFD, 0, n)
	for i := 0; i < n; i++ {
		ready = append(ready, ReadyFD{
			FD:   int(r.eventBuf[i].Fd),
			Mask: epollToEvents(r.eventBuf[i].Events),
		})
	}
	return ready, nil
}

func (r *epollReactor) Close() error {
	return unix.Close(r.epfd)
}

// epollMillis converts a Reactor timeout to the millisecond form EpollWait
// expects, preserving -1 (unbounded) and 0 (non-blocking).
func epollMillis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	ms := timeout.Milliseconds()
	if ms == 0 && timeout > 0 {
		ms = 1
	}
	return int(ms)
}

// eventsToEpoll always ORs in EPOLLERR|EPOLLHUP: error and hang-up
// conditions must wake a waiter regardless of the mask it asked for.
func eventsToEpoll(mask EventMask) uint32 {
	e := uint32(unix.EPOLLERR | unix.EPOLLHUP)
	if mask&EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if mask&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func epollToEvents(e uint32) EventMask {
	var mask EventMask
	if e&unix.EPOLLIN != 0 {
		mask |= EventRead
	}
	if e&unix.EPOLLOUT != 0 {
		mask |= EventWrite
	}
	if e&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		mask |= EventError
	}
	return mask
}
