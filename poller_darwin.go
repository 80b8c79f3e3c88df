//go:build darwin

package microio

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// kqueueReactor is the Darwin [Reactor] backend (other BSDs build the select
// fallback in poller_select.go). Every registered fd
// always carries an EVFILT_READ subscription, used purely to observe
// EV_EOF/EV_ERROR (kqueue has no standalone error filter); EVFILT_WRITE is
// added only when the caller asked for [EventWrite]. Reported masks are
// trimmed back to what the caller actually requested, plus EventError.
type kqueueReactor struct {
	kq       int
	mask     map[int]EventMask
	eventBuf []unix.Kevent_t
}

func newPlatformReactor() (Reactor, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)
	return &kqueueReactor{
		kq:       kq,
		mask:     make(map[int]EventMask),
		eventBuf: make([]unix.Kevent_t, 256),
	}, nil
}

func (r *kqueueReactor) Register(fd int, mask EventMask) error {
	if _, ok := r.mask[fd]; ok {
		return fmt.Errorf("microio: fd %d already registered", fd)
	}
	if err := r.applyFilters(fd, mask); err != nil {
		return err
	}
	r.mask[fd] = mask
	return nil
}

func (r *kqueueReactor) Modify(fd int, mask EventMask) error {
	if _, ok := r.mask[fd]; !ok {
		return fmt.Errorf("microio: fd %d not registered", fd)
	}
	if err := r.applyFilters(fd, mask); err != nil {
		return err
	}
	r.mask[fd] = mask
	return nil
}

// applyFilters (re)installs the EVFILT_READ (always) and EVFILT_WRITE
// (if requested) subscriptions for fd.
func (r *kqueueReactor) applyFilters(fd int, mask EventMask) error {
	kevs := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE},
	}
	if mask&EventWrite != 0 {
		kevs = append(kevs, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_ENABLE})
	} else {
		kevs = append(kevs, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE})
	}
	_, err := unix.Kevent(r.kq, kevs, nil, nil)
	// EV_DELETE on a filter that was never added reports ENOENT; harmless.
	if err != nil && err != unix.ENOENT {
		return err
	}
	return nil
}

func (r *kqueueReactor) Unregister(fd int) error {
	if _, ok := r.mask[fd]; !ok {
		return nil
	}
	delete(r.mask, fd)
	kevs := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	_, err := unix.Kevent(r.kq, kevs, nil, nil)
	if err != nil && err != unix.ENOENT && err != unix.EBADF {
		return err
	}
	return nil
}

func (r *kqueueReactor) Poll(timeout time.Duration) ([]ReadyFD, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	n, err := unix.Kevent(r.kq, nil, r.eventBuf, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	byFD := make(map[int]EventMask, n)
	for i := 0; i < n; i++ {
		kev := &r.eventBuf[i]
		fd := int(kev.Ident)
		requested, ok := r.mask[fd]
		if !ok {
			continue
		}
		var observed EventMask
		switch kev.Filter {
		case unix.EVFILT_READ:
			if requested&EventRead != 0 {
				observed |= EventRead
			}
		case unix.EVFILT_WRITE:
			if requested&EventWrite != 0 {
				observed |= EventWrite
			}
		}
		if kev.Flags&(unix.EV_EOF|unix.EV_ERROR) != 0 {
			observed |= EventError
		}
		if observed != 0 {
			byFD[fd] |= observed
		}
	}
	ready := make([]ReadyFD, 0, len(byFD))
	for fd, m := range byFD {
		ready = append(ready, ReadyFD{FD: fd, Mask: m})
	}
	return ready, nil
}

func (r *kqueueReactor) Close() error {
	return unix.Close(r.kq)
}
