//go:build !linux && !darwin && !windows

package microio

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// selectReactor is the generic fallback [Reactor] for Unix platforms other
// than Linux and Darwin (kqueue-capable BSDs included), built directly on
// unix.Select. It always treats
// every registered fd as exception-interesting, per the "ERROR always
// ORed" rule from §4.1.
type selectReactor struct {
	mask map[int]EventMask
}

func newPlatformReactor() (Reactor, error) {
	return &selectReactor{mask: make(map[int]EventMask)}, nil
}

func (r *selectReactor) Register(fd int, mask EventMask) error {
	if _, ok := r.mask[fd]; ok {
		return fmt.Errorf("microio: fd %d already registered", fd)
	}
	r.mask[fd] = mask
	return nil
}

func (r *selectReactor) Modify(fd int, mask EventMask) error {
	if _, ok := r.mask[fd]; !ok {
		return fmt.Errorf("microio: fd %d not registered", fd)
	}
	r.mask[fd] = mask
	return nil
}

func (r *selectReactor) Unregister(fd int) error {
	delete(r.mask, fd)
	return nil
}

func (r *selectReactor) Poll(timeout time.Duration) ([]ReadyFD, error) {
	if len(r.mask) == 0 {
		// Nothing to wait on: honor a bounded timeout as a plain sleep, but
		// an unbounded one returns immediately with an empty set rather
		// than blocking forever on nothing (documented open-question
		// resolution, see DESIGN.md).
		if timeout > 0 {
			time.Sleep(timeout)
		}
		return nil, nil
	}

	var rset, wset, eset unix.FdSet
	maxFD := 0
	for fd, mask := range r.mask {
		if mask&EventRead != 0 {
			fdSetAdd(&rset, fd)
		}
		if mask&EventWrite != 0 {
			fdSetAdd(&wset, fd)
		}
		fdSetAdd(&eset, fd)
		if fd > maxFD {
			maxFD = fd
		}
	}

	var tv *unix.Timeval
	if timeout >= 0 {
		t := unix.NsecToTimeval(timeout.Nanoseconds())
		tv = &t
	}

	_, err := unix.Select(maxFD+1, &rset, &wset, &eset, tv)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	var ready []ReadyFD
	for fd, mask := range r.mask {
		var observed EventMask
		if mask&EventRead != 0 && fdSetIsSet(&rset, fd) {
			observed |= EventRead
		}
		if mask&EventWrite != 0 && fdSetIsSet(&wset, fd) {
			observed |= EventWrite
		}
		if fdSetIsSet(&eset, fd) {
			observed |= EventError
		}
		if observed != 0 {
			ready = append(ready, ReadyFD{FD: fd, Mask: observed})
		}
	}
	return ready, nil
}

func (r *selectReactor) Close() error { return nil }

// fdSetAdd and fdSetIsSet manipulate an unix.FdSet's Bits array without
// assuming its per-word bit width, which varies across the non-Linux,
// non-Darwin Unix targets this file builds for.
func fdSetAdd(set *unix.FdSet, fd int) {
	wordBits := int(unsafe.Sizeof(set.Bits[0])) * 8
	idx, bit := fd/wordBits, uint(fd%wordBits)
	switch w := any(&set.Bits[idx]).(type) {
	case *int32:
		*w |= int32(1) << bit
	case *int64:
		*w |= int64(1) << bit
	case *uint32:
		*w |= uint32(1) << bit
	case *uint64:
		*w |= uint64(1) << bit
	}
}

func fdSetIsSet(set *unix.FdSet, fd int) bool {
	wordBits := int(unsafe.Sizeof(set.Bits[0])) * 8
	idx, bit := fd/wordBits, uint(fd%wordBits)
	switch w := any(set.Bits[idx]).(type) {
	case int32:
		return w&(int32(1)<<bit) != 0
	case int64:
		return w&(int64(1)<<bit) != 0
	case uint32:
		return w&(uint32(1)<<bit) != 0
	case uint64:
		return w&(uint64(1)<<bit) != 0
	}
	return false
}
