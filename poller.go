package microio

import "time"

// NoTimeout requests an unbounded [Reactor.Poll] call: block until at least
// one fd is ready. Zero requests a non-blocking poll.
const NoTimeout time.Duration = -1

// ReadyFD is one (fd, observed event mask) pair returned by [Reactor.Poll].
type ReadyFD struct {
	FD   int
	Mask EventMask
}

// Reactor is the readiness multiplexer the scheduler polls between task
// dispatches. Implementations normalise epoll, kqueue or select behind this
// one contract; [EventError] is always ORed into every registration so
// hang-up and error conditions wake the waiter regardless of the mask the
// caller asked for.
//
// A Reactor is owned exclusively by its [Loop] and is never called
// concurrently; implementations need no internal synchronization.
type Reactor interface {
	// Register adds interest for fd under mask. It fails if fd is already
	// registered.
	Register(fd int, mask EventMask) error
	// Modify replaces interest for an already-registered fd.
	Modify(fd int, mask EventMask) error
	// Unregister removes all interest for fd. Idempotent.
	Unregister(fd int) error
	// Poll blocks up to timeout (negative unbounded, zero non-blocking) and
	// returns the fds that became ready. A call with no registrations still
	// honors timeout.
	Poll(timeout time.Duration) ([]ReadyFD, error)
	// Close releases the reactor's own resources (not the registered fds,
	// which it never owns).
	Close() error
}

// newPlatformReactor is implemented per-platform in poller_linux.go,
// poller_darwin.go and poller_select.go, selecting the best backend
// available at build time: epoll, then kqueue, then a generic select-based
// fallback.
