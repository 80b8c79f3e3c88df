// Package microio implements a small, single-threaded cooperative task
// runtime built around a readiness-based I/O reactor.
//
// # Architecture
//
// A [Loop] multiplexes any number of [Task] values onto a single goroutine's
// worth of logical concurrency: exactly one task runs at a time, and it runs
// until it voluntarily suspends. Suspension happens through a small, closed
// set of requests (see [Suspension]):
//
//   - Child: run another task to completion and resume with its result.
//   - Spawn: start a detached task; resume immediately with its handle.
//   - IoRegister / IoDeregister: wait for (or stop waiting for) readiness on
//     a file descriptor.
//   - Sleep: resume no earlier than a deadline.
//   - Yield: give up the scheduler for one turn.
//
// Tasks are modelled as goroutines synchronised through a per-task resume
// channel, so that a task's call stack can suspend at any depth (an ordinary
// function call such as [Task.Call] or [Task.Sleep], not a generator yield)
// while the scheduler still observes strict single-threaded turn-taking: a
// task goroutine blocks on its resume channel the instant it suspends, and
// the Loop never starts a second task running before the first has blocked.
//
// The reactor side ([Reactor]) normalises epoll (Linux), kqueue (Darwin)
// and a select-based fallback (other Unix platforms) behind one register/modify/unregister/poll
// contract, so the scheduler itself never touches a platform syscall
// directly.
//
// # Design decisions worth knowing
//
//   - Terminal values may be signalled two ways — an ordinary return, or a
//     panic carrying [Return] — and the two are observationally identical to
//     whatever is waiting on the task (see [Task.run]).
//   - The root task's unhandled error always propagates out of [Loop.Run],
//     regardless of [WithQuietExceptions]; that option only governs detached
//     (Spawn'd) tasks, whose errors would otherwise have nowhere to go.
//   - The scheduler is not re-entrant and not safe for concurrent use from
//     multiple goroutines; it owns exactly one logical thread of
//     sequencing, by design.
//
// # Usage
//
//	loop, err := microio.New()
//	result, err := loop.Run(context.Background(), func(t *microio.Task) (any, error) {
//	    if err := t.Sleep(100 * time.Millisecond); err != nil {
//	        return nil, err
//	    }
//	    return "done", nil
//	})
//
// # Collaborators
//
// Package stream (a sub-package) layers a buffered byte-stream and
// listen/connect/serve helpers on top of a Loop and a Task, the way
// net/textproto layers on top of net.Conn.
//
// # Error Types
//
// The package provides a small, closed error taxonomy:
//   - [PanicError]: wraps a recovered panic from a task body.
//   - [ErrMalformedRequest]: sentinel for a [Suspension] the scheduler does
//     not recognise.
//
// All error types implement the standard [error] interface and support
// [errors.Unwrap] / [errors.Is].
package microio
