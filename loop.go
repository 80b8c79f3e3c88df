package microio

import (
	"context"
	"time"
)

// readyEntry is one FIFO ready-queue element: a task plus at most one of a
// resume value or a resume error.
type readyEntry struct {
	task  *Task
	value any
	err   error
}

// Loop is the scheduler: it owns the ready queue, the pending I/O registry,
// the timer heap, the join relation and the reactor, and drives a root task
// to completion per the four-phase dispatch loop in §4.3.
//
// A Loop is not safe for concurrent use. It is meant to be driven by a
// single call to [Loop.Run] from one goroutine; everything it owns is
// touched only from that goroutine's call stack (task bodies run on their
// own goroutines, but the scheduler never lets more than one run at a time).
type Loop struct {
	cfg *loopOptions

	root   *Task
	nextID TaskID

	ready    []readyEntry
	io       *ioRegistry
	joins    *joinRegistry
	timers   timerHeap
	timerSeq uint64

	metrics Metrics
}

// New constructs a Loop. It does not start running until [Loop.Run] is
// called.
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Loop{
		cfg:   cfg,
		io:    newIoRegistry(),
		joins: newJoinRegistry(),
	}, nil
}

// Close releases the loop's reactor. Call after [Loop.Run] returns.
func (l *Loop) Close() error {
	return l.cfg.reactor.Close()
}

func (l *Loop) newTask(fn Func) *Task {
	l.nextID++
	return newTask(l, l.nextID, fn)
}

// Run drives root to completion and returns its terminal value, or the
// propagated error if root (or, absent quiet-exception configuration, a
// detached task) fails. It implements the loop(root, ...) operation from
// §6.1: hide_loop_tb and quiet_exc are supplied via [WithHideLoopTraceback]
// and [WithQuietExceptions] at Loop construction.
//
// ctx is an addition beyond the suspension protocol: it lets the caller
// stop driving the loop early. It does not cancel any suspended task — the
// protocol has no such primitive (§5) — it only makes Run return once its
// current iteration completes.
func (l *Loop) Run(ctx context.Context, root Func) (any, error) {
	l.root = l.newTask(root)
	l.pushReady(readyEntry{task: l.root})

	var rootValue any

	for len(l.ready) > 0 || len(l.timers) > 0 || !l.io.empty() {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}

		// Phase 1: dispatch one ready task.
		if len(l.ready) > 0 {
			entry := l.popReady()
			l.metrics.TasksDispatched++
			outcome := l.dispatch(entry)
			if outcome.done {
				if err := l.finishTask(entry.task, outcome.value, outcome.err, &rootValue); err != nil {
					return nil, err
				}
			} else {
				l.handleSuspension(entry.task, outcome.suspension)
			}
		}

		// Phase 2: compute poll timeout.
		timeout := l.computeTimeout()

		// Phase 3: poll the reactor.
		l.metrics.ReactorPolls++
		readyFDs, err := l.cfg.reactor.Poll(timeout)
		if err != nil {
			return nil, WrapError("poll reactor", err)
		}
		l.metrics.IOEventsReady += uint64(len(readyFDs))
		for _, r := range readyFDs {
			if w, ok := l.io.delete(r.FD); ok {
				l.pushReady(readyEntry{task: w.task, value: r.Mask})
			}
		}

		// Phase 4: expire timers, draining every overdue entry in one pass.
		now := l.cfg.clock.Now()
		expired := l.timers.popExpired(now)
		l.metrics.TimersExpired += uint64(len(expired))
		for _, te := range expired {
			l.pushReady(readyEntry{task: te.task})
		}
	}

	return rootValue, nil
}

// dispatch resumes entry.task, starting its goroutine on first dispatch,
// and returns its next suspension or terminal outcome.
func (l *Loop) dispatch(entry readyEntry) stepOutcome {
	if !entry.task.started {
		return entry.task.start()
	}
	return entry.task.resume(entry.value, entry.err)
}

// finishTask applies the terminal-value/terminal-exception propagation
// rules from §4.3 step 1 and §7. It returns a non-nil error only when Run
// must stop immediately: a root-task error, or a detached-task error that
// is not configured to be swallowed quietly.
func (l *Loop) finishTask(task *Task, value any, err error, rootValue *any) error {
	parent, hasParent := l.joins.takeParent(task)

	if err != nil {
		switch {
		case hasParent:
			l.pushReady(readyEntry{task: parent, err: err})
			return nil
		case task == l.root:
			return err
		case l.cfg.quietExceptions:
			l.cfg.logger.Log(LogEntry{
				Level:   LevelWarn,
				Message: "detached task failed, swallowed under quiet exceptions",
				TaskID:  task.id,
				Err:     err,
			})
			return nil
		default:
			return err
		}
	}

	switch {
	case hasParent:
		l.pushReady(readyEntry{task: parent, value: value})
	case task == l.root:
		*rootValue = value
	}
	return nil
}

// handleSuspension dispatches one suspension request per §4.4.
func (l *Loop) handleSuspension(current *Task, s Suspension) {
	switch req := s.(type) {
	case Child:
		l.joins.setParent(req.Task, current)
		l.pushReady(readyEntry{task: req.Task})

	case Spawn:
		l.metrics.TasksSpawned++
		l.pushReady(readyEntry{task: req.Task})
		l.pushReady(readyEntry{task: current})

	case IoRegister:
		l.handleIoRegister(current, req)

	case IoDeregister:
		if err := l.cfg.reactor.Unregister(req.FD); err != nil {
			l.pushReady(readyEntry{task: current, err: WrapError("unregister fd", err)})
			return
		}
		l.io.delete(req.FD)
		l.pushReady(readyEntry{task: current})

	case Sleep:
		l.timerSeq++
		l.timers.push(timerEntry{deadline: req.Deadline, seq: l.timerSeq, task: current})

	case Yield:
		l.pushReady(readyEntry{task: current})

	default:
		l.pushReady(readyEntry{task: current, err: ErrMalformedRequest})
	}
}

// handleIoRegister implements the IoRegister row of §4.4, including the
// documented "replace silently" resolution of the re-registration open
// question (see DESIGN.md): a displaced waiter is logged, not re-enqueued.
func (l *Loop) handleIoRegister(current *Task, req IoRegister) {
	if req.Mask == 0 {
		l.pushReady(readyEntry{task: current, err: ErrMalformedRequest})
		return
	}

	_, alreadyRegistered := l.io.get(req.FD)
	var err error
	if alreadyRegistered {
		err = l.cfg.reactor.Modify(req.FD, req.Mask)
	} else {
		err = l.cfg.reactor.Register(req.FD, req.Mask)
	}
	if err != nil {
		l.pushReady(readyEntry{task: current, err: ErrMalformedRequest})
		return
	}

	prev, displaced := l.io.set(req.FD, req.Mask, current)
	if displaced {
		l.cfg.logger.Log(LogEntry{
			Level:   LevelWarn,
			Message: "io waiter displaced by re-registration",
			TaskID:  prev.task.id,
			FD:      req.FD,
		})
	}
}

// computeTimeout implements §4.3 step 2.
func (l *Loop) computeTimeout() time.Duration {
	if len(l.ready) > 0 || l.io.empty() {
		return 0
	}
	if top, ok := l.timers.earliest(); ok {
		d := top.deadline.Sub(l.cfg.clock.Now())
		if d < 0 {
			d = 0
		}
		return d
	}
	return NoTimeout
}

func (l *Loop) pushReady(e readyEntry) {
	l.ready = append(l.ready, e)
}

func (l *Loop) popReady() readyEntry {
	e := l.ready[0]
	if len(l.ready) == 1 {
		l.ready = nil
	} else {
		l.ready = l.ready[1:]
	}
	return e
}
