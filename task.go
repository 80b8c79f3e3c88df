package microio

import (
	"runtime/debug"
	"time"
)

// TaskID identifies a [Task] uniquely within the [Loop] that created it.
type TaskID uint64

// EventMask is a bitwise combination of readiness flags. READ, WRITE and
// ERROR are the only defined bits; the numeric values are unspecified
// outside this package and compose only by bitwise-or.
type EventMask int

const (
	// EventRead indicates a descriptor is ready to be read without blocking.
	EventRead EventMask = 1 << iota
	// EventWrite indicates a descriptor is ready to be written without blocking.
	EventWrite
	// EventError indicates a descriptor has an error or hang-up condition.
	// The reactor ORs this bit into every registration automatically.
	EventError
)

// Func is the body of a task: it runs on a dedicated goroutine, suspending
// through calls to methods on the [Task] handle it receives, and returns its
// terminal value or a terminal error.
type Func func(t *Task) (any, error)

// Suspension is the tagged set of requests a task may emit to describe what
// it is waiting for. The concrete types are [Child], [Spawn], [IoRegister],
// [IoDeregister], [Sleep] and [Yield]; any other implementation is rejected
// by the scheduler as malformed.
type Suspension interface {
	suspension()
}

// Child suspends the current task until Task terminates, establishing a
// join relation: the current task becomes Task's parent and inherits its
// terminal value or error.
type Child struct{ Task *Task }

// Spawn starts Task as a detached sibling with no join relation and
// re-enqueues the current task immediately.
type Spawn struct{ Task *Task }

// IoRegister requests readiness notification for FD under Mask, a non-zero
// combination of [EventRead], [EventWrite] and [EventError].
type IoRegister struct {
	FD   int
	Mask EventMask
}

// IoDeregister drops any readiness registration for FD.
type IoDeregister struct{ FD int }

// Sleep suspends the current task until at least Deadline.
type Sleep struct{ Deadline time.Time }

// Yield voluntarily gives up the scheduler for one turn with no side effect.
type Yield struct{}

func (Child) suspension()        {}
func (Spawn) suspension()        {}
func (IoRegister) suspension()   {}
func (IoDeregister) suspension() {}
func (Sleep) suspension()        {}
func (Yield) suspension()        {}

// resumeMsg is what the scheduler sends into a suspended task's resumeCh to
// wake it: at most one of value/err is meaningful.
type resumeMsg struct {
	value any
	err   error
}

// stepOutcome is what a running task sends into its outCh: either a fresh
// suspension request, or a terminal value/error (done == true).
type stepOutcome struct {
	suspension Suspension
	value      any
	err        error
	done       bool
}

// Task is a suspendable computation scheduled by a [Loop]. Each task runs on
// its own goroutine but the scheduler guarantees only one task's goroutine
// is ever runnable at a time: a task's goroutine is started only when the
// scheduler first dispatches it, it blocks on resumeCh the instant it
// suspends, and the scheduler blocks on outCh until it suspends or finishes.
type Task struct {
	id      TaskID
	loop    *Loop
	fn      Func
	parent  *Task
	started bool

	resumeCh chan resumeMsg
	outCh    chan stepOutcome
}

// ID returns the task's identity, stable for its lifetime and unique within
// the owning loop.
func (t *Task) ID() TaskID { return t.id }

func newTask(loop *Loop, id TaskID, fn Func) *Task {
	return &Task{
		id:       id,
		loop:     loop,
		fn:       fn,
		resumeCh: make(chan resumeMsg, 1),
		outCh:    make(chan stepOutcome, 1),
	}
}

// start launches the task's goroutine and blocks until it produces its
// first suspension or terminal outcome.
func (t *Task) start() stepOutcome {
	t.started = true
	go t.run()
	return <-t.outCh
}

// resume wakes an already-started task with a resume value or error and
// blocks until it produces its next suspension or terminal outcome.
func (t *Task) resume(value any, err error) stepOutcome {
	t.resumeCh <- resumeMsg{value: value, err: err}
	return <-t.outCh
}

// run is the task goroutine's entry point. A panic carrying [Return] is
// treated identically to a normal (value, nil) return; any other panic is
// wrapped in a [PanicError] and reported as a terminal error.
func (t *Task) run() {
	var v any
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				if ret, ok := r.(Return); ok {
					v = ret.Value
					return
				}
				pe := &PanicError{Recovered: r}
				if !t.loop.cfg.hideLoopTraceback {
					pe.Stack = debug.Stack()
				}
				err = pe
			}
		}()
		v, err = t.fn(t)
	}()
	t.outCh <- stepOutcome{done: true, value: v, err: err}
}

// suspend sends a suspension request to the scheduler and blocks until
// resumed, returning the resume value or error.
func (t *Task) suspend(s Suspension) (any, error) {
	t.outCh <- stepOutcome{suspension: s}
	msg := <-t.resumeCh
	return msg.value, msg.err
}

// Call runs fn as a child task and blocks until it terminates, returning its
// terminal value or propagating its terminal error. This is the Child
// suspension kind exposed as an ordinary blocking call.
func (t *Task) Call(fn Func) (any, error) {
	child := t.loop.newTask(fn)
	return t.suspend(Child{Task: child})
}

// Go starts fn as a detached task with no join relation and returns
// immediately with its handle; the current task is simply rescheduled, not
// blocked. This is the Spawn suspension kind.
func (t *Task) Go(fn Func) *Task {
	child := t.loop.newTask(fn)
	t.suspend(Spawn{Task: child})
	return child
}

// RegisterIO requests readiness notification on fd for mask and blocks until
// the reactor reports readiness, returning the observed event mask.
func (t *Task) RegisterIO(fd int, mask EventMask) (EventMask, error) {
	v, err := t.suspend(IoRegister{FD: fd, Mask: mask})
	if err != nil {
		return 0, err
	}
	observed, _ := v.(EventMask)
	return observed, nil
}

// DeregisterIO drops any readiness registration for fd and returns once the
// reactor has forgotten it.
func (t *Task) DeregisterIO(fd int) error {
	_, err := t.suspend(IoDeregister{FD: fd})
	return err
}

// Sleep suspends the task until at least d has elapsed, per the loop's
// configured [Clock].
func (t *Task) Sleep(d time.Duration) error {
	_, err := t.suspend(Sleep{Deadline: t.loop.cfg.clock.Now().Add(d)})
	return err
}

// Yield gives up the scheduler for one turn and returns once rescheduled.
func (t *Task) Yield() error {
	_, err := t.suspend(Yield{})
	return err
}
