package microio

import "time"

// loopOptions holds configuration resolved from a slice of [LoopOption].
type loopOptions struct {
	hideLoopTraceback bool
	quietExceptions   bool
	logger            Logger
	clock             Clock
	reactor           Reactor
}

// LoopOption configures a [Loop] at construction time.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption from a plain function, the way the
// rest of this module's functional options are built.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithHideLoopTraceback controls stack capture for a [PanicError]: when
// enabled, no stack trace is captured at all (Stack stays nil), so no frames
// internal to the loop appear; by default the panicking task goroutine's
// full stack is captured. Default false.
func WithHideLoopTraceback(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.hideLoopTraceback = enabled
		return nil
	}}
}

// WithQuietExceptions requests that unhandled errors from detached (spawned,
// parent-less) tasks be logged through the configured [Logger] rather than
// propagated out of [Loop.Run]. It has no effect on the root task: its
// errors always propagate. Default false.
func WithQuietExceptions(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.quietExceptions = enabled
		return nil
	}}
}

// WithLogger sets the diagnostic [Logger] used for dropped I/O waiters and,
// when [WithQuietExceptions] is set, swallowed detached-task errors.
// Default a no-op logger.
func WithLogger(logger Logger) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithClock overrides the wall clock used for [Task.Sleep] deadlines and
// timer expiry. Intended for deterministic tests; default [time.Now].
func WithClock(clock Clock) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.clock = clock
		return nil
	}}
}

// WithReactor overrides the I/O readiness backend the loop polls. Default is
// the best platform backend ([newPlatformReactor]).
func WithReactor(reactor Reactor) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.reactor = reactor
		return nil
	}}
}

// resolveLoopOptions applies options over defaults, constructing the
// platform reactor only if none was supplied.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		logger: noopLogger{},
		clock:  realClock{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.reactor == nil {
		reactor, err := newPlatformReactor()
		if err != nil {
			return nil, WrapError("create reactor", err)
		}
		cfg.reactor = reactor
	}
	return cfg, nil
}

// Clock abstracts wall-clock time so tests can control sleep deadlines
// deterministically instead of racing real time.
type Clock interface {
	Now() time.Time
}

// realClock is the default Clock, backed by [time.Now].
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
