package microio

// Metrics is a point-in-time snapshot of scheduler activity counters. It
// exists for lightweight observability without pulling in a full metrics
// client; all fields are cumulative since the owning [Loop] started
// running.
type Metrics struct {
	TasksDispatched uint64
	TasksSpawned    uint64
	TimersExpired   uint64
	ReactorPolls    uint64
	IOEventsReady   uint64
}

// Metrics returns a snapshot of the loop's cumulative activity counters.
// Only meaningful while [Loop.Run] is not concurrently executing, since the
// loop itself never runs on more than one goroutine at a time.
func (l *Loop) Metrics() Metrics {
	return l.metrics
}
