package microio

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// StumpyLogger adapts a github.com/joeycumines/logiface logger backed by
// github.com/joeycumines/stumpy's JSON event encoding to the [Logger]
// interface, for deployments that want structured diagnostics instead of
// [DefaultLogger]'s plain text.
type StumpyLogger struct {
	logger *logiface.Logger[*stumpy.Event]
}

// NewStumpyLogger builds a StumpyLogger writing one JSON object per line to
// w (os.Stderr if nil), filtering out entries below minLevel.
func NewStumpyLogger(w io.Writer, minLevel LogLevel) *StumpyLogger {
	if w == nil {
		w = os.Stderr
	}
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(toLogifaceLevel(minLevel)),
	)
	return &StumpyLogger{logger: logger}
}

// IsEnabled reports whether level would actually be written, mirroring the
// threshold check logiface applies internally.
func (s *StumpyLogger) IsEnabled(level LogLevel) bool {
	return toLogifaceLevel(level) <= s.logger.Level()
}

// Log writes entry as one structured JSON event.
func (s *StumpyLogger) Log(entry LogEntry) {
	b := s.builder(entry.Level)
	if entry.TaskID != 0 {
		b = b.Int64("task", int64(entry.TaskID))
	}
	if entry.FD != 0 {
		b = b.Int("fd", entry.FD)
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	b.Log(entry.Message)
}

func (s *StumpyLogger) builder(level LogLevel) *logiface.Builder[*stumpy.Event] {
	switch level {
	case LevelDebug:
		return s.logger.Debug()
	case LevelInfo:
		return s.logger.Info()
	case LevelWarn:
		return s.logger.Warning()
	case LevelError:
		return s.logger.Err()
	default:
		return s.logger.Info()
	}
}

func toLogifaceLevel(level LogLevel) logiface.Level {
	switch level {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelInfo:
		return logiface.LevelInformational
	case LevelWarn:
		return logiface.LevelWarning
	case LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}
