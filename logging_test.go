package microio

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLogger(&buf, LevelWarn)

	assert.False(t, logger.IsEnabled(LevelInfo))
	logger.Log(LogEntry{Level: LevelInfo, Message: "should be dropped"})
	assert.Empty(t, buf.String())

	assert.True(t, logger.IsEnabled(LevelWarn))
	logger.Log(LogEntry{Level: LevelWarn, Message: "fd dropped", TaskID: 7, FD: 5})
	out := buf.String()
	assert.Contains(t, out, "fd dropped")
	assert.Contains(t, out, "task=7")
	assert.Contains(t, out, "fd=5")
}

func TestNoopLoggerDiscardsEverything(t *testing.T) {
	var l noopLogger
	assert.False(t, l.IsEnabled(LevelError))
	l.Log(LogEntry{Level: LevelError, Message: "ignored"})
}

func TestLogLevelString(t *testing.T) {
	for _, lvl := range []LogLevel{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		assert.NotEmpty(t, lvl.String())
		assert.False(t, strings.Contains(lvl.String(), "unknown"))
	}
	assert.Equal(t, "unknown", LogLevel(99).String())
}
