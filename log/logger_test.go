package log

import (
	"bytes"
	"testing"

	"github.com/kataras/golog"
	"github.com/stretchr/testify/assert"
)

func TestDefaultLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewCustomLogger(&buf, LogLevelWarn)

	logger.Debug("debug message")
	logger.Info("info message")
	assert.Empty(t, buf.String())

	logger.Warn("warn message")
	logger.Error("error message")
	out := buf.String()
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error message")
	assert.Contains(t, out, "[taskgraph]")
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LogLevelDebug.String())
	assert.Equal(t, "INFO", LogLevelInfo.String())
	assert.Equal(t, "WARN", LogLevelWarn.String())
	assert.Equal(t, "ERROR", LogLevelError.String())
	assert.Equal(t, "NONE", LogLevelNone.String())
}

func TestPackageLevelLogger(t *testing.T) {
	original := GetDefaultLogger()
	defer SetDefaultLogger(original)

	var buf bytes.Buffer
	SetDefaultLogger(NewCustomLogger(&buf, LogLevelInfo))

	Info("run %s started", "run-1")
	assert.Contains(t, buf.String(), "run run-1 started")

	Debug("invisible at info level")
	assert.NotContains(t, buf.String(), "invisible")
}

func TestNoOpLogger(t *testing.T) {
	logger := &NoOpLogger{}
	// Must be safe to call at every level.
	logger.Debug("d")
	logger.Info("i %d", 1)
	logger.Warn("w")
	logger.Error("e %v", nil)
}

func TestGologLogger(t *testing.T) {
	glogger := golog.New()
	logger := NewGologLogger(glogger)
	assert.NotNil(t, logger)
	assert.Equal(t, LogLevelInfo, logger.GetLevel())

	logger.SetLevel(LogLevelDebug)
	assert.Equal(t, LogLevelDebug, logger.GetLevel())
	logger.SetLevel(LogLevelNone)
	assert.Equal(t, LogLevelNone, logger.GetLevel())

	logger.SetLevel(LogLevelDebug)
	logger.Debug("debug %s", "detail")
	logger.Info("info %d", 42)
	logger.Warn("warn %v", map[string]string{"k": "v"})
	logger.Error("error %f", 3.14)
}
