package logger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// newFileLogger builds a JSON logger writing to a temp file and returns the
// logger and the file path.
func newFileLogger(t *testing.T, cfg Config) (*Logger, string) {
	path := filepath.Join(t.TempDir(), "log.json")
	cfg.Encoding = "json"
	cfg.OutputPaths = []string{path}
	l, err := New(cfg)
	require.NoError(t, err)
	return l, path
}

func readLog(t *testing.T, l *Logger, path string) string {
	_ = l.Sync()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// TestGetLogLevel verifies string levels map to zap levels with an info
// fallback
func TestGetLogLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, getLogLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, getLogLevel("warn"))
	assert.Equal(t, zapcore.InfoLevel, getLogLevel("verbose"))
}

// TestLogger_WritesFields verifies key/value pairs and errors are encoded
func TestLogger_WritesFields(t *testing.T) {
	l, path := newFileLogger(t, Config{Level: DebugLevel})

	l.With("run_id", "r1").WithComponent("scanner").Info("page scanned", "page", 2, "cause", errors.New("boom"))

	out := readLog(t, l, path)
	assert.Contains(t, out, `"msg":"page scanned"`)
	assert.Contains(t, out, `"run_id":"r1"`)
	assert.Contains(t, out, `"component":"scanner"`)
	assert.Contains(t, out, `"page":2`)
	assert.Contains(t, out, `"cause":"boom"`)
}

// TestLogger_WithError verifies the error is attached under "error"
func TestLogger_WithError(t *testing.T) {
	l, path := newFileLogger(t, Config{})

	l.WithComponent("writer").WithError(errors.New("quota exceeded")).Error("failed to write destination", "destination", "3")

	out := readLog(t, l, path)
	assert.Contains(t, out, `"error":"quota exceeded"`)
	assert.Contains(t, out, `"destination":"3"`)
}

// TestLogger_MutedComponentDropsDebug verifies muted components keep
// warnings but lose debug output
func TestLogger_MutedComponentDropsDebug(t *testing.T) {
	l, path := newFileLogger(t, Config{Level: DebugLevel, MuteComponents: []string{"dates"}})

	muted := l.WithComponent("dates")
	muted.Debug("parsed date")
	muted.Warn("unparseable date")
	l.WithComponent("writer").Debug("row built")

	out := readLog(t, l, path)
	assert.NotContains(t, out, "parsed date")
	assert.Contains(t, out, "unparseable date")
	assert.Contains(t, out, "row built")
}

// TestLogger_MissingValue verifies a dangling key is reported instead of
// panicking
func TestLogger_MissingValue(t *testing.T) {
	l, path := newFileLogger(t, Config{})

	l.Info("dangling", "key")

	out := readLog(t, l, path)
	assert.Contains(t, out, "missing value for key")
}

// TestNoOp verifies the no-op logger is safe to use
func TestNoOp(t *testing.T) {
	l := NewNoOp()
	l.With("a", 1).WithComponent("x").WithError(errors.New("e")).Info("ignored")
	assert.NoError(t, l.Sync())
}
