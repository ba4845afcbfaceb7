package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, level, file string) (*Logger, *bytes.Buffer, string) {
	t.Helper()
	dir := t.TempDir()
	console := &bytes.Buffer{}
	logger, err := New(Config{Level: level, Dir: dir, Filename: file, Console: console})
	require.NoError(t, err)
	t.Cleanup(func() { _ = logger.Close() })
	return logger, console, filepath.Join(dir, file)
}

func TestNew_DefaultsAndClose(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{Dir: dir, Filename: "default.log", Console: &bytes.Buffer{}})
	require.NoError(t, err)
	assert.NotNil(t, logger)

	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close(), "close must be idempotent")
}

func TestLogger_InfoWritesFileAndConsole(t *testing.T) {
	logger, console, path := newTestLogger(t, "info", "info.log")

	logger.Info("user %s sent photo %d", "alice", 3)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "user alice sent photo 3")
	assert.Contains(t, console.String(), "user alice sent photo 3")
	assert.Contains(t, console.String(), "[INFO]")
}

func TestLogger_TaggedMessages(t *testing.T) {
	logger, console, path := newTestLogger(t, "debug", "tag.log")

	logger.InfoTag("DISPATCH", "routing update %d", 42)
	logger.WarnTag("TELEGRAM", "delete notice failed")
	logger.DebugTag("ANALYZER", "prompt length=%d", 10)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "[DISPATCH] routing update 42")
	assert.Contains(t, string(content), "[TELEGRAM] delete notice failed")
	assert.Contains(t, string(content), "[ANALYZER] prompt length=10")
	assert.Contains(t, console.String(), "[WARN]")
}

func TestLogger_StructuredFields(t *testing.T) {
	logger, _, path := newTestLogger(t, "info", "fields.log")

	logger.log(slog.LevelInfo, "update handled", map[string]interface{}{"chat_id": 7, "kind": "photo"})

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"chat_id":7`)
	assert.Contains(t, string(content), `"kind":"photo"`)
}

func TestLogger_LogLevelFiltering(t *testing.T) {
	logger, _, path := newTestLogger(t, "error", "filter.log")

	logger.Debug("debug hidden")
	logger.Info("info hidden")
	logger.Warn("warn hidden")
	logger.Error("this should appear")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "hidden")
	assert.Contains(t, string(content), "this should appear")
}

func TestLogger_NilReceiverIsSafe(t *testing.T) {
	var logger *Logger
	assert.NotPanics(t, func() {
		logger.InfoTag("BOOT", "nothing")
		logger.ErrorTag("BOOT", "nothing")
		_ = logger.Close()
	})
}

func TestLogger_RotateAndClean(t *testing.T) {
	logger, _, path := newTestLogger(t, "info", "server.log")
	dir := filepath.Dir(path)

	stale := filepath.Join(dir, "server-2000-01-01.log")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	logger.Info("before rotation")
	today := logger.currentDate
	logger.checkAndRotate(time.Now().AddDate(0, 0, 1))

	_, err := os.Stat(filepath.Join(dir, "server-"+today+".log"))
	assert.NoError(t, err, "current file should be archived with its date")
	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err), "files older than retention should be removed")

	logger.Info("after rotation")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "after rotation")
	assert.NotContains(t, string(content), "before rotation")
}

func TestFormatLog(t *testing.T) {
	tests := []struct {
		tag, msg, want string
	}{
		{"BOOT", "ready", "[BOOT] ready"},
		{"", "plain", "plain"},
		{"HTTP", "[HTTP] already tagged", "[HTTP] already tagged"},
		{" EVENT ", "  padded ", "[EVENT] padded"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatLog(tt.tag, tt.msg))
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", ParseLevel("DEBUG").String())
	assert.Equal(t, "WARN", ParseLevel("warning").String())
	assert.Equal(t, "ERROR", ParseLevel("error").String())
	assert.Equal(t, "INFO", ParseLevel("bogus").String())
}
