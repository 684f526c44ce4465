package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFromName(t *testing.T) {
	assert.Equal(t, LevelTrace, LevelFromName("trace"))
	assert.Equal(t, slog.LevelDebug, LevelFromName("debug"))
	assert.Equal(t, slog.LevelWarn, LevelFromName("warn"))
	assert.Equal(t, slog.LevelError, LevelFromName("error"))
	assert.Equal(t, slog.LevelInfo, LevelFromName("info"))
	assert.Equal(t, slog.LevelInfo, LevelFromName("bogus"), "unknown names fall back to info")
}

func TestNewFileLogger(t *testing.T) {
	t.Run("WritesJSONWithServiceAttribute", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "app.log")

		logger, closeFn, err := NewFileLogger(path, "http", slog.LevelInfo, FileLoggerOptions{})
		require.NoError(t, err)

		logger.Info("http request", "method", "GET", "status", 200)
		require.NoError(t, closeFn())

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(data, &entry))
		assert.Equal(t, "http request", entry["msg"])
		assert.Equal(t, "http", entry["service"])
		assert.Equal(t, "GET", entry["method"])
		assert.EqualValues(t, 200, entry["status"])
	})

	t.Run("CreatesMissingDirectory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "nested", "app.log")

		logger, closeFn, err := NewFileLogger(path, "svc", slog.LevelInfo, FileLoggerOptions{})
		require.NoError(t, err)
		defer closeFn()

		logger.Info("created")
		assert.FileExists(t, path)
	})

	t.Run("HonorsLevel", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "app.log")

		logger, closeFn, err := NewFileLogger(path, "svc", slog.LevelWarn, FileLoggerOptions{})
		require.NoError(t, err)

		logger.Info("suppressed")
		logger.Warn("kept")
		require.NoError(t, closeFn())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "suppressed")
		assert.Contains(t, string(data), "kept")
	})
}
