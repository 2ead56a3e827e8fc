// Package logger_test contains tests for the logger package
package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/phrazzld/scribe/internal/config"
	"github.com/phrazzld/scribe/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		in    string
		level slog.Level
		ok    bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{" error ", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
	}
	for _, tc := range testCases {
		level, ok := logger.ParseLevel(tc.in)
		assert.Equal(t, tc.level, level, tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
	}
}

func TestNew(t *testing.T) {
	t.Run("writes JSON at the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		l := logger.New(&buf, "warn")

		l.Info("hidden")
		l.Warn("shown", "task_id", "abc")

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 1)
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
		assert.Equal(t, "shown", entry["msg"])
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "abc", entry["task_id"])
	})

	t.Run("invalid level falls back to info with a warning", func(t *testing.T) {
		var buf bytes.Buffer
		l := logger.New(&buf, "chatty")

		l.Debug("hidden")

		out := buf.String()
		assert.Contains(t, out, "invalid log level configured")
		assert.Contains(t, out, `"configured_level":"chatty"`)
		assert.NotContains(t, out, "hidden")
	})
}

func TestSetup(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	l, err := logger.Setup(config.ServerConfig{LogLevel: "debug"})

	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Same(t, l, slog.Default())
	assert.True(t, l.Enabled(context.Background(), slog.LevelDebug))
}

func TestContext(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(&buf, "info").With("trace_id", "t-1")

	ctx := logger.WithContext(context.Background(), l)
	logger.FromContext(ctx).Info("hello")

	assert.Contains(t, buf.String(), `"trace_id":"t-1"`)
	assert.Same(t, slog.Default(), logger.FromContext(context.Background()))
}

func TestFromContextOrDefault(t *testing.T) {
	var buf bytes.Buffer
	fallback := logger.New(&buf, "info")
	scoped := logger.New(&buf, "info").With("trace_id", "t-2")

	assert.Same(t, fallback, logger.FromContextOrDefault(context.Background(), fallback))
	assert.Same(t, scoped, logger.FromContextOrDefault(logger.WithContext(context.Background(), scoped), fallback))
	assert.Same(t, slog.Default(), logger.FromContextOrDefault(context.Background(), nil))
}
