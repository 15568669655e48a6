package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var entries []map[string]any
	for line := range strings.Lines(buf.String()) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), "JSON log should be valid")
		entries = append(entries, entry)
	}
	return entries
}

func TestLogger_parseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info+2", slog.LevelInfo + 2},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := parseLevel(tc.input)

			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	for _, bad := range []string{"", "verbose"} {
		t.Run("invalid "+bad, func(t *testing.T) {
			_, err := parseLevel(bad)
			require.ErrorContains(t, err, "unknown log level")
		})
	}
}

func TestLogger_New(t *testing.T) {
	t.Run("development writes text", func(t *testing.T) {
		buf := &bytes.Buffer{}

		logger, err := New(EnvDevelopment, LevelInfo, WithWriter(buf))
		require.NoError(t, err)
		logger.Info("topup done", "account", "a1")

		require.Contains(t, buf.String(), "account=a1")
		require.Contains(t, buf.String(), "source=logger_test.go:")
	})

	t.Run("production writes json", func(t *testing.T) {
		buf := &bytes.Buffer{}

		logger, err := New(EnvProduction, LevelInfo, WithWriter(buf))
		require.NoError(t, err)
		logger.Info("topup done", "account", "a1")

		entries := decode(t, buf)
		require.Len(t, entries, 1)
		require.Equal(t, "a1", entries[0]["account"])
		require.Equal(t, "logger_test.go", entries[0]["source"].(map[string]any)["file"], "source must point at the caller")
	})

	t.Run("unknown environment", func(t *testing.T) {
		_, err := New("staging", LevelInfo)
		require.Error(t, err)
	})

	t.Run("unknown level", func(t *testing.T) {
		_, err := New(EnvDevelopment, "verbose")
		require.Error(t, err)
	})
}

func TestLogger_Level(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := NewJSONLogger(LevelWarn, WithWriter(buf))
	require.NoError(t, err)

	logger.Debug("skipped")
	logger.Info("skipped")
	logger.Warn("lock wait is long")
	logger.Error("storage failure")

	entries := decode(t, buf)
	require.Len(t, entries, 2)
	require.Equal(t, "WARN", entries[0]["level"])
	require.Equal(t, "ERROR", entries[1]["level"])
}

func TestLogger_WithGroup(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := NewJSONLogger(LevelInfo, WithWriter(buf))
	require.NoError(t, err)

	logger.With("operation", "TopUp").WithGroup("account").Info("done", "id", "a1")

	entries := decode(t, buf)
	require.Len(t, entries, 1)
	require.Equal(t, "TopUp", entries[0]["operation"])
	require.Equal(t, map[string]any{"id": "a1"}, entries[0]["account"])
}

func TestLogger_NewNoOpLogger(t *testing.T) {
	require.NotPanics(t, func() {
		NewNoOpLogger().With("k", "v").Error("dropped")
	})
}

func TestLogger_WithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.log")
	buf := &bytes.Buffer{}

	logger, err := NewJSONLogger(LevelInfo, WithWriter(buf), WithFile(path))
	require.NoError(t, err)
	logger.Info("written twice")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(content), "written twice")
	require.Contains(t, buf.String(), "written twice")
}
