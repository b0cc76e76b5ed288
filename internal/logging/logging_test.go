package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/lendpal/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(config.ServerConfig{LogLevel: "warn", LogFormat: "text"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("item overdue", slog.String("item_id", "abc"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=\"item overdue\"")
	assert.Contains(t, out, "item_id=abc")
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(config.ServerConfig{LogLevel: "debug", LogFormat: "json"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug("lent", slog.String("user_id", "u1"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "lent", rec["msg"])
	assert.Equal(t, "DEBUG", rec["level"])
	assert.Equal(t, "u1", rec["user_id"])
}

func TestNewWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "lendpal.log")
	var buf bytes.Buffer

	logger, closer, err := New(config.ServerConfig{LogLevel: "info", LogFormat: "text", LogFile: path}, &buf)
	require.NoError(t, err)

	logger.Info("saved registry")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "saved registry"))
	assert.Contains(t, buf.String(), "saved registry", "stdout copy should still be written")
}
