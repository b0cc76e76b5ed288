// Package logging builds the process-wide slog logger: text or JSON on
// stdout, optionally teed into a size-rotated log file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sakif/lendpal/internal/config"
)

// Rotation limits for the log file. MaxSize is in megabytes, MaxAge in days.
const (
	MaxSize    = 100
	MaxBackups = 3
	MaxAge     = 28
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ParseLevel maps a config level name onto slog. Unknown names fall back to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a logger writing to out (os.Stdout when nil). When
// cfg.LogFile is set, records are also written to that file and the
// returned closer must be closed on shutdown.
func New(cfg config.ServerConfig, out io.Writer) (*slog.Logger, io.Closer, error) {
	if out == nil {
		out = os.Stdout
	}

	var closer io.Closer = nopCloser{}
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, nil, fmt.Errorf("logging: creating log directory: %w", err)
		}
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    MaxSize,
			MaxBackups: MaxBackups,
			MaxAge:     MaxAge,
			Compress:   true,
		}
		out = io.MultiWriter(out, fileWriter)
		closer = fileWriter
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.LogLevel)}

	var h slog.Handler
	switch cfg.LogFormat {
	case "json":
		h = slog.NewJSONHandler(out, opts)
	default:
		h = slog.NewTextHandler(out, opts)
	}

	return slog.New(h), closer, nil
}
