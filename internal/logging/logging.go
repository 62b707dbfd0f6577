// Package logging provides structured logging with file rotation and
// helpers for keeping captured secrets out of log lines.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	FilePath   string // path to log file (empty = stderr only)
	MaxSizeMB  int    // max size in MB before rotation
	MaxBackups int    // old log files to retain
	MaxAgeDays int    // days to retain old log files
	Compress   bool   // compress rotated files
}

// DefaultConfig returns sensible defaults for logging.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		MaxSizeMB:  10,
		MaxBackups: 5,
		MaxAgeDays: 28,
		Compress:   true,
	}
}

// Setup initializes the global slog logger. Output goes to the rotated
// file when configured, else stderr; stdout stays clean for the MCP
// stdio transport. Returns a cleanup function to call on shutdown.
func Setup(cfg Config) (func() error, error) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var writer io.Writer
	var cleanup func() error

	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, err
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}
		writer = lj
		cleanup = lj.Close
	} else {
		writer = os.Stderr
		cleanup = func() error { return nil }
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(writer, opts)))
	return cleanup, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// Redact shortens a secret for logging. Values of 12 characters or more
// keep their first and last 4 characters; shorter values are fully
// masked.
func Redact(value string) string {
	if len(value) >= 12 {
		return value[:4] + "..." + value[len(value)-4:]
	}
	if value == "" {
		return ""
	}
	return "***"
}

// SecretValue wraps Redact into a slog attribute.
func SecretValue(key, value string) slog.Attr {
	return slog.String(key, Redact(value))
}
