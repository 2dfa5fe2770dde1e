// Package logging provides structured logging for the agent pool.
// It wraps log/slog to produce JSON-formatted records with persistent
// component/agent/task attributes.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog with With-style child loggers. Safe for concurrent use.
type Logger struct {
	logger *slog.Logger
}

// New creates a Logger writing JSON records to w at the given level.
// Unrecognized levels default to INFO.
func New(w io.Writer, level string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	return &Logger{logger: slog.New(slog.NewJSONHandler(w, opts))}
}

// NewStderr creates a Logger writing to stderr.
func NewStderr(level string) *Logger {
	return New(os.Stderr, level)
}

// Nop returns a Logger that discards all output. Useful for tests.
func Nop() *Logger {
	return New(io.Discard, "error")
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a child logger carrying additional key-value attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

// WithComponent returns a child logger tagged with a component name.
func (l *Logger) WithComponent(name string) *Logger {
	return l.With("component", name)
}

// Debug logs at DEBUG level with optional key-value pairs.
func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// Info logs at INFO level with optional key-value pairs.
func (l *Logger) Info(msg string, args ...any) { l.logger.Info(msg, args...) }

// Warn logs at WARN level with optional key-value pairs.
func (l *Logger) Warn(msg string, args ...any) { l.logger.Warn(msg, args...) }

// Error logs at ERROR level with optional key-value pairs.
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
