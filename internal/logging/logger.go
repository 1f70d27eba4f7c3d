package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Level is a user-facing log level decoupled from slog.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger is the logging interface used across the module.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

// SlogAdapter wraps *slog.Logger to implement Logger.
type SlogAdapter struct {
	*slog.Logger
}

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// With returns a Logger that adds args to every record.
func (s *SlogAdapter) With(args ...any) Logger {
	return &SlogAdapter{Logger: s.Logger.With(args...)}
}

// New builds a Logger writing JSON (format "json") or text records to w.
func New(level Level, format string, w io.Writer) Logger {
	opts := &slog.HandlerOptions{Level: level.slog()}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return NewSlogAdapter(slog.New(handler))
}

// NoOp discards everything.
type NoOp struct{}

func (NoOp) Debug(string, ...any) {}
func (NoOp) Info(string, ...any)  {}
func (NoOp) Warn(string, ...any)  {}
func (NoOp) Error(string, ...any) {}

// With returns the receiver.
func (n NoOp) With(...any) Logger { return n }
