// Package logger builds the service's slog.Logger from LogSettings.
//
// Usage:
//
//	log := logger.New(s.Log)
//	log.Info("server starting", "port", 8000)
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fernandezvara/pgtx/internal/settings"
)

// New creates a logger writing to stdout.
func New(cfg settings.LogSettings) *slog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter creates a logger that writes to w. Format "text" selects the
// text handler; anything else produces JSON.
func NewWithWriter(cfg settings.LogSettings, w io.Writer) *slog.Logger {
	level := ParseLevel(cfg.Level)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// ParseLevel converts a level name to slog.Level, defaulting to Info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent returns a logger tagging every entry with a component name.
func WithComponent(log *slog.Logger, component string) *slog.Logger {
	return log.With("component", component)
}

// WithRequestID returns a logger tagging every entry with a request ID.
func WithRequestID(log *slog.Logger, requestID string) *slog.Logger {
	return log.With("request_id", requestID)
}
