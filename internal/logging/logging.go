// Package logging provides the structured logging collaborator injected
// into the execution engine. The default logger discards everything, so
// library callers opt in rather than out.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// Format selects the output encoding for a logger.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Discard returns a logger whose output goes nowhere. Used as the default
// collaborator so logging never alters control flow.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// New creates a logger writing to w in the given format. A nil writer
// defaults to stderr.
func New(w io.Writer, format Format, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Exec logs a completed remote command. Credentials are never logged.
func Exec(l *slog.Logger, addr, command string, exitCode int, d time.Duration) {
	l.Info("command executed",
		"host", addr,
		"command", command,
		"exit_code", exitCode,
		"duration_ms", d.Milliseconds(),
	)
}

// ExecError logs a per-host failure. Credentials are never logged.
func ExecError(l *slog.Logger, addr, command string, err error) {
	l.Error("command failed",
		"host", addr,
		"command", command,
		"error", err.Error(),
	)
}
