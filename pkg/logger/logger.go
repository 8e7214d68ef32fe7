package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger so components can tag their log lines with a
// stable component name.
type Logger struct {
	*slog.Logger
}

// New builds a JSON logger writing to w at the given level.
// Level is one of "debug", "info", "warn", "error"; anything else means info.
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = os.Stdout
	}

	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	return &Logger{Logger: slog.New(h)}
}

// Default returns an info-level logger on stdout.
func Default() *Logger {
	return New(os.Stdout, "info")
}

// WithComponent returns a child logger that carries a component attribute.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{Logger: l.Logger.With("component", name)}
}
