// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Options controls logger construction.
type Options struct {
	// Level is the minimum level to emit
	Level slog.Level
	// Format selects the handler: "json", "text", or "auto" (default).
	// Auto picks colorized text when the output is a terminal, JSON otherwise.
	Format string
	// Output defaults to os.Stderr
	Output io.Writer
}

// Setup builds a slog.Logger from the options and installs it as the default.
func Setup(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "json":
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: opts.Level})
	case "text":
		handler = textHandler(out, opts.Level)
	default:
		if isTerminal(out) {
			handler = textHandler(out, opts.Level)
		} else {
			handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: opts.Level})
		}
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func textHandler(out io.Writer, level slog.Level) slog.Handler {
	return tint.NewHandler(out, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// ParseLevel maps a configuration string to a slog.Level.
// Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
