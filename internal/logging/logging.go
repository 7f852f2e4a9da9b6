// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Options control the process logger.
type Options struct {
	Level slog.Level
	Quiet bool // discard everything
	JSON  bool // machine-readable output instead of tinted text
}

// New returns a logger writing to w. Color is enabled only when w is a terminal.
func New(w io.Writer, opts Options) *slog.Logger {
	if opts.Quiet {
		return slog.New(slog.DiscardHandler)
	}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      opts.Level,
		TimeFormat: time.TimeOnly,
		NoColor:    !isTerminal(w),
	}))
}

// Setup builds a stderr logger and installs it as the slog default.
func Setup(opts Options) *slog.Logger {
	l := New(os.Stderr, opts)
	slog.SetDefault(l)
	return l
}

// ParseLevel maps debug, info, warn and error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
