// Package logging builds the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Options selects the handler and level of the logger.
type Options struct {
	// Format is "auto", "json" or "text". Auto picks text on a terminal.
	Format string
	Debug  bool
}

// New returns a logger writing to out.
//
// Text output is colorized through tint when out is a terminal and plain
// otherwise, so piped text logs stay free of escape codes.
func New(out io.Writer, opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	tty := isTerminal(out)
	text := opts.Format == "text" || (opts.Format != "json" && tty)
	if !text {
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	}

	return slog.New(tint.NewHandler(out, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    !tty,
	}))
}

// Setup builds a logger for stderr and installs it as the slog default.
func Setup(opts Options) *slog.Logger {
	logger := New(os.Stderr, opts)
	slog.SetDefault(logger)
	return logger
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
