// Package logging builds the slog logger installed by the qsync CLI.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Options configures New.
type Options struct {
	// Verbose enables debug records (fetch start and finish, invalidations).
	Verbose bool
	// Writer receives log output; defaults to os.Stderr when nil.
	Writer io.Writer
	// Format is "json" for JSON records; anything else selects text.
	Format string
}

// New constructs a logger from opts.
func New(opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	ho := &slog.HandlerOptions{Level: level}
	if opts.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, ho))
	}
	return slog.New(slog.NewTextHandler(w, ho))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
