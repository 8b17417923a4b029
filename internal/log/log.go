package log

import (
	"io"
	"log/slog"
	"os"
)

// Setup initialises the process-wide slog.Logger writing text records to stderr.
// debug=true selects Debug, verbose=true selects Info, otherwise Warn.
// The logger also becomes the slog default.
func Setup(debug bool, verbose bool) *slog.Logger {
	return SetupWriter(os.Stderr, debug, verbose)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, debug bool, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	if debug {
		level = slog.LevelDebug
	}

	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	l := slog.New(h)
	slog.SetDefault(l)
	return l
}

// WithRun returns a child of the default logger tagged with a run id.
func WithRun(id string) *slog.Logger {
	return slog.Default().With("run", id)
}
