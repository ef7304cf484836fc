package cli

import (
	"io"
	"log/slog"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger builds the process logger: a charmbracelet handler behind
// slog. verbose forces debug level.
func newLogger(w io.Writer, level slog.Level, format string, verbose bool) *slog.Logger {
	if verbose {
		level = slog.LevelDebug
	}
	handler := log.NewWithOptions(w, log.Options{
		Level:           log.Level(level),
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       formatterFor(format),
		Prefix:          "contactsd",
	})
	return slog.New(handler)
}

func formatterFor(format string) log.Formatter {
	switch format {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}
