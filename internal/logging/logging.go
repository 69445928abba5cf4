// Package logging builds the leveled structured loggers used by the client and
// the API server.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

type Options struct {
	Level           string
	Format          string
	Prefix          string
	ReportTimestamp bool
}

func New(w io.Writer, opts Options) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	return log.NewWithOptions(w, log.Options{
		Level:           ParseLevel(opts.Level),
		Formatter:       ParseFormatter(opts.Format),
		Prefix:          opts.Prefix,
		ReportTimestamp: opts.ReportTimestamp,
		TimeFormat:      time.RFC3339,
	})
}

// Discard returns a logger that drops everything; stores default to it.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

func ParseLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

func ParseFormatter(format string) log.Formatter {
	switch format {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}
