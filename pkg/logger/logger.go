package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// JSONFormat selects structured JSON output instead of the console writer.
const JSONFormat = "json"

// Logger wraps zerolog with level/format construction.
type Logger struct {
	zerolog.Logger
}

// New builds a logger writing to stdout.
func New(level, format string) Logger {
	return NewWithWriter(level, format, os.Stdout)
}

// NewWithWriter builds a logger writing to w.
func NewWithWriter(level, format string, w io.Writer) Logger {
	var logLevel zerolog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "warn", "warning":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
	if format == JSONFormat {
		logger = zerolog.New(w)
	}
	logger = logger.Level(logLevel).With().Timestamp().Logger()

	return Logger{Logger: logger}
}

// NewTestLogger returns a logger that discards everything.
func NewTestLogger() Logger {
	return Logger{Logger: zerolog.Nop()}
}
