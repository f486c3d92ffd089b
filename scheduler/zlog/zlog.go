// Package zlog adapts github.com/rs/zerolog to the scheduler.Logger
// interface, matching the logging convention used throughout the rest of
// this module's ecosystem.
package zlog

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger to satisfy scheduler.Logger.
type Logger struct {
	log zerolog.Logger
}

// New returns a Logger that writes through log, with whatever output and
// format log is configured for.
func New(log zerolog.Logger) *Logger {
	return &Logger{log: log}
}

// NewConsole returns a Logger writing human-readable lines to stderr,
// matching the local/dev convention of zerolog.ConsoleWriter seen across
// the ecosystem.
func NewConsole() *Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	return &Logger{log: zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()}
}

func (l *Logger) Error(format string, args ...any) { l.log.Error().Msgf(format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.log.Warn().Msgf(format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.log.Info().Msgf(format, args...) }
