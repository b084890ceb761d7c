// Package logging wraps the standard log.Logger with LOG_LEVEL
// filtering, per spec.md §4.10.2. Every subsystem still logs through
// its own package-level *log.Logger with a "[component]" prefix, the
// way control_plane does; this package only decides whether a given
// call reaches the underlying logger at all.
package logging

import (
	"io"
	"log"
	"strings"
)

// Level is a LOG_LEVEL severity, ordered low to high.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a LOG_LEVEL string to a Level, defaulting to
// LevelInfo for an empty or unrecognized value.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger filters Printf/Print/Println calls below its configured
// Level before forwarding to an embedded *log.Logger, so existing
// callers that already hold a *log.Logger (bus.New, state.New, ...)
// can take a *logging.Logger wherever they currently take a
// *log.Logger's Printf-compatible subset.
type Logger struct {
	level Level
	out   *log.Logger
}

// New wraps out at the given level. A nil out falls back to
// log.Default(), matching every other package's "nil logger ->
// log.Default()" convention.
func New(level Level, out *log.Logger) *Logger {
	if out == nil {
		out = log.Default()
	}
	return &Logger{level: level, out: out}
}

// NewDiscard returns a Logger that drops everything, useful for tests
// that don't want subsystem log noise.
func NewDiscard() *Logger {
	return New(LevelError+1, log.New(io.Discard, "", 0))
}

// Printf logs at LevelInfo, filtered against the configured level.
func (l *Logger) Printf(format string, v ...interface{}) {
	l.logAt(LevelInfo, format, v...)
}

// Debugf logs at LevelDebug.
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.logAt(LevelDebug, format, v...)
}

// Warnf logs at LevelWarn.
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.logAt(LevelWarn, format, v...)
}

// Errorf logs at LevelError.
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.logAt(LevelError, format, v...)
}

func (l *Logger) logAt(level Level, format string, v ...interface{}) {
	if level < l.level {
		return
	}
	l.out.Printf(format, v...)
}

// Std returns the embedded *log.Logger unfiltered, for subsystems that
// take a bare *log.Logger and haven't been generalized to this
// package's filtering wrapper.
func (l *Logger) Std() *log.Logger {
	return l.out
}
