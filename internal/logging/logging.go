// Package logging provides the compiler's leveled text logging, gated by
// the -v/-d CLI flags. It wraps the standard library's log.Logger the same
// way the teacher's cmd/orizon-compiler wires up its own loggers, rather
// than reaching for a structured logging library the core pipeline never
// needed.
package logging

import (
	"io"
	"log"
	"os"
)

// Level orders the verbosity of a message.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelVerbose
	LevelDebug
)

// Logger gates *log.Logger output by a configured minimum Level.
type Logger struct {
	min Level
	std *log.Logger
}

// New creates a Logger writing to w (os.Stderr at the CLI layer) at the
// given minimum level.
func New(w io.Writer, min Level) *Logger {
	return &Logger{min: min, std: log.New(w, "", 0)}
}

// Default returns a Logger at LevelWarn writing to stderr.
func Default() *Logger { return New(os.Stderr, LevelWarn) }

func (l *Logger) log(level Level, prefix, format string, args ...any) {
	if level > l.min {
		return
	}

	l.std.Printf(prefix+format, args...)
}

func (l *Logger) Errorf(format string, args ...any)   { l.log(LevelError, "error: ", format, args...) }
func (l *Logger) Warnf(format string, args ...any)    { l.log(LevelWarn, "warning: ", format, args...) }
func (l *Logger) Infof(format string, args ...any)    { l.log(LevelInfo, "", format, args...) }
func (l *Logger) Verbosef(format string, args ...any) { l.log(LevelVerbose, "", format, args...) }
func (l *Logger) Debugf(format string, args ...any)   { l.log(LevelDebug, "debug: ", format, args...) }

// SetLevel adjusts the minimum level after construction, used when
// --log-level parses a category:level pair (spec.md §6.1).
func (l *Logger) SetLevel(level Level) { l.min = level }
