// Package logger provides a simple leveled logger for both the host and UI
// processes. It supports three levels: off (no output), normal
// (info/warn/error), and verbose (includes debug). Loggers derived with
// Named share level and output with their parent. Safe for concurrent use.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/google/uuid"
)

// Level controls the verbosity of the logger.
type Level int

const (
	// LevelOff disables all log output.
	LevelOff Level = iota
	// LevelNormal enables info, warn, and error output.
	LevelNormal
	// LevelVerbose enables all output including debug.
	LevelVerbose
)

// ParseLevel maps a config string to a Level. Unknown values yield LevelNormal.
func ParseLevel(s string) Level {
	switch s {
	case "off", "quiet", "none":
		return LevelOff
	case "verbose", "debug":
		return LevelVerbose
	default:
		return LevelNormal
	}
}

// sink is shared by a root logger and everything derived from it.
type sink struct {
	mu      sync.RWMutex
	level   Level
	session string
	debug   *log.Logger
	info    *log.Logger
	warn    *log.Logger
	errLog  *log.Logger
}

// Logger is a leveled, optionally component-scoped logger.
type Logger struct {
	s         *sink
	component string
}

// New creates a logger with the given level, writing to the given output.
// If out is nil, os.Stderr is used. Every logger gets a fresh session ID
// so lines from the host and UI processes can be told apart.
func New(level Level, out io.Writer) *Logger {
	if out == nil {
		out = os.Stderr
	}

	flags := log.Ltime

	return &Logger{s: &sink{
		level:   level,
		session: uuid.NewString()[:8],
		debug:   log.New(out, "[DBG] ", flags),
		info:    log.New(out, "[INF] ", flags),
		warn:    log.New(out, "[WRN] ", flags),
		errLog:  log.New(out, "[ERR] ", flags),
	}}
}

// Named returns a logger that prefixes every line with the component name.
func (l *Logger) Named(component string) *Logger {
	if l.component != "" {
		component = l.component + "." + component
	}
	return &Logger{s: l.s, component: component}
}

// SessionID returns the short ID stamped on this process's log lines.
func (l *Logger) SessionID() string { return l.s.session }

// SetLevel changes the log level at runtime.
func (l *Logger) SetLevel(level Level) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	l.s.level = level
}

// GetLevel returns the current log level.
func (l *Logger) GetLevel() Level {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	return l.s.level
}

// Debug logs a message at debug level (only visible in verbose mode).
func (l *Logger) Debug(format string, args ...any) {
	l.output(LevelVerbose, l.s.debug, format, args)
}

// Info logs a message at info level.
func (l *Logger) Info(format string, args ...any) {
	l.output(LevelNormal, l.s.info, format, args)
}

// Warn logs a message at warn level.
func (l *Logger) Warn(format string, args ...any) {
	l.output(LevelNormal, l.s.warn, format, args)
}

// Error logs a message at error level.
func (l *Logger) Error(format string, args ...any) {
	l.output(LevelNormal, l.s.errLog, format, args)
}

func (l *Logger) output(min Level, dst *log.Logger, format string, args []any) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	if l.s.level < min {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if l.component != "" {
		msg = l.component + ": " + msg
	}
	dst.Output(3, l.s.session+" "+msg)
}
