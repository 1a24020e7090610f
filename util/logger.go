// Package util provides low-level helpers shared by all other packages.
package util

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// Logger writes levelled messages with optional timestamps and level
// prefixes.  It is a thin printf-style front over a logrus logger; the
// gateway and its collaborators receive one explicitly instead of
// consulting any process-wide switch.
type Logger struct {
	level  LogLevel
	base   *logrus.Logger
	entry  *logrus.Entry
	format *lineFormatter
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	level := LogLevel(verbosity)
	if level < LogQuiet {
		level = LogQuiet
	}
	if level > LogDebug {
		level = LogDebug
	}

	format := &lineFormatter{}
	format.timestamps.Store(level >= LogDebug) // auto-enable timestamps in debug mode

	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetFormatter(format)
	base.SetLevel(logrusLevel(level))

	return &Logger{
		level:  level,
		base:   base,
		entry:  logrus.NewEntry(base),
		format: format,
	}
}

// NopLogger returns a Logger that discards everything.
func NopLogger() *Logger {
	l := NewLogger(0)
	l.base.SetOutput(io.Discard)
	l.base.SetLevel(logrus.PanicLevel)
	return l
}

// EnsureLogger returns l when non-nil, otherwise a discarding logger.
func EnsureLogger(l *Logger) *Logger {
	if l != nil {
		return l
	}
	return NopLogger()
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) { l.format.timestamps.Store(on) }

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) { l.base.SetOutput(w) }

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// With returns a logger that appends key=value to every line.  The
// returned logger shares output and level with its parent.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{
		level:  l.level,
		base:   l.base,
		entry:  l.entry.WithField(key, value),
		format: l.format,
	}
}

// Info prints when verbosity ≥ 1.  Prefixed with [INF].
func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Warn prints when verbosity ≥ 1.  Prefixed with [WRN].
func (l *Logger) Warn(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Verbose prints when verbosity ≥ 2.  Prefixed with [VRB].
func (l *Logger) Verbose(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Debug prints when verbosity ≥ 3.  Prefixed with [DBG].
func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Tracef(format, args...)
}

// Error always prints unless the logger is a NopLogger.  Prefixed with [ERR].
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

func logrusLevel(level LogLevel) logrus.Level {
	switch level {
	case LogQuiet:
		return logrus.ErrorLevel
	case LogNormal:
		return logrus.InfoLevel
	case LogVerbose:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

// ── formatting ───────────────────────────────────────────────────────

// lineFormatter renders "[TAG] message key=value" lines, optionally
// prefixed with a millisecond timestamp.
type lineFormatter struct {
	timestamps atomic.Bool
}

func (f *lineFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var buf bytes.Buffer
	if f.timestamps.Load() {
		buf.WriteString(e.Time.Format("15:04:05.000"))
		buf.WriteByte(' ')
	}
	buf.WriteByte('[')
	buf.WriteString(levelTag(e.Level))
	buf.WriteString("] ")
	buf.WriteString(e.Message)

	if len(e.Data) > 0 {
		keys := make([]string, 0, len(e.Data))
		for k := range e.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&buf, " %s=%v", k, e.Data[k])
		}
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func levelTag(level logrus.Level) string {
	switch level {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		return "ERR"
	case logrus.WarnLevel:
		return "WRN"
	case logrus.InfoLevel:
		return "INF"
	case logrus.DebugLevel:
		return "VRB"
	default:
		return "DBG"
	}
}
