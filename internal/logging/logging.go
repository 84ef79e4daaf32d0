// Package logging wraps go-log/v2 with the tag-prefixed call style the rest
// of this codebase uses (e.g. "sched: client 3: ..."), rather than a uniform
// structured-logging template at every call site.
package logging

import (
	"fmt"

	logging "github.com/ipfs/go-log/v2"
)

func init() {
	// Keep transport-layer chatter out of the default terminal output; the
	// conferencing core logs its own events at Info and above.
	logging.SetAllLoggers(logging.LevelInfo)
}

// Logger is a tagged logger bound to one subsystem (e.g. "sched", "mixer").
type Logger struct {
	tag string
	l   *logging.ZapEventLogger
}

// New returns a Logger for the named subsystem.
func New(tag string) *Logger {
	return &Logger{tag: tag, l: logging.Logger(tag)}
}

func (lg *Logger) Debugf(format string, args ...any) {
	lg.l.Debug(lg.line(format, args...))
}

func (lg *Logger) Infof(format string, args ...any) {
	lg.l.Info(lg.line(format, args...))
}

func (lg *Logger) Warnf(format string, args ...any) {
	lg.l.Warn(lg.line(format, args...))
}

func (lg *Logger) Errorf(format string, args ...any) {
	lg.l.Error(lg.line(format, args...))
}

func (lg *Logger) line(format string, args ...any) string {
	return fmt.Sprintf("%s: %s", lg.tag, fmt.Sprintf(format, args...))
}

// SetLevel adjusts the verbosity of every registered subsystem logger:
// Debug when debug is true, Info otherwise.
func SetLevel(debug bool) {
	if debug {
		logging.SetAllLoggers(logging.LevelDebug)
		return
	}
	logging.SetAllLoggers(logging.LevelInfo)
}
