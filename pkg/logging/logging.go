// Package logging centralizes a simple policy: most pipeline errors
// are either typed returns the caller switches on, or a warning that
// gets logged while the loop continues. Nothing in this module imports
// a structured logging library — every component calls
// log.Printf/log.Fatalf directly — so this wraps the same *log.Logger
// rather than introducing one.
package logging

import "log"

// Logger tags log lines by the level callers already decide on: a
// Warnf surfaces something an operator should notice, a Debugf is
// low-priority detail, an Infof is routine lifecycle noise. There is no
// level filter: every call is printed, Warnf and Debugf with a level
// prefix.
type Logger struct {
	std *log.Logger
}

// New wraps std. A nil std falls back to log.Default(), matching the
// bare package-level log calls used elsewhere in this module.
func New(std *log.Logger) *Logger {
	if std == nil {
		std = log.Default()
	}
	return &Logger{std: std}
}

func (l *Logger) Warnf(format string, args ...any) {
	l.std.Printf("warn: "+format, args...)
}

func (l *Logger) Debugf(format string, args ...any) {
	l.std.Printf("debug: "+format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.std.Printf(format, args...)
}

// Std returns the underlying *log.Logger, for components like
// pkg/poller and pkg/supervisor that kept a bare log.Logger field
// from before this package existed.
func (l *Logger) Std() *log.Logger {
	return l.std
}
