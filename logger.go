package hma

import "log"

// Logger receives diagnostic callbacks from the engine. Severities match
// the host-facing tags of the original design: Notice on rollback of a
// crashed client, Warning on each whole second of accumulated writer
// time, BusyDeadlock on a genuine conflict, CantOpen on HMA file errors.
type Logger interface {
	Notice(format string, args ...any)
	Warning(format string, args ...any)
	BusyDeadlock(format string, args ...any)
	CantOpen(format string, args ...any)
}

// stdLogger wraps the standard library logger, in the style of
// sqlite3-restore's log.Printf diagnostics.
type stdLogger struct{}

// DefaultLogger returns a Logger backed by the standard "log" package.
func DefaultLogger() Logger { return stdLogger{} }

func (stdLogger) Notice(format string, args ...any) {
	log.Printf("NOTICE: "+format, args...)
}

func (stdLogger) Warning(format string, args ...any) {
	log.Printf("WARNING: "+format, args...)
}

func (stdLogger) BusyDeadlock(format string, args ...any) {
	log.Printf("BUSY_DEADLOCK: "+format, args...)
}

func (stdLogger) CantOpen(format string, args ...any) {
	log.Printf("CANTOPEN: "+format, args...)
}

// nullLogger discards everything; used by tests that don't want log spam.
type nullLogger struct{}

// NullLogger returns a Logger that discards all diagnostics.
func NullLogger() Logger { return nullLogger{} }

func (nullLogger) Notice(string, ...any)       {}
func (nullLogger) Warning(string, ...any)      {}
func (nullLogger) BusyDeadlock(string, ...any) {}
func (nullLogger) CantOpen(string, ...any)     {}
