// Package monitoring is the diagnostic logger shared by the library packages.
// Binaries leave it on log.Printf; tests mute it with SetLogger(nil).
package monitoring

import (
	"log"
	"time"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Component returns a logger that tags every line with "[name] ". It
// resolves Logf on each call, so a later SetLogger still applies.
func Component(name string) func(format string, v ...interface{}) {
	tag := "[" + name + "] "
	return func(format string, v ...interface{}) {
		Logf(tag+format, v...)
	}
}

// Timed logs the start of a phase and returns a func that logs its elapsed
// time. Typical use is defer monitoring.Timed("fit")().
func Timed(label string) func() {
	start := time.Now()
	Logf("%s: started", label)
	return func() {
		Logf("%s: done in %s", label, time.Since(start).Round(time.Millisecond))
	}
}
