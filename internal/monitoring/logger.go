// Package monitoring carries the pluggable log hook shared by the
// infrastructure packages (db, capture, live, discovery). Tests call
// SetLogger(nil) to mute output or inject a recorder.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Prefixed returns a log function that prepends a fixed tag. The hook
// installed at call time is used, so a later SetLogger also redirects
// previously created prefixed loggers.
func Prefixed(tag string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		Logf("%s "+format, append([]interface{}{tag}, v...)...)
	}
}
