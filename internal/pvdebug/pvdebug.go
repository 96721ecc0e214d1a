// Package pvdebug provides the optional diagnostic log described in
// SPEC_FULL.md section 1: a plain stdlib log.Logger, enabled by setting
// the PV_DEBUG_LOG environment variable to a writable file path, used to
// trace the transfer loop's state-machine transitions without disturbing
// the status line on stderr.
package pvdebug

import (
	"io"
	"log"
	"os"
)

var logger *log.Logger

// Init opens PV_DEBUG_LOG (if set) and installs it as the package logger.
// Called once from cmd/pv's main before the transfer loop starts; Log is a
// no-op until Init has been called (or is never called, e.g. in tests).
func Init() (closer func() error) {
	path := os.Getenv("PV_DEBUG_LOG")
	if path == "" {
		logger = log.New(io.Discard, "", 0)
		return func() error { return nil }
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		logger = log.New(io.Discard, "", 0)
		return func() error { return nil }
	}
	logger = log.New(f, "pv: ", log.LstdFlags|log.Lmicroseconds)
	return f.Close
}

// Log writes one diagnostic line, formatted like log.Printf.
func Log(format string, args ...any) {
	if logger == nil {
		return
	}
	logger.Printf(format, args...)
}
