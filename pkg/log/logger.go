// Package log provides the leveled logger used by the writer and
// extractor commands.
package log

import (
	"log"
	"os"
	"sync/atomic"
)

// Logger describes a logger usable by the mtd-utils commands.
type Logger interface {
	// Infof logs a progress message, gated by the current verbosity.
	Infof(format string, args ...interface{})

	// Warnf logs a warning message, gated by the current verbosity.
	Warnf(format string, args ...interface{})

	// Errorf logs an error message. Always printed.
	Errorf(format string, args ...interface{})

	// Fatalf logs an error message and exits the process with a
	// non-zero status.
	Fatalf(format string, args ...interface{})
}

// DefaultLogger is the logger used by default everywhere in this module.
var DefaultLogger Logger

// level is shared process-wide: -1 quiet, 0 normal, >=1 verbose tiers.
var level int32

func init() {
	DefaultLogger = logWrapper{Logger: log.New(os.Stderr, "", log.LstdFlags)}
}

// SetVerbosity sets the global verbosity level. Negative values
// silence Warnf and Infof; zero is the default; positive values
// enable progressively more Infof output.
func SetVerbosity(v int) {
	atomic.StoreInt32(&level, int32(v))
}

// Verbosity returns the current global verbosity level.
func Verbosity() int {
	return int(atomic.LoadInt32(&level))
}

type logWrapper struct {
	Logger *log.Logger
}

func (logger logWrapper) Infof(format string, args ...interface{}) {
	if Verbosity() < 1 {
		return
	}
	logger.Logger.Printf("[mtd-utils][INFO] "+format, args...)
}

func (logger logWrapper) Warnf(format string, args ...interface{}) {
	if Verbosity() < 0 {
		return
	}
	logger.Logger.Printf("[mtd-utils][WARN] "+format, args...)
}

func (logger logWrapper) Errorf(format string, args ...interface{}) {
	logger.Logger.Printf("[mtd-utils][ERROR] "+format, args...)
}

func (logger logWrapper) Fatalf(format string, args ...interface{}) {
	logger.Logger.Fatalf("[mtd-utils][FATAL] "+format, args...)
}

// Infof logs a progress message through DefaultLogger.
func Infof(format string, args ...interface{}) {
	DefaultLogger.Infof(format, args...)
}

// Warnf logs a warning message through DefaultLogger.
func Warnf(format string, args ...interface{}) {
	DefaultLogger.Warnf(format, args...)
}

// Errorf logs an error message through DefaultLogger.
func Errorf(format string, args ...interface{}) {
	DefaultLogger.Errorf(format, args...)
}

// Fatalf logs an error message through DefaultLogger and exits.
func Fatalf(format string, args ...interface{}) {
	DefaultLogger.Fatalf(format, args...)
}
