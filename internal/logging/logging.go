// Package logging is a small stdlib-backed logger shared across the
// install pipeline. It supports a quiet default and a verbose mode
// toggled by the CLI's --verbose flag.
package logging

import (
	"log"
	"os"
)

var (
	verbose = false
	logger  = log.New(os.Stderr, "", log.LstdFlags)
)

// SetVerbose toggles whether Debug/Debugf lines are emitted.
func SetVerbose(v bool) {
	verbose = v
}

// Verbose reports the current verbosity setting.
func Verbose() bool {
	return verbose
}

// Info logs an info-level line unconditionally.
func Info(v ...any) {
	logger.Println(v...)
}

// Infof logs a formatted info-level line unconditionally.
func Infof(format string, v ...any) {
	logger.Printf(format, v...)
}

// Warn logs a warning-level line unconditionally.
func Warn(v ...any) {
	logger.Println(append([]any{"warn:"}, v...)...)
}

// Warnf logs a formatted warning-level line unconditionally.
func Warnf(format string, v ...any) {
	logger.Printf("warn: "+format, v...)
}

// Error logs an error-level line unconditionally.
func Error(v ...any) {
	logger.Println(append([]any{"error:"}, v...)...)
}

// Errorf logs a formatted error-level line unconditionally.
func Errorf(format string, v ...any) {
	logger.Printf("error: "+format, v...)
}

// Debug logs a line only when verbose mode is enabled.
func Debug(v ...any) {
	if verbose {
		logger.Println(append([]any{"debug:"}, v...)...)
	}
}

// Debugf logs a formatted line only when verbose mode is enabled.
func Debugf(format string, v ...any) {
	if verbose {
		logger.Printf("debug: "+format, v...)
	}
}
