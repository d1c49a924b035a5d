package config

import (
	"fmt"
	"os"
)

// Process exit codes for non-interactive drivers.
const (
	ExitOK                 = 0
	ExitFailure            = 1
	ExitConfig             = 64
	ExitStorageUnavailable = 70
	ExitSchemaMismatch     = 74
)

// Exitf writes a formatted error message to stderr and exits with code 1.
// It provides a consistent fatal-exit pattern for CLI entry points.
func Exitf(format string, args ...any) {
	ExitCodef(ExitFailure, format, args...)
}

// ExitCodef writes a formatted error message to stderr and exits with code.
func ExitCodef(code int, format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(code)
}
