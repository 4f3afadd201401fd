package config

import (
	"fmt"
	"os"
)

// Exit statuses for command-line entry points.
const (
	ExitFailure = 1
	// ExitUsage matches the status the flag package uses for bad arguments.
	ExitUsage = 2
)

// Exitf writes a formatted message to stderr and exits with code.
func Exitf(code int, format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(code)
}
