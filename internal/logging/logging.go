// Package logging provides the per-subsystem loggers used across the
// decoder. One charmbracelet/log instance is created at startup and
// named sub-loggers are handed out per component, matching the source
// project's per-file log-prefix convention but without a global mutable
// prefix.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

var root = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      "15:04:05.000",
})

// SetOutput redirects all subsequent log output, primarily for tests.
func SetOutput(w io.Writer) {
	root.SetOutput(w)
}

// SetLevel sets the minimum level logged by every component logger.
func SetLevel(level log.Level) {
	root.SetLevel(level)
}

// For returns a logger tagged with component=name.
func For(name string) *log.Logger {
	return root.With("component", name)
}
