// Package logging constructs the process-wide slog logger and provides the
// attribute helpers used across the matching pipeline.
package logging
