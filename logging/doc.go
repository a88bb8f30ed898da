// Package logging builds the slog.Logger used across this module: a
// tint-colored handler on a TTY (via go-isatty/go-colorable), falling
// back to plain JSON otherwise.
package logging
