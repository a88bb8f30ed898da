package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// New returns a logger writing to w. If w is os.Stderr/os.Stdout attached to
// a terminal, output is colorized with tint; otherwise it's plain JSON, so
// hosts capturing logs into a file or the mobile platform's log pipe get
// structured, greppable lines.
func New(w io.Writer, level slog.Leveler) *slog.Logger {
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return slog.New(tint.NewHandler(colorable.NewColorable(f), &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Default returns the module's default logger: info level, writing to
// os.Stderr, colorized when attached to a terminal.
func Default() *slog.Logger {
	return New(os.Stderr, slog.LevelInfo)
}

// Discard returns a logger that drops everything, for tests that want to
// exercise logging call sites without producing output.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
