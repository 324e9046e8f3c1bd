package ud

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// defaultLogger returns a colorized console *slog.Logger, used when a
// caller constructs an Iface without supplying their own. Mirrors
// doublezerod's console logging setup, which also reaches for
// lmittmann/tint instead of slog's plain text handler.
func defaultLogger() *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: slog.LevelInfo,
	}))
}
