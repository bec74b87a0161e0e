package logger

import (
	"io"
	"log/slog"
	"os"
)

// InitJSONLogger configures and sets the default slog logger to use JSON format on stdout.
// Debug mode lowers the level so that per-product upsert logs are emitted.
func InitJSONLogger(debug bool) {
	slog.SetDefault(NewJSONLogger(os.Stdout, debug))
}

// NewJSONLogger builds a JSON slog logger writing to w.
func NewJSONLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}
