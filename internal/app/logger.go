package app

import (
	"io"
	"log/slog"
)

// newLogger builds the isolated slog.Logger an App (or a worker process)
// owns. The global default logger is never touched; coordinator and worker
// diagnostics stay on their own stderr handlers. Unknown level or format
// values fall back to info/text, since flag validation happens upstream.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if formatStr == "json" {
		return slog.New(slog.NewJSONHandler(outW, opts))
	}
	return slog.New(slog.NewTextHandler(outW, opts))
}
