// Package app wires the configured pieces of an enumeration run together:
// an isolated logger, the shared queue, worker handles, and the coordinator,
// with the final document going to the primary output stream.
package app

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/vk/evaljobs/internal/ctxlog"
	"github.com/vk/evaljobs/internal/worker"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer // the document; nothing else may be written here
	logger *slog.Logger
	config *Config
}

// New constructs an App with its own isolated logger writing diagnostics to
// logW. The primary output stream outW carries only the final document.
func New(outW, logW io.Writer, cfg *Config) *App {
	return &App{
		outW:   outW,
		logger: newLogger(cfg.LogLevel, cfg.LogFormat, logW),
		config: cfg,
	}
}

// ServeWorker runs the worker process body on the standard pipes, with its
// own stderr logger. Invoked by the hidden "worker" mode of the binary.
func ServeWorker(cfg worker.RunConfig, logLevel, logFormat string) error {
	logger := newLogger(logLevel, logFormat, os.Stderr)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	return worker.Serve(ctx, cfg, os.Stdin, os.Stdout)
}
