package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vk/evaljobs/internal/app"
	"github.com/vk/evaljobs/internal/cli"
)

// main is the entrypoint for the evaljobs binary. The same binary serves as
// its own worker: the coordinator re-execs it with a leading "worker"
// argument and speaks the pipe protocol over its stdin/stdout.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// Prevent undeclared dependencies in the evaluation via $NIX_PATH.
	os.Unsetenv("NIX_PATH")

	if len(os.Args) > 1 && os.Args[1] == "worker" {
		if err := runWorker(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the coordinator logic for easier testing and error handling.
func run(outW io.Writer, args []string) error {
	appConfig, shouldExit, err := cli.Parse(args, os.Stderr)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	application := app.New(outW, os.Stderr, appConfig)
	return application.Run(context.Background())
}

// runWorker hosts the worker process body.
func runWorker(args []string) error {
	cfg, logLevel, logFormat, err := cli.ParseWorker(args, os.Stderr)
	if err != nil {
		return err
	}
	return app.ServeWorker(cfg, logLevel, logFormat)
}
