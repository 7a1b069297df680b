package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/vk/evaljobs/internal/ctxlog"
	"github.com/vk/evaljobs/internal/queue"
	"github.com/vk/evaljobs/internal/scheduler"
	"github.com/vk/evaljobs/internal/worker"
)

// Run enumerates the configured job tree and writes the document. On any
// fatal error nothing reaches the primary output and the error is returned.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	if a.config.GCRootsDir == "" {
		a.logger.Warn("No --gc-roots-dir specified; discovered derivations are not protected from garbage collection.")
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating own binary: %w", err)
	}
	spawnCfg := worker.SpawnConfig{
		Exe: exe,
		Run: worker.RunConfig{
			Spec:         a.config.Spec(),
			MaxMemoryMiB: a.config.MaxMemoryMiB,
			GCRootsDir:   a.config.GCRootsDir,
		},
		LogLevel:  a.config.LogLevel,
		LogFormat: a.config.LogFormat,
	}

	coord := scheduler.New(queue.New(), func(id int) worker.Requester {
		return worker.NewHandle(a.logger.With("handler", id), spawnCfg)
	}, a.config.Workers)

	a.logger.Debug("Starting dispatcher loops.", "workers", a.config.Workers)
	results, err := coord.Run(ctx)
	if err != nil {
		return err
	}
	a.logger.Debug("Enumeration finished.", "records", len(results))

	doc, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	if _, err := fmt.Fprintln(a.outW, string(doc)); err != nil {
		return fmt.Errorf("writing document: %w", err)
	}
	return nil
}
