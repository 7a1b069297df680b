package worker

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strconv"
)

// SpawnConfig describes how to launch worker subprocesses: the coordinator
// re-execs its own binary in worker mode, forwarding the run configuration
// and logging flags on the command line.
type SpawnConfig struct {
	Exe       string // path to this binary
	Run       RunConfig
	LogLevel  string
	LogFormat string
}

// NewHandle returns a Handle that launches cfg.Exe in worker mode on demand.
func NewHandle(logger *slog.Logger, cfg SpawnConfig) *Handle {
	return newHandle(logger, processSpawner(logger, cfg))
}

func processSpawner(logger *slog.Logger, cfg SpawnConfig) spawnFunc {
	return func(ctx context.Context) (*conn, error) {
		// Deliberately not CommandContext: wind-down is cooperative, workers
		// are told to exit rather than killed.
		cmd := exec.Command(cfg.Exe, WorkerArgs(cfg)...)
		cmd.Stderr = os.Stderr

		in, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}
		out, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("starting %s: %w", cfg.Exe, err)
		}
		logger.Debug("Created worker process.", "pid", cmd.Process.Pid)
		return &conn{in: in, out: bufio.NewReader(out), wait: cmd.Wait}, nil
	}
}

// WorkerArgs serializes cfg into a worker-mode argv, leading "worker"
// included. The inverse is cli.ParseWorker.
func WorkerArgs(cfg SpawnConfig) []string {
	args := []string{
		"worker",
		"--target", cfg.Run.Spec.Target,
		"--max-memory-size", strconv.Itoa(cfg.Run.MaxMemoryMiB),
	}
	if cfg.Run.Spec.Flake {
		args = append(args, "--flake")
	}
	if cfg.Run.Spec.DryRun {
		args = append(args, "--dry-run")
	}
	if cfg.Run.GCRootsDir != "" {
		args = append(args, "--gc-roots-dir", cfg.Run.GCRootsDir)
	}
	names := make([]string, 0, len(cfg.Run.Spec.AutoArgs))
	for name := range cfg.Run.Spec.AutoArgs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		args = append(args, "--arg", name+"="+cfg.Run.Spec.AutoArgs[name])
	}
	if cfg.LogLevel != "" {
		args = append(args, "--log-level", cfg.LogLevel)
	}
	if cfg.LogFormat != "" {
		args = append(args, "--log-format", cfg.LogFormat)
	}
	return args
}
