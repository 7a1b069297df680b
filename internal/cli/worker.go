package cli

import (
	"flag"
	"io"

	"github.com/vk/evaljobs/internal/eval"
	"github.com/vk/evaljobs/internal/worker"
)

// ParseWorker decodes the argv of the hidden worker mode, built by
// worker.WorkerArgs. args excludes the leading "worker" selector.
func ParseWorker(args []string, output io.Writer) (worker.RunConfig, string, string, error) {
	flagSet := flag.NewFlagSet("evaljobs worker", flag.ContinueOnError)
	flagSet.SetOutput(output)

	targetFlag := flagSet.String("target", "", "Expression file, flake reference, or manifest.")
	flakeFlag := flagSet.Bool("flake", false, "Flake mode.")
	dryRunFlag := flagSet.Bool("dry-run", false, "Read-only store mode.")
	maxMemoryFlag := flagSet.Int("max-memory-size", 4096, "Memory ceiling in MiB.")
	gcRootsFlag := flagSet.String("gc-roots-dir", "", "Garbage collector roots directory.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format.")
	logLevelFlag := flagSet.String("log-level", "info", "Logging level.")
	autoArgs := argList{}
	flagSet.Var(autoArgs, "arg", "Auto-argument, as name=value.")

	if err := flagSet.Parse(args); err != nil {
		return worker.RunConfig{}, "", "", &ExitError{Code: 2, Message: err.Error()}
	}
	if *targetFlag == "" {
		return worker.RunConfig{}, "", "", &ExitError{Code: 2, Message: "worker mode requires --target"}
	}

	cfg := worker.RunConfig{
		Spec: eval.Spec{
			Target:   *targetFlag,
			Flake:    *flakeFlag,
			DryRun:   *dryRunFlag,
			AutoArgs: autoArgs,
		},
		MaxMemoryMiB: *maxMemoryFlag,
		GCRootsDir:   *gcRootsFlag,
	}
	return cfg, *logLevelFlag, *logFormatFlag, nil
}
