// Package cli is the flag surface of the evaljobs binary: the public front
// door and the hidden worker mode the coordinator re-execs.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/vk/evaljobs/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// argList collects repeated --arg name=value flags.
type argList map[string]string

func (a argList) String() string {
	parts := make([]string, 0, len(a))
	for name, value := range a {
		parts = append(parts, name+"="+value)
	}
	return strings.Join(parts, ",")
}

func (a argList) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected name=value, got %q", s)
	}
	a[name] = value
	return nil
}

// Parse processes command-line arguments. It returns a populated Config, a
// boolean indicating the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("evaljobs", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
evaljobs - parallel enumeration of a declarative build/check job tree.

Usage:
  evaljobs [options] EXPR

Arguments:
  EXPR
    A Nix expression file, a flake reference (with --flake), or a
    declarative .hcl job manifest.

Options:
`)
		flagSet.PrintDefaults()
	}

	flakeFlag := flagSet.Bool("flake", false, "Evaluate a flake's hydraJobs (or checks) output.")
	dryRunFlag := flagSet.Bool("dry-run", false, "Don't create store derivations: evaluate against a read-only store.")
	workersFlag := flagSet.Int("workers", 1, "Number of evaluation worker processes.")
	maxMemoryFlag := flagSet.Int("max-memory-size", 4096, "Per-worker memory ceiling in MiB; a worker above it is recycled.")
	gcRootsFlag := flagSet.String("gc-roots-dir", "", "Garbage collector roots directory.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	autoArgs := argList{}
	flagSet.Var(autoArgs, "arg", "Argument passed to the top-level expression, as name=value. Repeatable.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	if flagSet.NArg() == 0 {
		flagSet.Usage()
		return nil, false, &ExitError{Code: 2, Message: "no expression specified"}
	}
	if flagSet.NArg() > 1 {
		return nil, false, &ExitError{Code: 2, Message: "exactly one expression is expected"}
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	config, err := app.NewConfig(app.Config{
		Target:       flagSet.Arg(0),
		Flake:        *flakeFlag,
		DryRun:       *dryRunFlag,
		AutoArgs:     autoArgs,
		Workers:      *workersFlag,
		MaxMemoryMiB: *maxMemoryFlag,
		GCRootsDir:   *gcRootsFlag,
		LogFormat:    logFormat,
		LogLevel:     logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	return config, false, nil
}
