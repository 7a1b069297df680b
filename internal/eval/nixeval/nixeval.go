// Package nixeval implements the evaluation collaborator for Nix
// expressions and flakes by shelling out to nix-instantiate with an
// embedded inspection expression.
//
// The inspection expression classifies the value at one attribute path as a
// derivation, an attribute set, or null, and prints the classification as
// JSON on stdout. Evaluation errors surface on stderr with a non-zero exit
// and become per-path failures; failing to launch the binary at all is an
// infrastructure error that aborts the run.
package nixeval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vk/evaljobs/internal/eval"
)

// runFunc executes one external command. Swapped out in tests.
type runFunc func(ctx context.Context, name string, args []string) (stdout, stderr []byte, err error)

// Evaluator evaluates attribute paths by invoking nix-instantiate once per
// path. It holds no per-path state and is safe for concurrent use, though in
// practice each worker process owns exactly one.
type Evaluator struct {
	spec     eval.Spec
	rootExpr string
	autoArgs string
	include  string
	run      runFunc
}

var _ eval.Evaluator = (*Evaluator)(nil)

// New builds an Evaluator for the given spec. The root expression is fixed
// here once; flake mode selects outputs.hydraJobs, falling back to
// outputs.checks.
func New(spec eval.Spec) (*Evaluator, error) {
	rootExpr, include, err := rootExpression(spec)
	if err != nil {
		return nil, err
	}
	return &Evaluator{
		spec:     spec,
		rootExpr: rootExpr,
		autoArgs: autoArgsExpression(spec.AutoArgs),
		include:  include,
		run:      runCommand,
	}, nil
}

// rootExpression also reports the directory that must join the Nix search
// path: restricted evaluation only reads files reachable through it, so the
// expression file's own directory is added for plain-expression mode.
func rootExpression(spec eval.Spec) (expr, include string, err error) {
	if spec.Target == "" {
		return "", "", fmt.Errorf("no expression specified")
	}
	if spec.Flake {
		return fmt.Sprintf(
			`let flake = builtins.getFlake %q; outputs = flake.outputs; in `+
				`outputs.hydraJobs or outputs.checks or `+
				`(throw "flake '%s' does not provide any Hydra jobs or checks")`,
			spec.Target, spec.Target), "", nil
	}
	abs, err := filepath.Abs(spec.Target)
	if err != nil {
		return "", "", fmt.Errorf("resolving expression path: %w", err)
	}
	return fmt.Sprintf(`import (/. + %q)`, abs), filepath.Dir(abs), nil
}

// autoArgsExpression renders the auto-arguments as a Nix attribute set
// literal, in sorted order for stable command lines.
func autoArgsExpression(args map[string]string) string {
	if len(args) == 0 {
		return "{ }"
	}
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("{ ")
	for _, name := range names {
		fmt.Fprintf(&b, "%s = %q; ", name, args[name])
	}
	b.WriteString("}")
	return b.String()
}

// arguments builds the nix-instantiate invocation for one attribute path.
func (e *Evaluator) arguments(attrPath string) []string {
	args := []string{
		"--eval", "--strict", "--json",
		"--option", "restrict-eval", "true",
		"--expr", inspectExpr,
		"--argstr", "attrPath", attrPath,
		"--arg", "autoArgs", e.autoArgs,
		"--arg", "root", e.rootExpr,
	}
	if e.include != "" {
		args = append(args, "-I", e.include)
	}
	if e.spec.Flake {
		args = append(args,
			"--option", "pure-eval", "true",
			"--extra-experimental-features", "flakes")
	}
	if e.spec.DryRun {
		args = append(args, "--readonly-mode")
	}
	return args
}

// inspectOutput is the JSON the inspection expression prints.
type inspectOutput struct {
	Type    string   `json:"type"`
	DrvPath string   `json:"drvPath"`
	Name    string   `json:"name"`
	System  string   `json:"system"`
	Names   []string `json:"names"`
}

// Evaluate classifies the value at attrPath.
func (e *Evaluator) Evaluate(ctx context.Context, attrPath string) (eval.Result, error) {
	stdout, stderr, err := e.run(ctx, "nix-instantiate", e.arguments(attrPath))
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// The evaluator ran and rejected this path: a per-path failure,
			// not a reason to abort the run.
			return eval.Failure(evalErrorMessage(stderr)), nil
		}
		return eval.Result{}, fmt.Errorf("running nix-instantiate: %w", err)
	}
	return decodeInspectOutput(stdout)
}

func decodeInspectOutput(stdout []byte) (eval.Result, error) {
	var out inspectOutput
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &out); err != nil {
		return eval.Result{}, fmt.Errorf("unexpected nix-instantiate output %q: %w", stdout, err)
	}
	switch out.Type {
	case "job":
		return eval.JobResult(&eval.Job{
			DrvPath: out.DrvPath,
			Name:    out.Name,
			System:  out.System,
		}), nil
	case "attrs":
		names := out.Names
		if names == nil {
			names = []string{}
		}
		return eval.ChildrenResult(names), nil
	case "null":
		return eval.Empty(), nil
	default:
		return eval.Result{}, fmt.Errorf("unexpected nix-instantiate output type %q", out.Type)
	}
}

// evalErrorMessage distills a failed invocation's stderr into the message
// recorded for the path.
func evalErrorMessage(stderr []byte) string {
	msg := strings.TrimSpace(stripANSI(string(stderr)))
	if msg == "" {
		msg = "evaluation failed"
	}
	return msg
}

func runCommand(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
