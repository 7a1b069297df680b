// Package eval defines the boundary to the evaluation collaborator: the
// component that turns an attribute path into a concrete job, a list of
// child attribute names, nothing, or a per-path failure.
//
// The scheduler never interprets the configuration language itself. It only
// consumes Results, so any implementation of Evaluator can drive a run: the
// production nix-instantiate wrapper (nixeval), the declarative HCL manifest
// evaluator (manifest), or a scripted fake in tests.
package eval

import "context"

// Kind discriminates the variants of a Result. Exactly one variant applies
// per evaluation.
type Kind int

const (
	// KindEmpty marks a null node. It produces no record and is silently
	// omitted from the final document.
	KindEmpty Kind = iota

	// KindJob marks a terminal node that resolved to a concrete job.
	KindJob

	// KindChildren marks an attribute set node whose children must be
	// enumerated in turn.
	KindChildren

	// KindFailure marks a per-path evaluation failure. It is recorded in the
	// document and does not abort the run.
	KindFailure
)

// Job is the terminal descriptor of a path that denotes a concrete job. The
// store derivation path is the defining field; the rest is evaluator-defined
// metadata carried through to the output document untouched.
type Job struct {
	DrvPath string            `json:"drvPath"`
	Name    string            `json:"name,omitempty"`
	System  string            `json:"system,omitempty"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// Result is the outcome of evaluating one attribute path.
type Result struct {
	Kind     Kind
	Job      *Job     // KindJob
	Children []string // KindChildren
	Message  string   // KindFailure
}

// Empty returns the Result for a null node.
func Empty() Result { return Result{Kind: KindEmpty} }

// JobResult returns the Result for a terminal job.
func JobResult(j *Job) Result { return Result{Kind: KindJob, Job: j} }

// ChildrenResult returns the Result enumerating child attribute names.
func ChildrenResult(names []string) Result {
	return Result{Kind: KindChildren, Children: names}
}

// Failure returns the Result recording a per-path evaluation error.
func Failure(msg string) Result { return Result{Kind: KindFailure, Message: msg} }

// Evaluator evaluates attribute paths against a fixed configuration source.
//
// A non-nil error is an infrastructure failure (the evaluator itself broke)
// and aborts the whole run. Evaluation failures of the configuration travel
// inside the Result as KindFailure and only mark that one path.
//
// Re-evaluating the same path in a fresh Evaluator built from the same Spec
// must yield an equivalent Result; the worker restart model relies on it.
type Evaluator interface {
	Evaluate(ctx context.Context, attrPath string) (Result, error)
}

// Spec is the serializable evaluator configuration. Every worker process is
// initialized from the same Spec, so a restarted worker sees the exact
// configuration its predecessor saw.
type Spec struct {
	// Target is the expression file, flake reference, or .hcl manifest path
	// to enumerate.
	Target string `json:"target"`

	// Flake selects flake mode: Target is a flake reference and the job tree
	// root is outputs.hydraJobs, falling back to outputs.checks.
	Flake bool `json:"flake,omitempty"`

	// DryRun evaluates against a read-only store.
	DryRun bool `json:"dryRun,omitempty"`

	// AutoArgs are passed to auto-called functions in the configuration.
	AutoArgs map[string]string `json:"autoArgs,omitempty"`
}
