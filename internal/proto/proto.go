// Package proto implements the line-oriented pipe protocol between the
// coordinator and its worker processes.
//
// Worker to coordinator, on the "from" pipe:
//   - "next"       the worker is idle and ready for a command
//   - "restart"    the worker is about to exit voluntarily; spawn a fresh one
//   - a JSON object {"error": "..."}   fatal worker initialization failure
//   - a JSON reply line   the outcome of the last "do" command
//
// Coordinator to worker, on the "to" pipe:
//   - "do <attrPath>"   evaluate one attribute path
//   - "exit"            terminate cleanly
//
// All lines are newline-terminated. Every decode happens here, at one
// boundary per line class, so no other package compares protocol strings.
package proto

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vk/evaljobs/internal/eval"
)

const (
	lineNext    = "next"
	lineRestart = "restart"
	cmdExit     = "exit"
	cmdDoPrefix = "do "
)

// ControlKind discriminates the control lines a worker sends when idle.
type ControlKind int

const (
	// ControlNext means the worker is ready for a command.
	ControlNext ControlKind = iota

	// ControlRestart means the worker is exiting voluntarily and its handle
	// must spawn a replacement before the next request.
	ControlRestart

	// ControlFatal carries a worker-side initialization failure. It aborts
	// the whole run.
	ControlFatal
)

// Control is a decoded worker control line.
type Control struct {
	Kind ControlKind
	Err  string // ControlFatal only
}

// fatalPayload is the wire shape of a ControlFatal line.
type fatalPayload struct {
	Error string `json:"error"`
}

// ParseControl decodes one control line. Anything that is neither "next" nor
// "restart" must be a JSON fatal payload; a line that is none of the three is
// a protocol violation.
func ParseControl(line string) (Control, error) {
	switch line {
	case lineNext:
		return Control{Kind: ControlNext}, nil
	case lineRestart:
		return Control{Kind: ControlRestart}, nil
	}
	var p fatalPayload
	if err := json.Unmarshal([]byte(line), &p); err != nil || p.Error == "" {
		return Control{}, fmt.Errorf("malformed worker control line %q", line)
	}
	return Control{Kind: ControlFatal, Err: p.Error}, nil
}

// EncodeFatal encodes a worker initialization failure as a control line.
func EncodeFatal(msg string) string {
	b, _ := json.Marshal(fatalPayload{Error: msg})
	return string(b)
}

// NextLine is the idle announcement a worker writes before reading a command.
func NextLine() string { return lineNext }

// RestartLine is the voluntary-exit announcement.
func RestartLine() string { return lineRestart }

// DoCommand builds the command instructing a worker to evaluate attrPath.
func DoCommand(attrPath string) string { return cmdDoPrefix + attrPath }

// ExitCommand builds the command instructing a worker to terminate.
func ExitCommand() string { return cmdExit }

// ParseCommand decodes one coordinator command on the worker side. It
// returns the attribute path to evaluate, or exit=true for a clean shutdown.
func ParseCommand(line string) (attrPath string, exit bool, err error) {
	if line == cmdExit {
		return "", true, nil
	}
	if !strings.HasPrefix(line, cmdDoPrefix) {
		return "", false, fmt.Errorf("malformed worker command %q", line)
	}
	return strings.TrimPrefix(line, cmdDoPrefix), false, nil
}

// replyWire is the wire shape of a per-path reply. Pointer fields distinguish
// an absent key from a present-but-empty one: {"attrs": []} is a childless
// attribute set, not an empty node.
type replyWire struct {
	Job   *eval.Job `json:"job,omitempty"`
	Attrs *[]string `json:"attrs,omitempty"`
	Error string    `json:"error,omitempty"`
}

// EncodeReply encodes the outcome of one evaluation as a reply line.
func EncodeReply(res eval.Result) (string, error) {
	var w replyWire
	switch res.Kind {
	case eval.KindEmpty:
		// An empty object: no job, no attrs, no error.
	case eval.KindJob:
		w.Job = res.Job
	case eval.KindChildren:
		attrs := res.Children
		if attrs == nil {
			attrs = []string{}
		}
		w.Attrs = &attrs
	case eval.KindFailure:
		w.Error = res.Message
	default:
		return "", fmt.Errorf("unknown result kind %d", res.Kind)
	}
	b, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("encoding reply: %w", err)
	}
	return string(b), nil
}

// DecodeReply decodes one reply line into a Result. Key presence selects the
// variant: "job", then "attrs", then "error"; none of the three is an empty
// node. A Result holds exactly one variant, so a reply carrying several keys
// keeps only the highest-precedence one; EncodeReply never emits more than
// one key.
func DecodeReply(line string) (eval.Result, error) {
	var w replyWire
	if err := json.Unmarshal([]byte(line), &w); err != nil {
		return eval.Result{}, fmt.Errorf("malformed worker reply %q: %w", line, err)
	}
	switch {
	case w.Job != nil:
		return eval.JobResult(w.Job), nil
	case w.Attrs != nil:
		return eval.ChildrenResult(*w.Attrs), nil
	case w.Error != "":
		return eval.Failure(w.Error), nil
	default:
		return eval.Empty(), nil
	}
}
