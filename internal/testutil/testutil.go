// Package testutil provides shared helpers for exercising the scheduler and
// worker machinery without real worker processes or a Nix installation.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/vk/evaljobs/internal/eval"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// ScriptedEvaluator serves canned results per attribute path and records the
// paths it was asked for. Safe for concurrent use.
type ScriptedEvaluator struct {
	Results map[string]eval.Result

	mu    sync.Mutex
	calls []string
}

var _ eval.Evaluator = (*ScriptedEvaluator)(nil)

// Evaluate returns the scripted result for attrPath. An unscripted path is
// an infrastructure error, loudly flagging a test mistake.
func (s *ScriptedEvaluator) Evaluate(_ context.Context, attrPath string) (eval.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, attrPath)
	s.mu.Unlock()

	res, ok := s.Results[attrPath]
	if !ok {
		return eval.Result{}, fmt.Errorf("unscripted attribute path %q", attrPath)
	}
	return res, nil
}

// Calls returns every path evaluated so far, in request order.
func (s *ScriptedEvaluator) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// ScriptedRequester implements the coordinator-side requester contract over
// scripted results, bypassing worker processes entirely. Errs entries take
// precedence over Results and surface as fatal request errors.
type ScriptedRequester struct {
	Results map[string]eval.Result
	Errs    map[string]error

	mu     sync.Mutex
	calls  []string
	closed bool
}

// Request serves the scripted outcome for attrPath.
func (s *ScriptedRequester) Request(_ context.Context, attrPath string) (eval.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, attrPath)
	s.mu.Unlock()

	if err, ok := s.Errs[attrPath]; ok {
		return eval.Result{}, err
	}
	res, ok := s.Results[attrPath]
	if !ok {
		return eval.Result{}, fmt.Errorf("unscripted attribute path %q", attrPath)
	}
	return res, nil
}

// Close records that the requester was released.
func (s *ScriptedRequester) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Calls returns every requested path so far, in request order.
func (s *ScriptedRequester) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Closed reports whether Close was called.
func (s *ScriptedRequester) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
