package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/evaljobs/internal/eval"
	"github.com/vk/evaljobs/internal/queue"
	"github.com/vk/evaljobs/internal/testutil"
	"github.com/vk/evaljobs/internal/worker"
)

func runScripted(t *testing.T, workers int, req *testutil.ScriptedRequester) (map[string]queue.Record, error) {
	t.Helper()
	coord := New(queue.New(), func(int) worker.Requester { return req }, workers)
	return coord.Run(context.Background())
}

func TestTreeEnumeration(t *testing.T) {
	// root -> {a, b}; a is a job; b -> {c}; b.c is a null node. Only "a"
	// may appear in the document.
	req := &testutil.ScriptedRequester{Results: map[string]eval.Result{
		"":    eval.ChildrenResult([]string{"a", "b"}),
		"a":   eval.JobResult(&eval.Job{DrvPath: "/nix/store/xxx-a"}),
		"b":   eval.ChildrenResult([]string{"c"}),
		"b.c": eval.Empty(),
	}}

	results, err := runScripted(t, 2, req)
	require.NoError(t, err)

	require.Len(t, results, 1)
	require.Contains(t, results, "a")
	assert.Equal(t, "/nix/store/xxx-a", results["a"].Job.DrvPath)
	assert.True(t, req.Closed())
}

func TestPerPathFailureIsRecordedNotFatal(t *testing.T) {
	req := &testutil.ScriptedRequester{Results: map[string]eval.Result{
		"":  eval.ChildrenResult([]string{"a", "b"}),
		"a": eval.Failure("type error"),
		"b": eval.JobResult(&eval.Job{DrvPath: "/nix/store/xxx-b"}),
	}}

	results, err := runScripted(t, 1, req)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "type error", results["a"].Err)
	assert.Equal(t, "/nix/store/xxx-b", results["b"].Job.DrvPath)
}

func TestIllegalChildNamesAreNeverDispatched(t *testing.T) {
	req := &testutil.ScriptedRequester{Results: map[string]eval.Result{
		"":   eval.ChildrenResult([]string{"ok", "bad name", "bad.name", ""}),
		"ok": eval.JobResult(&eval.Job{DrvPath: "/nix/store/xxx-ok"}),
	}}

	results, err := runScripted(t, 2, req)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Contains(t, results, "ok")
	// The illegal names were dropped before enqueueing; the requester only
	// ever saw the root and the legal child.
	assert.ElementsMatch(t, []string{"", "ok"}, req.Calls())
}

func TestFatalRequestErrorAbortsRun(t *testing.T) {
	fatal := errors.New("worker pipe closed unexpectedly")
	req := &testutil.ScriptedRequester{
		Results: map[string]eval.Result{
			"":  eval.ChildrenResult([]string{"a", "b", "c"}),
			"b": eval.JobResult(&eval.Job{DrvPath: "/nix/store/xxx-b"}),
			"c": eval.JobResult(&eval.Job{DrvPath: "/nix/store/xxx-c"}),
		},
		Errs: map[string]error{"a": fatal},
	}

	results, err := runScripted(t, 2, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, fatal)
	assert.Nil(t, results, "a fatal error must suppress all output")
}

func TestWideFanOutAcrossThreeWorkers(t *testing.T) {
	scripted := map[string]eval.Result{}
	names := make([]string, 10)
	for i := range names {
		name := fmt.Sprintf("job%d", i)
		names[i] = name
		scripted[name] = eval.JobResult(&eval.Job{DrvPath: "/nix/store/xxx-" + name})
	}
	scripted[""] = eval.ChildrenResult(names)
	req := &testutil.ScriptedRequester{Results: scripted}

	results, err := runScripted(t, 3, req)
	require.NoError(t, err)

	require.Len(t, results, 10)
	for _, name := range names {
		assert.Contains(t, results, name)
	}
	// Each path exactly once, regardless of which worker handled it.
	assert.Len(t, req.Calls(), 11)
}

func TestRerunYieldsSameDocument(t *testing.T) {
	scripted := map[string]eval.Result{
		"":    eval.ChildrenResult([]string{"x", "y"}),
		"x":   eval.JobResult(&eval.Job{DrvPath: "/nix/store/xxx-x"}),
		"y":   eval.ChildrenResult([]string{"z"}),
		"y.z": eval.Failure("missing attribute"),
	}

	first, err := runScripted(t, 2, &testutil.ScriptedRequester{Results: scripted})
	require.NoError(t, err)
	second, err := runScripted(t, 4, &testutil.ScriptedRequester{Results: scripted})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEmptyRootYieldsEmptyDocument(t *testing.T) {
	req := &testutil.ScriptedRequester{Results: map[string]eval.Result{
		"": eval.Empty(),
	}}

	results, err := runScripted(t, 2, req)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChildPath(t *testing.T) {
	assert.Equal(t, "a", childPath("", "a"))
	assert.Equal(t, "a.b", childPath("a", "b"))
}

func TestLegalName(t *testing.T) {
	assert.True(t, legalName("hello"))
	assert.True(t, legalName("x86_64-linux"))
	assert.False(t, legalName("a.b"))
	assert.False(t, legalName("a b"))
	assert.False(t, legalName("a\tb"))
	assert.False(t, legalName(""))
}
