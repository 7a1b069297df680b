package nixeval

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/evaljobs/internal/eval"
)

// The tests below exercise the embedded inspection expression through a real
// nix-instantiate, covering what the runFunc-swapping unit tests cannot.

func requireNix(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("nix-instantiate"); err != nil {
		t.Skip("nix-instantiate not installed")
	}
}

const releaseExpr = `
{
  hello = derivation {
    name = "hello";
    system = builtins.currentSystem;
    builder = "/bin/sh";
    args = [ "-c" "true" ];
  };
  nothing = null;
  nested = {
    empty = { };
  };
}
`

func nixEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	requireNix(t)

	path := filepath.Join(t.TempDir(), "release.nix")
	require.NoError(t, os.WriteFile(path, []byte(releaseExpr), 0644))

	// Dry-run keeps the store read-only; derivation paths are still computed.
	ev, err := New(eval.Spec{Target: path, DryRun: true})
	require.NoError(t, err)
	return ev
}

func TestNixRootEnumeratesChildren(t *testing.T) {
	ev := nixEvaluator(t)

	res, err := ev.Evaluate(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, eval.KindChildren, res.Kind, "root evaluation said: %s", res.Message)
	assert.Equal(t, []string{"hello", "nested", "nothing"}, res.Children)
}

func TestNixDerivationLeaf(t *testing.T) {
	ev := nixEvaluator(t)

	res, err := ev.Evaluate(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, eval.KindJob, res.Kind, "leaf evaluation said: %s", res.Message)
	assert.True(t, strings.HasPrefix(res.Job.DrvPath, "/nix/store/"), "drvPath %q", res.Job.DrvPath)
	assert.True(t, strings.HasSuffix(res.Job.DrvPath, ".drv"), "drvPath %q", res.Job.DrvPath)
	assert.Equal(t, "hello", res.Job.Name)
	assert.NotEmpty(t, res.Job.System)
}

func TestNixNullNodeIsEmpty(t *testing.T) {
	ev := nixEvaluator(t)

	res, err := ev.Evaluate(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Equal(t, eval.KindEmpty, res.Kind)
}

func TestNixNestedAttrs(t *testing.T) {
	ev := nixEvaluator(t)

	res, err := ev.Evaluate(context.Background(), "nested")
	require.NoError(t, err)
	require.Equal(t, eval.KindChildren, res.Kind)
	assert.Equal(t, []string{"empty"}, res.Children)

	// A childless attribute set is an attrs reply, not an empty node.
	res, err = ev.Evaluate(context.Background(), "nested.empty")
	require.NoError(t, err)
	require.Equal(t, eval.KindChildren, res.Kind)
	assert.Empty(t, res.Children)
}

func TestNixMissingAttributeIsPerPathFailure(t *testing.T) {
	ev := nixEvaluator(t)

	res, err := ev.Evaluate(context.Background(), "nested.nope")
	require.NoError(t, err)
	require.Equal(t, eval.KindFailure, res.Kind)
	assert.Contains(t, res.Message, "'nope'")
}
