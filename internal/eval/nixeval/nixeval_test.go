package nixeval

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/evaljobs/internal/eval"
)

func TestRootExpressionPlainFile(t *testing.T) {
	expr, include, err := rootExpression(eval.Spec{Target: "release.nix"})
	require.NoError(t, err)

	abs, err := filepath.Abs("release.nix")
	require.NoError(t, err)
	assert.Contains(t, expr, "import (/. + ")
	assert.Contains(t, expr, abs)
	assert.Equal(t, filepath.Dir(abs), include)
}

func TestRootExpressionFlake(t *testing.T) {
	expr, include, err := rootExpression(eval.Spec{Target: "github:example/project", Flake: true})
	require.NoError(t, err)

	assert.Contains(t, expr, `builtins.getFlake "github:example/project"`)
	assert.Contains(t, expr, "outputs.hydraJobs or outputs.checks")
	assert.Empty(t, include)
}

func TestRootExpressionRequiresTarget(t *testing.T) {
	_, _, err := rootExpression(eval.Spec{})
	assert.Error(t, err)
}

func TestAutoArgsExpressionIsSorted(t *testing.T) {
	assert.Equal(t, "{ }", autoArgsExpression(nil))

	expr := autoArgsExpression(map[string]string{
		"system":  "x86_64-linux",
		"channel": "stable",
	})
	assert.Equal(t, `{ channel = "stable"; system = "x86_64-linux"; }`, expr)
}

func TestArgumentsFlakeAndDryRun(t *testing.T) {
	ev, err := New(eval.Spec{Target: "github:example/project", Flake: true, DryRun: true})
	require.NoError(t, err)

	args := ev.arguments("packages.hello")
	assert.Contains(t, args, "--eval")
	assert.Contains(t, args, "--strict")
	assert.Contains(t, args, "--json")
	assert.Contains(t, args, "restrict-eval")
	assert.Contains(t, args, "pure-eval")
	assert.Contains(t, args, "--extra-experimental-features")
	assert.Contains(t, args, "--readonly-mode")
	assert.Contains(t, args, "packages.hello")
}

func TestArgumentsPlainModeOmitsFlakeOptions(t *testing.T) {
	ev, err := New(eval.Spec{Target: "release.nix"})
	require.NoError(t, err)

	args := ev.arguments("")
	assert.NotContains(t, args, "pure-eval")
	assert.NotContains(t, args, "--readonly-mode")

	// Restricted evaluation must still be able to read the expression file.
	abs, err := filepath.Abs("release.nix")
	require.NoError(t, err)
	assert.Contains(t, args, "-I")
	assert.Contains(t, args, filepath.Dir(abs))
}

func TestArgumentsFlakeModeOmitsSearchPath(t *testing.T) {
	ev, err := New(eval.Spec{Target: "github:example/project", Flake: true})
	require.NoError(t, err)
	assert.NotContains(t, ev.arguments(""), "-I")
}

func TestDecodeInspectOutput(t *testing.T) {
	res, err := decodeInspectOutput([]byte(`{"type":"job","drvPath":"/nix/store/abc-hello.drv","name":"hello-1.0","system":"x86_64-linux"}`))
	require.NoError(t, err)
	require.Equal(t, eval.KindJob, res.Kind)
	assert.Equal(t, "/nix/store/abc-hello.drv", res.Job.DrvPath)
	assert.Equal(t, "hello-1.0", res.Job.Name)
	assert.Equal(t, "x86_64-linux", res.Job.System)

	res, err = decodeInspectOutput([]byte(`{"type":"attrs","names":["a","b"]}`))
	require.NoError(t, err)
	require.Equal(t, eval.KindChildren, res.Kind)
	assert.Equal(t, []string{"a", "b"}, res.Children)

	res, err = decodeInspectOutput([]byte(`{"type":"attrs"}`))
	require.NoError(t, err)
	require.Equal(t, eval.KindChildren, res.Kind)
	assert.Empty(t, res.Children)
	assert.NotNil(t, res.Children)

	res, err = decodeInspectOutput([]byte("  {\"type\":\"null\"}\n"))
	require.NoError(t, err)
	assert.Equal(t, eval.KindEmpty, res.Kind)
}

func TestDecodeInspectOutputRejectsGarbage(t *testing.T) {
	_, err := decodeInspectOutput([]byte("not json"))
	assert.Error(t, err)

	_, err = decodeInspectOutput([]byte(`{"type":"mystery"}`))
	assert.Error(t, err)
}

func TestEvalErrorMessageStripsANSI(t *testing.T) {
	msg := evalErrorMessage([]byte("\x1b[31;1merror:\x1b[0m attribute 'x' missing\n"))
	assert.Equal(t, "error: attribute 'x' missing", msg)

	assert.Equal(t, "evaluation failed", evalErrorMessage(nil))
}

func TestEvaluateExitErrorBecomesFailure(t *testing.T) {
	ev, err := New(eval.Spec{Target: "release.nix"})
	require.NoError(t, err)
	ev.run = func(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
		return nil, []byte("error: cannot coerce\n"), &exec.ExitError{}
	}

	res, err := ev.Evaluate(context.Background(), "broken")
	require.NoError(t, err)
	assert.Equal(t, eval.KindFailure, res.Kind)
	assert.Equal(t, "error: cannot coerce", res.Message)
}

func TestEvaluateLaunchFailureIsFatal(t *testing.T) {
	ev, err := New(eval.Spec{Target: "release.nix"})
	require.NoError(t, err)
	ev.run = func(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
		return nil, nil, errors.New("executable file not found")
	}

	_, err = ev.Evaluate(context.Background(), "")
	assert.ErrorContains(t, err, "nix-instantiate")
}

func TestEvaluateDecodesSuccess(t *testing.T) {
	ev, err := New(eval.Spec{Target: "release.nix"})
	require.NoError(t, err)
	var gotName string
	var gotArgs []string
	ev.run = func(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
		gotName = name
		gotArgs = args
		return []byte(`{"type":"attrs","names":["hello"]}`), nil, nil
	}

	res, err := ev.Evaluate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, eval.KindChildren, res.Kind)
	assert.Equal(t, "nix-instantiate", gotName)
	assert.Contains(t, gotArgs, "--expr")
}
