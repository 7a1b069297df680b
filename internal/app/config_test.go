package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/evaljobs/internal/eval"
)

func TestNewConfigValidation(t *testing.T) {
	valid := Config{Target: "release.nix", Workers: 2, MaxMemoryMiB: 1024}

	cfg, err := NewConfig(valid)
	require.NoError(t, err)
	assert.Equal(t, valid, *cfg)

	missing := valid
	missing.Target = ""
	_, err = NewConfig(missing)
	assert.ErrorContains(t, err, "no expression")

	noWorkers := valid
	noWorkers.Workers = 0
	_, err = NewConfig(noWorkers)
	assert.ErrorContains(t, err, "worker")

	noCeiling := valid
	noCeiling.MaxMemoryMiB = 0
	_, err = NewConfig(noCeiling)
	assert.ErrorContains(t, err, "memory")
}

func TestConfigSpec(t *testing.T) {
	cfg := Config{
		Target:       "github:example/project",
		Flake:        true,
		DryRun:       true,
		AutoArgs:     map[string]string{"system": "x86_64-linux"},
		Workers:      4,
		MaxMemoryMiB: 512,
	}

	assert.Equal(t, eval.Spec{
		Target:   "github:example/project",
		Flake:    true,
		DryRun:   true,
		AutoArgs: map[string]string{"system": "x86_64-linux"},
	}, cfg.Spec())
}
