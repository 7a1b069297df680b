package app

import (
	"errors"

	"github.com/vk/evaljobs/internal/eval"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	Target   string // expression file, flake reference, or .hcl manifest
	Flake    bool
	DryRun   bool
	AutoArgs map[string]string

	Workers      int
	MaxMemoryMiB int
	GCRootsDir   string

	LogFormat string
	LogLevel  string
}

// NewConfig validates a Config and returns it.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Target == "" {
		return nil, errors.New("no expression specified")
	}
	if cfg.Workers < 1 {
		return nil, errors.New("at least one worker is required")
	}
	if cfg.MaxMemoryMiB < 1 {
		return nil, errors.New("the worker memory ceiling must be positive")
	}
	return &cfg, nil
}

// Spec derives the evaluator configuration every worker is initialized with.
func (c *Config) Spec() eval.Spec {
	return eval.Spec{
		Target:   c.Target,
		Flake:    c.Flake,
		DryRun:   c.DryRun,
		AutoArgs: c.AutoArgs,
	}
}
