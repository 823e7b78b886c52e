package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"harmonia/internal/toggle"
	"harmonia/pkg/harmonia"
)

// RunConfig is the YAML shape of a run-config file. Every field is optional;
// zero values fall through to the client defaults.
type RunConfig struct {
	RunID   string  `yaml:"run_id"`
	Ticks   int     `yaml:"ticks"`
	Seed    int64   `yaml:"seed"`
	Balance float64 `yaml:"balance"`

	Metrics  *MetricsConfig `yaml:"metrics"`
	Workload WorkloadConfig `yaml:"workload"`
	Perturb  *PerturbConfig `yaml:"perturb"`
	Flags    []FlagConfig   `yaml:"flags"`

	SkipArtifacts bool `yaml:"skip_artifacts"`
}

type MetricsConfig struct {
	Grounding   float64 `yaml:"grounding"`
	Efficiency  float64 `yaml:"efficiency"`
	Consistency float64 `yaml:"consistency"`
}

type WorkloadConfig struct {
	Modules     int     `yaml:"modules"`
	Parallelism int     `yaml:"parallelism"`
	Depth       int     `yaml:"depth"`
	Latency     float64 `yaml:"latency"`
	ErrorRate   float64 `yaml:"error_rate"`
}

type PerturbConfig struct {
	AtTick int     `yaml:"at_tick"`
	Target float64 `yaml:"target"`
	Ticks  int     `yaml:"ticks"`
}

type FlagConfig struct {
	AtTick     int    `yaml:"at_tick"`
	Kind       string `yaml:"kind"`
	Source     string `yaml:"source"`
	Reason     string `yaml:"reason"`
	Target     string `yaml:"target"`
	Deactivate bool   `yaml:"deactivate"`
}

func loadRunConfig(path string) (RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, err
	}
	var cfg RunConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, fmt.Errorf("parse run config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return RunConfig{}, fmt.Errorf("run config %s: %w", path, err)
	}
	return cfg, nil
}

func (cfg RunConfig) validate() error {
	if cfg.Ticks < 0 {
		return fmt.Errorf("ticks must be >= 0, got %d", cfg.Ticks)
	}
	if cfg.Balance < 0 || cfg.Balance > 1 {
		return fmt.Errorf("balance must be within [0, 1], got %g", cfg.Balance)
	}
	if cfg.Perturb != nil {
		if cfg.Perturb.Target < 0 || cfg.Perturb.Target > 1 {
			return fmt.Errorf("perturb target must be within [0, 1], got %g", cfg.Perturb.Target)
		}
		if cfg.Perturb.Ticks <= 0 {
			return fmt.Errorf("perturb ticks must be > 0, got %d", cfg.Perturb.Ticks)
		}
		if cfg.Perturb.AtTick < 0 {
			return fmt.Errorf("perturb at_tick must be >= 0, got %d", cfg.Perturb.AtTick)
		}
	}
	for i, flag := range cfg.Flags {
		if _, err := toggle.ParseKind(flag.Kind); err != nil {
			return fmt.Errorf("flags[%d]: %w", i, err)
		}
		if flag.Source == "" {
			return fmt.Errorf("flags[%d]: source is required", i)
		}
		if flag.AtTick < 0 {
			return fmt.Errorf("flags[%d]: at_tick must be >= 0, got %d", i, flag.AtTick)
		}
	}
	return nil
}

func (cfg RunConfig) toRequest() harmonia.RunRequest {
	req := harmonia.RunRequest{
		RunID:         cfg.RunID,
		Ticks:         cfg.Ticks,
		Seed:          cfg.Seed,
		Balance:       cfg.Balance,
		SkipArtifacts: cfg.SkipArtifacts,
	}
	if cfg.Metrics != nil {
		req.Metrics = &harmonia.Metrics{
			Grounding:   cfg.Metrics.Grounding,
			Efficiency:  cfg.Metrics.Efficiency,
			Consistency: cfg.Metrics.Consistency,
		}
	}
	req.Workload = harmonia.Workload{
		Modules:     cfg.Workload.Modules,
		Parallelism: cfg.Workload.Parallelism,
		Depth:       cfg.Workload.Depth,
		Latency:     cfg.Workload.Latency,
		ErrorRate:   cfg.Workload.ErrorRate,
	}
	if cfg.Perturb != nil {
		req.Perturb = &harmonia.PerturbSpec{
			AtTick: cfg.Perturb.AtTick,
			Target: cfg.Perturb.Target,
			Ticks:  cfg.Perturb.Ticks,
		}
	}
	for _, flag := range cfg.Flags {
		req.Flags = append(req.Flags, harmonia.FlagSpec{
			AtTick:     flag.AtTick,
			Kind:       flag.Kind,
			Source:     flag.Source,
			Reason:     flag.Reason,
			Target:     flag.Target,
			Deactivate: flag.Deactivate,
		})
	}
	return req
}
