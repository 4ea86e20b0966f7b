// Package config holds rulectl's file-backed configuration.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Config holds all rulectl settings. Flags override anything loaded from
// file.
type Config struct {
	// Run controls the fire loop.
	Run RunConfig `yaml:"run"`
	// Trace is the engine trace level, 0 (off) to 3 (verbose).
	Trace int `yaml:"trace"`
	// Scenario is the default scenario file applied before a run.
	Scenario string `yaml:"scenario"`
}

// RunConfig configures the fire loop.
type RunConfig struct {
	// MaxFires bounds a run; 0 means run to quiescence.
	MaxFires int `yaml:"max_fires"`
	// Yield inserts a cooperative yield between fire cycles.
	Yield bool `yaml:"yield"`
	// ContinueOnError keeps draining the agenda past action errors.
	ContinueOnError bool `yaml:"continue_on_error"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Run: RunConfig{
			MaxFires: 0,
			Yield:    false,
		},
		Trace: 0,
	}
}

// Load reads a config file over the defaults. A missing file is not an
// error; the defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	if cfg.Trace < 0 || cfg.Trace > 3 {
		return cfg, errors.Newf("config %s: trace level %d out of range 0..3", path, cfg.Trace)
	}
	return cfg, nil
}
