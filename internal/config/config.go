// Package config holds declarative tuning knobs for the engine. None of
// it changes evaluation semantics; it only governs diagnostics and
// resource usage.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config tunes engine resource usage and diagnostics. The zero Config is
// not valid for direct use; callers should start from DefaultConfig and
// override only the fields they need.
type Config struct {
	// FactLimit is a soft cap on the total number of processed facts
	// across all relations. Poll logs a warning once the limit is
	// crossed but does not stop evaluation — the core has no eviction
	// policy. Zero means unlimited.
	FactLimit int `yaml:"fact_limit"`

	// QueryTimeout bounds query-program evaluation under either strategy.
	// It is advisory, not preemptive: checked between semi-naive
	// iterations bottom-up and between subquery descents top-down.
	QueryTimeout time.Duration `yaml:"query_timeout"`

	// ConcurrentJoins toggles the errgroup-based concurrent sub-join path
	// in the rule evaluator versus a fully sequential evaluator.
	ConcurrentJoins bool `yaml:"concurrent_joins"`
}

// DefaultConfig returns the configuration new engines use when the
// caller does not supply one: no fact limit, a generous query timeout,
// and concurrent joins enabled.
func DefaultConfig() *Config {
	return &Config{
		FactLimit:       0,
		QueryTimeout:    30 * time.Second,
		ConcurrentJoins: true,
	}
}

// Load reads a Config from a YAML file at path, starting from
// DefaultConfig so that a partial file only overrides the fields it
// mentions.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}
