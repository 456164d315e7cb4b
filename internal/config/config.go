// Package config loads lawgraph settings from layered YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lawgraph/internal/conflict"
)

// Config is the complete lawgraph configuration.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Watch   WatchConfig   `yaml:"watch"`
}

// EngineConfig configures graph execution.
type EngineConfig struct {
	// Parallelism is the number of nodes run at once (1 = serial).
	Parallelism int `yaml:"parallelism"`
	// BlockingSeverity is the lowest conflict severity that stops a run.
	BlockingSeverity string `yaml:"blocking_severity"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is one of text, json, tint.
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// WatchConfig configures `check --watch`.
type WatchConfig struct {
	// Debounce coalesces bursts of file events.
	Debounce time.Duration `yaml:"debounce"`
}

// DefaultConfig returns a Config with the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Parallelism:      1,
			BlockingSeverity: "critical",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "tint",
		},
		Watch: WatchConfig{
			Debounce: 200 * time.Millisecond,
		},
	}
}

var logFormats = []string{"text", "json", "tint"}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Engine.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("engine.parallelism must be at least 1, got %d", c.Engine.Parallelism))
	}
	if _, err := conflict.ParseSeverity(c.Engine.BlockingSeverity); err != nil {
		errs = append(errs, fmt.Errorf("engine.blocking_severity: %w", err))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if !contains(logFormats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of %s, got %q", strings.Join(logFormats, "|"), c.Log.Format))
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, errors.New("watch.debounce must not be negative"))
	}
	return errors.Join(errs...)
}

// Severity returns the parsed blocking severity. Call Validate first.
func (c *Config) Severity() conflict.Severity {
	s, err := conflict.ParseSeverity(c.Engine.BlockingSeverity)
	if err != nil {
		return conflict.SeverityCritical
	}
	return s
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, err
	}
	return lvl, nil
}

// LoadFromFile loads a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	layer, err := readLayer(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	cfg.Merge(layer)
	return cfg, nil
}

// readLayer parses path into a zero Config so that Merge only sees the keys
// the file sets. Unknown keys are rejected.
func readLayer(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	layer := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(layer); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return layer, nil
}

// Merge merges other into c. Non-zero values in other take precedence.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Engine
	if other.Engine.Parallelism != 0 {
		c.Engine.Parallelism = other.Engine.Parallelism
	}
	if other.Engine.BlockingSeverity != "" {
		c.Engine.BlockingSeverity = other.Engine.BlockingSeverity
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}

	if other.Metrics.Enabled {
		c.Metrics.Enabled = true
	}
	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
