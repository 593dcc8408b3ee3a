// Package config holds the server settings. Settings come from three layers,
// each overriding the one before: built-in defaults, an optional .wly.yml at
// the workspace root, and the client's initializationOptions.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// FileName is the workspace configuration file, looked up at the root.
const FileName = ".wly.yml"

// Keys are identical in YAML and JSON so a .wly.yml snippet can be pasted
// into a client's initializationOptions unchanged.
type Config struct {
	Lint  LintConfig  `yaml:"lint" json:"lint"`
	Index IndexConfig `yaml:"index" json:"index"`
	Graph GraphConfig `yaml:"graph" json:"graph"`
}

// LintConfig controls which diagnostics are produced.
type LintConfig struct {
	// UnusedHandles enables the warning for handles that are defined but
	// never referenced anywhere in the workspace.
	UnusedHandles bool `yaml:"unusedHandles" json:"unusedHandles"`
}

// IndexConfig controls workspace indexing and the scan cache.
type IndexConfig struct {
	// DebounceMs delays tree-wide diagnostic refreshes after an edit.
	DebounceMs int `yaml:"debounceMs" json:"debounceMs"`
	// Cache persists scan results between sessions.
	Cache bool `yaml:"cache" json:"cache"`
}

// GraphConfig controls the embedded graph view server. When Enabled is
// false the server still starts on demand via the wly.showGraph command.
type GraphConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Addr is the listen address; port 0 picks an ephemeral port.
	Addr string `yaml:"addr" json:"addr"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Lint: LintConfig{
			UnusedHandles: true,
		},
		Index: IndexConfig{
			DebounceMs: 300,
			Cache:      true,
		},
		Graph: GraphConfig{
			Enabled: false,
			Addr:    "127.0.0.1:0",
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path. A missing
// file is not an error; the defaults come back unchanged. Environment
// variables in the file are expanded before parsing.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Overlay applies the client's initializationOptions on top of cfg. Only
// fields present in v overwrite; v is typically the decoded JSON value from
// the initialize request.
func (c Config) Overlay(v any) (Config, error) {
	if v == nil {
		return c, nil
	}

	cfg := c
	data, err := json.Marshal(v)
	if err != nil {
		return Config{}, fmt.Errorf("failed to marshal initialization options: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal initialization options: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := c.Index.Validate(); err != nil {
		return err
	}
	return c.Graph.Validate()
}

func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DebounceMs, validation.Min(0), validation.Max(10000)),
	)
}

func (c *GraphConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Addr, validation.Required),
	)
}
