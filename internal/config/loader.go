package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Dir is the name of the configuration directory, both in the home directory
// and in the project.
const Dir = ".nodemanager"

// fileNames are tried in order inside a configuration directory.
var fileNames = []string{"config.json", "config.yaml", "config.yml"}

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Fields missing from a file keep their previous value; lists are replaced.
// Missing files are not errors; malformed files are.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.nodemanager/config.{json,yaml,yml}
// Project: .nodemanager/config.{json,yaml,yml} (relative to cwd)
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	return Load(Find(filepath.Join(homeDir, Dir)), Find(Dir))
}

// Find returns the first config file present in dir, or the default JSON
// path when there is none.
func Find(dir string) string {
	for _, name := range fileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return filepath.Join(dir, fileNames[0])
}

// Validate checks values that can't be fixed up with defaults.
func (c *Config) Validate() error {
	if c.Engine.PoolSize < 1 {
		return fmt.Errorf("engine.pool_size must be at least 1, got %d", c.Engine.PoolSize)
	}
	if c.Engine.DrainTimeout <= 0 {
		return fmt.Errorf("engine.drain_timeout must be positive")
	}
	if c.Tiling.Tool == "" {
		return fmt.Errorf("tiling.tool can't be empty")
	}
	if c.Tiling.Breaker.Failures == 0 {
		return fmt.Errorf("tiling.breaker.failures must be at least 1")
	}
	if c.Host.PathAttribute == "" {
		return fmt.Errorf("host.path_attribute can't be empty")
	}
	return nil
}

// mergeConfigFile decodes a config file on top of base.
func mergeConfigFile(base *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := yaml.Unmarshal(data, base); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(base); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return nil
}
