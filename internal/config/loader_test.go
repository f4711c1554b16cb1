package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	tests := map[string]struct {
		global  string
		project string
		check   func(t *testing.T, cfg *Config)
		expErr  bool
	}{
		"No config files returns defaults.": {
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DefaultConfig(), cfg)
			},
		},

		"Global JSON overrides a single field.": {
			global: `global/config.json:{"engine": {"pool_size": 4}}`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 4, cfg.Engine.PoolSize)
				assert.Equal(t, Duration(30*time.Second), cfg.Engine.DrainTimeout)
				assert.Equal(t, "maketx", cfg.Tiling.Tool)
			},
		},

		"Project YAML wins over global JSON.": {
			global:  `global/config.json:{"engine": {"pool_size": 4}, "tiling": {"tool": "oiiotool"}}`,
			project: "project/config.yaml:engine:\n  pool_size: 8\n  drain_timeout: 5s\n",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8, cfg.Engine.PoolSize)
				assert.Equal(t, Duration(5*time.Second), cfg.Engine.DrainTimeout)
				assert.Equal(t, "oiiotool", cfg.Tiling.Tool)
			},
		},

		"Lists are replaced, not appended.": {
			project: "project/config.yml:locate:\n  root: /assets\n  ignore: [cache]\n",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/assets", cfg.Locate.Root)
				assert.Equal(t, []string{"cache"}, cfg.Locate.Ignore)
			},
		},

		"Empty YAML file keeps defaults.": {
			project: "project/config.yaml:\n",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DefaultConfig(), cfg)
			},
		},

		"Malformed JSON is an error.": {
			global: `global/config.json:{"engine": `,
			expErr: true,
		},

		"Unknown JSON fields are an error.": {
			project: `project/config.json:{"engines": {}}`,
			expErr:  true,
		},

		"Invalid durations are an error.": {
			project: "project/config.yaml:engine:\n  drain_timeout: soon\n",
			expErr:  true,
		},

		"Invalid values fail validation.": {
			project: `project/config.json:{"engine": {"pool_size": 0}}`,
			expErr:  true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			paths := map[string]string{}
			for kind, def := range map[string]string{"global": test.global, "project": test.project} {
				if def == "" {
					paths[kind] = filepath.Join(dir, kind, "config.json")
					continue
				}
				rel, content, _ := strings.Cut(def, ":")
				paths[kind] = writeConfig(t, dir, rel, content)
			}

			cfg, err := Load(paths["global"], paths["project"])
			if test.expErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			test.check(t, cfg)
		})
	}
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, filepath.Join(dir, "config.json"), Find(dir))

	yamlPath := writeConfig(t, dir, "config.yaml", "engine:\n  pool_size: 3\n")
	assert.Equal(t, yamlPath, Find(dir))

	jsonPath := writeConfig(t, dir, "config.json", "{}")
	assert.Equal(t, jsonPath, Find(dir))
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		mutate func(cfg *Config)
		expErr bool
	}{
		"Defaults are valid.": {
			mutate: func(*Config) {},
		},
		"Missing tool.": {
			mutate: func(cfg *Config) { cfg.Tiling.Tool = "" },
			expErr: true,
		},
		"Zero breaker failures.": {
			mutate: func(cfg *Config) { cfg.Tiling.Breaker.Failures = 0 },
			expErr: true,
		},
		"Negative drain timeout.": {
			mutate: func(cfg *Config) { cfg.Engine.DrainTimeout = Duration(-time.Second) },
			expErr: true,
		},
		"Missing path attribute.": {
			mutate: func(cfg *Config) { cfg.Host.PathAttribute = "" },
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			test.mutate(cfg)
			err := cfg.Validate()
			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
