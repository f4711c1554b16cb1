package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as a string ("30s") in config files.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// EngineConfig sizes the processing engine.
type EngineConfig struct {
	PoolSize     int      `json:"pool_size" yaml:"pool_size"`
	DrainTimeout Duration `json:"drain_timeout" yaml:"drain_timeout"`
	NoShuffle    bool     `json:"no_shuffle,omitempty" yaml:"no_shuffle,omitempty"`
	DBPath       string   `json:"db_path,omitempty" yaml:"db_path,omitempty"` // Run journal, empty disables it
}

// LocateConfig holds the defaults of the locate command.
type LocateConfig struct {
	Root   string   `json:"root,omitempty" yaml:"root,omitempty"`
	Ignore []string `json:"ignore,omitempty" yaml:"ignore,omitempty"` // doublestar patterns
}

// RelocateConfig holds the defaults of the relocate command.
type RelocateConfig struct {
	Destination    string `json:"destination,omitempty" yaml:"destination,omitempty"`
	Copy           bool   `json:"copy" yaml:"copy"`
	PreserveParent bool   `json:"preserve_parent" yaml:"preserve_parent"`
	UpdateTarget   bool   `json:"update_target" yaml:"update_target"`
	Retry          Retry  `json:"retry" yaml:"retry"`
}

// Retry bounds the retries of transient file transfer errors.
type Retry struct {
	InitialInterval Duration `json:"initial_interval" yaml:"initial_interval"`
	MaxInterval     Duration `json:"max_interval" yaml:"max_interval"`
	MaxElapsedTime  Duration `json:"max_elapsed_time" yaml:"max_elapsed_time"`
}

// TilingConfig describes the external tool producing tiled textures.
type TilingConfig struct {
	Tool         string   `json:"tool" yaml:"tool"`
	Args         []string `json:"args" yaml:"args"` // {input} and {output} are replaced
	Extension    string   `json:"extension" yaml:"extension"`
	RawSegment   string   `json:"raw_segment" yaml:"raw_segment"`
	TiledSegment string   `json:"tiled_segment" yaml:"tiled_segment"`
	Verbose      bool     `json:"verbose" yaml:"verbose"`
	UpdateTarget bool     `json:"update_target" yaml:"update_target"`
	Breaker      Breaker  `json:"breaker" yaml:"breaker"`
}

// Breaker configures the circuit breaker guarding the tool.
type Breaker struct {
	Failures uint32   `json:"failures" yaml:"failures"`
	Timeout  Duration `json:"timeout" yaml:"timeout"`
}

// HostConfig describes where targets come from.
type HostConfig struct {
	Scene         string `json:"scene,omitempty" yaml:"scene,omitempty"`
	PathAttribute string `json:"path_attribute" yaml:"path_attribute"`
}

// Config is the top-level configuration.
type Config struct {
	Engine   EngineConfig   `json:"engine" yaml:"engine"`
	Locate   LocateConfig   `json:"locate" yaml:"locate"`
	Relocate RelocateConfig `json:"relocate" yaml:"relocate"`
	Tiling   TilingConfig   `json:"tiling" yaml:"tiling"`
	Host     HostConfig     `json:"host" yaml:"host"`
}
