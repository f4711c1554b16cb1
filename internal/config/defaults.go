package config

import "time"

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			PoolSize:     2,
			DrainTimeout: Duration(30 * time.Second),
		},
		Locate: LocateConfig{
			Ignore: []string{".git", "**/.*"},
		},
		Relocate: RelocateConfig{
			UpdateTarget: true,
			Retry: Retry{
				InitialInterval: Duration(50 * time.Millisecond),
				MaxInterval:     Duration(time.Second),
				MaxElapsedTime:  Duration(5 * time.Second),
			},
		},
		Tiling: TilingConfig{
			Tool:         "maketx",
			Args:         []string{"-v", "-u", "--oiio", "--monochrome-detect", "{input}", "-o", "{output}"},
			Extension:    ".tx",
			RawSegment:   "raw",
			TiledSegment: "tiled",
			UpdateTarget: true,
			Breaker: Breaker{
				Failures: 5,
				Timeout:  Duration(30 * time.Second),
			},
		},
		Host: HostConfig{
			PathAttribute: "fileTextureName",
		},
	}
}
