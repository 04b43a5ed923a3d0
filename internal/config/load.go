package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and decodes the TOML file at path onto a copy of DefaultConfig,
// so any field the file omits keeps its default. A missing file is not an
// error — it simply means "use defaults"; any other read or decode failure is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}

		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return cfg, nil
}

// Resolve builds the final Config for a run: defaults, then the TOML file
// (configPath, or DefaultConfigPath() if empty and it exists), then
// environment variable overrides. CLI flags are applied by the caller on
// top of the returned Config, since they are the outermost tier.
func Resolve(configPath string) (*Config, error) {
	env := ReadEnvOverrides()

	path := configPath
	if path == "" {
		path = env.ConfigPath
	}

	if path == "" {
		if candidate := DefaultConfigPath(); candidate != "" {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
			}
		}
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := ApplyEnvOverrides(cfg, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ParseSize parses a human-readable size string ("8MiB", "512", "1.5GiB")
// into a byte count, for callers (CLI flag parsing) outside this package.
func ParseSize(s string) (int64, error) {
	return parseSize(s)
}

// UploadChunkThresholdBytes parses Sync.UploadChunkThreshold as a byte count.
func (c *Config) UploadChunkThresholdBytes() (int64, error) {
	return parseSize(c.Sync.UploadChunkThreshold)
}

// TransferBufferSizeBytes parses Sync.TransferBufferSize as a byte count.
func (c *Config) TransferBufferSizeBytes() (int64, error) {
	return parseSize(c.Sync.TransferBufferSize)
}
