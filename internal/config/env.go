package config

import "os"

// Environment variable names for overrides. These sit between the TOML file
// and CLI flags in the override chain.
const (
	EnvConfigPath     = "GCS_RSYNC_CONFIG"
	EnvMaxConcurrency = "GCS_RSYNC_MAX_CONCURRENCY"
	EnvUploadChunk    = "GCS_RSYNC_UPLOAD_CHUNK_THRESHOLD"
	EnvLogLevel       = "GCS_RSYNC_LOG_LEVEL"
)

// EnvOverrides holds values derived from environment variables. Resolved by
// ReadEnvOverrides; ApplyEnvOverrides layers them onto a Config.
type EnvOverrides struct {
	ConfigPath     string
	MaxConcurrency string
	UploadChunk    string
	LogLevel       string
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:     os.Getenv(EnvConfigPath),
		MaxConcurrency: os.Getenv(EnvMaxConcurrency),
		UploadChunk:    os.Getenv(EnvUploadChunk),
		LogLevel:       os.Getenv(EnvLogLevel),
	}
}

// ApplyEnvOverrides layers non-empty environment overrides onto cfg in place.
func ApplyEnvOverrides(cfg *Config, env EnvOverrides) error {
	if env.MaxConcurrency != "" {
		n, err := parseSizeNumber(env.MaxConcurrency, 1, env.MaxConcurrency)
		if err != nil {
			return err
		}

		cfg.Sync.MaxConcurrency = int(n)
	}

	if env.UploadChunk != "" {
		cfg.Sync.UploadChunkThreshold = env.UploadChunk
	}

	if env.LogLevel != "" {
		cfg.Logging.Level = env.LogLevel
	}

	return nil
}
