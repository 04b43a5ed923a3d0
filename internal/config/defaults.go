package config

// Default values for configuration options: layer 0 of the three-layer
// override chain, chosen as safe starting points that work without any
// config file.
const (
	defaultMaxConcurrency       = 16
	defaultUploadChunkThreshold = "8MiB"
	defaultTransferBufferSize   = "64KiB"
	defaultConnectTimeout       = "60s"
	defaultReadTimeout          = "600s"
	defaultLogLevel             = "info"
	defaultLogFormat            = "auto"
)

// DefaultConfig returns a Config populated with all default values. This is
// both the starting point for TOML decoding (so unset fields retain
// defaults) and the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Sync: SyncConfig{
			MaxConcurrency:       defaultMaxConcurrency,
			UploadChunkThreshold: defaultUploadChunkThreshold,
			TransferBufferSize:   defaultTransferBufferSize,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			ReadTimeout:    defaultReadTimeout,
		},
		Logging: LoggingConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
