// Package config implements TOML configuration loading and platform-specific
// path resolution: a three-tier override chain of defaults, an optional TOML
// file, and environment variables, with CLI flags applied last by the caller.
package config

// Config is the top-level configuration structure for a run. Unlike a
// multi-account sync client, this tool has no concept of a named profile or
// drive — one run is one source/destination pair — so the whole file is a
// single flat table.
type Config struct {
	Sync    SyncConfig    `toml:"sync"`
	Network NetworkConfig `toml:"network"`
	Logging LoggingConfig `toml:"logging"`
}

// SyncConfig controls the Executor's concurrency and the Entry Sink's
// upload-method split.
type SyncConfig struct {
	MaxConcurrency       int    `toml:"max_concurrency"`
	UploadChunkThreshold string `toml:"upload_chunk_threshold"`
	TransferBufferSize   string `toml:"transfer_buffer_size"`
}

// NetworkConfig controls the Object Client's HTTP transport.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	ReadTimeout    string `toml:"read_timeout"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}
