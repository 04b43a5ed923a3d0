package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/cboudereau/gcs-rsync/internal/config"
	"github.com/cboudereau/gcs-rsync/internal/entry"
	"github.com/cboudereau/gcs-rsync/internal/executor"
	"github.com/cboudereau/gcs-rsync/internal/objectclient"
	"github.com/cboudereau/gcs-rsync/internal/syncrun"
	"github.com/cboudereau/gcs-rsync/internal/tokenprovider"
)

// version is set at build time via ldflags.
var version = "dev"

// Exit codes, per the run's external interface: 0 success, 1 per-action
// failures occurred (no fail-fast abort), 2 config/argument error, 3
// authentication failure, 4 run aborted (ordering violation or cancellation).
const (
	exitOK          = 0
	exitPartial     = 1
	exitConfigError = 2
	exitAuthError   = 3
	exitAborted     = 4
)

// Flags bound by newRootCmd, read in RunE.
var (
	flagRecursive      bool
	flagMirror         bool
	flagIncludes       []string
	flagExcludes       []string
	flagDryRun         bool
	flagMaxConcurrency int
	flagConnectTimeout time.Duration
	flagReadTimeout    time.Duration
	flagChunkSize      string
	flagVerbose        bool
	flagAnonymous      bool
	flagJSON           bool
	flagConfigPath     string
	flagRestoreMTime   bool
	flagFailFast       bool
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "gcs-rsync <source> <destination>",
		Short:   "One-way sync between a local directory and a GCS bucket",
		Long: `Sync files one-way between a local directory and a Google Cloud Storage
bucket prefix. Either <source> or <destination> may be "gs://bucket/prefix";
the other is a local directory path.`,
		Version: version,
		Args:    cobra.ExactArgs(2),
		// Silence Cobra's default error/usage printing — main() handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), args[0], args[1])
		},
	}

	cmd.Flags().BoolVarP(&flagRecursive, "recursive", "r", false, "descend into subdirectories/prefixes")
	cmd.Flags().BoolVarP(&flagMirror, "mirror", "m", false, "delete destination entries absent from the source")
	cmd.Flags().StringArrayVarP(&flagIncludes, "include", "i", nil, "glob pattern to include (repeatable)")
	cmd.Flags().StringArrayVarP(&flagExcludes, "exclude", "x", nil, "glob pattern to exclude (repeatable)")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "preview actions without executing them")
	cmd.Flags().IntVar(&flagMaxConcurrency, "max-concurrency", 0, "worker pool size (0: use config/default)")
	cmd.Flags().DurationVar(&flagConnectTimeout, "connect-timeout", 0, "HTTP connect timeout (0: use config/default)")
	cmd.Flags().DurationVar(&flagReadTimeout, "read-timeout", 0, "HTTP client timeout (0: use config/default)")
	cmd.Flags().StringVar(&flagChunkSize, "chunk-size", "", "simple/resumable upload size split (0: use config/default)")
	cmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "log each action as it executes")
	cmd.Flags().BoolVar(&flagAnonymous, "anonymous", false, "make unauthenticated GCS requests (public buckets only)")
	cmd.Flags().BoolVar(&flagJSON, "json", false, "print the run summary as JSON")
	cmd.Flags().StringVar(&flagConfigPath, "config", "", "path to a TOML config file")
	cmd.Flags().BoolVar(&flagRestoreMTime, "restore-mtime", true, "restore source modification time on the destination")
	cmd.Flags().BoolVar(&flagFailFast, "fail-fast", false, "abort the run on the first per-action error")

	return cmd
}

func runSync(ctx context.Context, src, dst string) error {
	cfg, err := config.Resolve(flagConfigPath)
	if err != nil {
		return fmt.Errorf("%w: %w", entry.ErrConfig, err)
	}

	logger := buildLogger(cfg)

	runCfg, err := buildRunConfig(cfg)
	if err != nil {
		return err
	}

	if srcEp, err := syncrun.ParseEndpoint(src); err == nil && srcEp.IsGCS {
		runCfg.Direction = entry.RemoteToLocal
	}

	deps, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		if errors.Is(err, entry.ErrAuth) {
			exitf(exitAuthError, "auth: %v", err)
		}

		return err
	}

	start := time.Now()
	result, runErr := syncrun.Run(ctx, src, dst, runCfg, deps)
	elapsed := time.Since(start)

	if flagJSON {
		printJSONSummary(result, elapsed, runErr)
	} else {
		printTextSummary(result, elapsed)
	}

	return classifyRunErr(result, runErr)
}

func buildRunConfig(cfg *config.Config) (entry.RunConfig, error) {
	maxConcurrency := cfg.Sync.MaxConcurrency
	if flagMaxConcurrency > 0 {
		maxConcurrency = flagMaxConcurrency
	}

	chunkThreshold, err := cfg.UploadChunkThresholdBytes()
	if err != nil {
		return entry.RunConfig{}, fmt.Errorf("%w: %w", entry.ErrConfig, err)
	}

	if flagChunkSize != "" {
		parsed, err := config.ParseSize(flagChunkSize)
		if err != nil {
			return entry.RunConfig{}, fmt.Errorf("%w: --chunk-size: %w", entry.ErrConfig, err)
		}

		chunkThreshold = parsed
	}

	bufSize, err := cfg.TransferBufferSizeBytes()
	if err != nil {
		return entry.RunConfig{}, fmt.Errorf("%w: %w", entry.ErrConfig, err)
	}

	return entry.RunConfig{
		Direction:            entry.LocalToRemote,
		Mirror:               flagMirror,
		RestoreMTime:         flagRestoreMTime,
		Includes:             flagIncludes,
		Excludes:             flagExcludes,
		MaxConcurrency:       maxConcurrency,
		Recursive:            flagRecursive,
		FailFast:             flagFailFast,
		DryRun:               flagDryRun,
		UploadChunkThreshold: chunkThreshold,
		TransferBufferSize:   int(bufSize),
	}, nil
}

func buildDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (syncrun.Deps, error) {
	connectTimeout, readTimeout, err := resolveTimeouts(cfg)
	if err != nil {
		return syncrun.Deps{}, fmt.Errorf("%w: %w", entry.ErrConfig, err)
	}

	httpClient := &http.Client{Timeout: readTimeout}
	if transport, ok := http.DefaultTransport.(*http.Transport); ok {
		cloned := transport.Clone()
		cloned.TLSHandshakeTimeout = connectTimeout
		httpClient.Transport = cloned
	}

	var tokenSource objectclient.TokenSource
	if flagAnonymous {
		tokenSource = objectclient.NoAuth()
	} else {
		source, err := tokenprovider.FromEnv(ctx)
		if err != nil {
			return syncrun.Deps{}, fmt.Errorf("%w: %w", entry.ErrAuth, err)
		}

		tokenSource = source
	}

	return syncrun.Deps{HTTPClient: httpClient, TokenSource: tokenSource, Logger: logger}, nil
}

func resolveTimeouts(cfg *config.Config) (time.Duration, time.Duration, error) {
	connect, err := time.ParseDuration(cfg.Network.ConnectTimeout)
	if err != nil {
		return 0, 0, fmt.Errorf("connect_timeout: %w", err)
	}

	read, err := time.ParseDuration(cfg.Network.ReadTimeout)
	if err != nil {
		return 0, 0, fmt.Errorf("read_timeout: %w", err)
	}

	if flagConnectTimeout > 0 {
		connect = flagConnectTimeout
	}

	if flagReadTimeout > 0 {
		read = flagReadTimeout
	}

	return connect, read, nil
}

// classifyRunErr maps a Run outcome onto the documented exit codes by
// returning an error carrying the right code, recognized by exitOnError.
func classifyRunErr(result executor.Result, runErr error) error {
	if runErr != nil {
		if errors.Is(runErr, entry.ErrOrderingViolation) || errors.Is(runErr, entry.ErrCancelled) {
			return codedError{code: exitAborted, err: runErr}
		}

		if errors.Is(runErr, entry.ErrConfig) {
			return codedError{code: exitConfigError, err: runErr}
		}

		if errors.Is(runErr, entry.ErrAuth) {
			return codedError{code: exitAuthError, err: runErr}
		}

		return codedError{code: exitAborted, err: runErr}
	}

	if result.Failed > 0 {
		return codedError{code: exitPartial, err: fmt.Errorf("%d action(s) failed", result.Failed)}
	}

	return nil
}

type codedError struct {
	code int
	err  error
}

func (c codedError) Error() string { return c.err.Error() }
func (c codedError) Unwrap() error { return c.err }

func exitOnError(err error) {
	var ce codedError

	// Errors that do not come from a run (flag and argument parsing, config
	// resolution) are configuration/usage errors.
	code := exitConfigError

	if errors.As(err, &ce) {
		code = ce.code
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(code)
}

func exitf(code int, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(code)
}

// buildLogger builds an slog.Logger: text on a terminal, JSON otherwise,
// unless the config or --verbose override the level or --json forces a
// machine-readable stream that shouldn't interleave with log lines.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelWarn

	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	format := cfg.Logging.Format
	if format == "auto" {
		if isatty.IsTerminal(os.Stderr.Fd()) {
			format = "text"
		} else {
			format = "json"
		}
	}

	if flagJSON {
		format = "json"
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
