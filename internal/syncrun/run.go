// Package syncrun wires the Entry Source, Entry Sink, Equality Predicate,
// Diff Engine, and Executor into the single end-to-end sync() operation:
// resolve both endpoints, stream both sides in key order, diff, and drive
// the resulting actions.
package syncrun

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cboudereau/gcs-rsync/internal/diffengine"
	"github.com/cboudereau/gcs-rsync/internal/entry"
	"github.com/cboudereau/gcs-rsync/internal/executor"
	"github.com/cboudereau/gcs-rsync/internal/globfilter"
	"github.com/cboudereau/gcs-rsync/internal/objectclient"
	"github.com/cboudereau/gcs-rsync/internal/sink"
	"github.com/cboudereau/gcs-rsync/internal/source"
)

// gcsScheme is the URI scheme identifying a GCS endpoint, as in gs://bucket/prefix.
const gcsScheme = "gs://"

// Endpoint is one side of a run: either a local directory or a GCS bucket/prefix.
type Endpoint struct {
	IsGCS  bool
	Path   string // absolute local directory, when !IsGCS
	Bucket string // bucket name, when IsGCS
	Prefix string // object name prefix, always "" or ending in "/", when IsGCS
}

// ParseEndpoint interprets raw as gs://bucket[/prefix] or a plain local path.
func ParseEndpoint(raw string) (Endpoint, error) {
	if !strings.HasPrefix(raw, gcsScheme) {
		return Endpoint{Path: raw}, nil
	}

	rest := strings.TrimPrefix(raw, gcsScheme)
	if rest == "" {
		return Endpoint{}, fmt.Errorf("%w: %q: missing bucket name", entry.ErrConfig, raw)
	}

	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Endpoint{}, fmt.Errorf("%w: %q: missing bucket name", entry.ErrConfig, raw)
	}

	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return Endpoint{IsGCS: true, Bucket: bucket, Prefix: prefix}, nil
}

// Deps are the constructed clients a Run needs for whichever side(s) of the
// pair are GCS endpoints. A local-to-local or all-GCS run only needs the
// fields it actually uses.
type Deps struct {
	HTTPClient  *http.Client
	TokenSource objectclient.TokenSource
	Logger      *slog.Logger
}

// Run executes one sync() call: source -> destination, per cfg.
func Run(ctx context.Context, srcRaw, dstRaw string, cfg entry.RunConfig, deps Deps) (executor.Result, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	srcEp, err := ParseEndpoint(srcRaw)
	if err != nil {
		return executor.Result{}, err
	}

	dstEp, err := ParseEndpoint(dstRaw)
	if err != nil {
		return executor.Result{}, err
	}

	filter, err := globfilter.New(cfg.Includes, cfg.Excludes)
	if err != nil {
		return executor.Result{}, err
	}

	delimiter := "/"
	if cfg.Recursive {
		delimiter = ""
	}

	srcSeq, err := entrySequence(srcEp, deps, filter, delimiter)
	if err != nil {
		return executor.Result{}, fmt.Errorf("%w: resolving source: %w", entry.ErrConfig, err)
	}

	// The destination side is never filtered: a key excluded from
	// enumeration on the source must still be visible on the destination,
	// or mirror mode would never notice (and delete) it.
	dstSeq, err := entrySequence(dstEp, deps, nil, delimiter)
	if err != nil {
		return executor.Result{}, fmt.Errorf("%w: resolving destination: %w", entry.ErrConfig, err)
	}

	dstSink, err := buildSink(dstEp, cfg, deps)
	if err != nil {
		return executor.Result{}, fmt.Errorf("%w: resolving destination: %w", entry.ErrConfig, err)
	}

	actions := diffengine.Diff(ctx, srcSeq, dstSeq, cfg.Mirror)

	var diffErr error
	exec := executor.New(dstSink, cfg, deps.Logger)

	result, err := exec.Run(ctx, actionsOnly(actions, &diffErr))
	if err != nil {
		return result, err
	}

	if diffErr != nil {
		return result, diffErr
	}

	return result, nil
}

// entrySequence builds the ordered EntryDescriptor stream for one endpoint,
// adapted from the source package's Result shape to diffengine.Item.
func entrySequence(ep Endpoint, deps Deps, filter *globfilter.Filter, delimiter string) (iter.Seq[diffengine.Item], error) {
	if ep.IsGCS {
		client := objectclient.NewClient(ep.Bucket, deps.HTTPClient, deps.TokenSource, deps.Logger)
		return asItems(source.GCS(client, ep.Prefix, delimiter, filter)), nil
	}

	items := asItems(source.Local(ep.Path, filter))
	if delimiter == "" {
		return items, nil
	}

	// Non-recursive: keep only entries directly under the root, as a
	// "/"-delimited GCS listing does.
	return func(yield func(diffengine.Item) bool) {
		for it := range items {
			if it.Err == nil && strings.Contains(string(it.Entry.Key), "/") {
				continue
			}

			if !yield(it) {
				return
			}
		}
	}, nil
}

func buildSink(ep Endpoint, cfg entry.RunConfig, deps Deps) (executor.Sink, error) {
	if ep.IsGCS {
		client := objectclient.NewClient(ep.Bucket, deps.HTTPClient, deps.TokenSource, deps.Logger)
		return &sink.GCS{
			Client:               client,
			Prefix:               ep.Prefix,
			RestoreMTime:         cfg.RestoreMTime,
			UploadChunkThreshold: cfg.UploadChunkThreshold,
		}, nil
	}

	return &sink.Local{Root: ep.Path, RestoreMTime: cfg.RestoreMTime}, nil
}

// asItems adapts a source.Result sequence to diffengine.Item. The two types
// are structurally identical by design — both sides anchor on
// entry.EntryDescriptor — but remain distinct types since the source
// package must not depend on the diffengine package.
func asItems(results iter.Seq[source.Result]) iter.Seq[diffengine.Item] {
	return func(yield func(diffengine.Item) bool) {
		for r := range results {
			if !yield(diffengine.Item{Entry: r.Entry, Err: r.Err}) {
				return
			}
		}
	}
}

// actionsOnly drops the error channel from a diffengine.ActionOrErr stream
// into a plain SyncAction stream for the executor. A diff-level error
// (ordering violation, listing failure, promotion I/O failure) ends the
// stream and is written to *diffErr for the caller to surface once the
// executor has drained in-flight work.
func actionsOnly(actions iter.Seq[diffengine.ActionOrErr], diffErr *error) iter.Seq[entry.SyncAction] {
	return func(yield func(entry.SyncAction) bool) {
		for a := range actions {
			if a.Err != nil {
				*diffErr = a.Err
				return
			}

			if !yield(a.Action) {
				return
			}
		}
	}
}
