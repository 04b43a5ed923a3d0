// Package entry defines the shared data model that lets the sync engine
// treat a local directory and a GCS bucket prefix uniformly: RelativeKey,
// EntryDescriptor, SyncAction, and RunConfig.
package entry

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// RelativeKey is a POSIX-style, forward-slash-separated path relative to a
// sync root. It is the stable identity of an entry across the source and
// destination sides of a run.
type RelativeKey string

// NewRelativeKey normalizes raw into a RelativeKey: native separators become
// "/", a leading slash is stripped, and empty path components are rejected.
func NewRelativeKey(raw string) (RelativeKey, error) {
	normalized := strings.ReplaceAll(raw, "\\", "/")
	normalized = strings.TrimPrefix(normalized, "/")

	if normalized == "" {
		return "", fmt.Errorf("%w: empty key", ErrConfig)
	}

	for _, part := range strings.Split(normalized, "/") {
		if part == "" {
			return "", fmt.Errorf("%w: empty path component in %q", ErrConfig, raw)
		}
	}

	return RelativeKey(normalized), nil
}

// String returns the key's underlying string form.
func (k RelativeKey) String() string { return string(k) }

// NativePath restores the key to the host's native path separator, joined
// under root.
func (k RelativeKey) NativePath(root string, sep string) string {
	parts := strings.Split(string(k), "/")
	return root + sep + strings.Join(parts, sep)
}

// SourceHandle is a side-specific, opaque means of opening an entry's byte
// stream. Local and GCS entry sources each implement their own concrete
// type; the diff engine never inspects it, the executor only calls Open.
type SourceHandle interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// MTimeRefresher is an optional capability a SourceHandle may implement when
// its Entry Source's listing omits precise mtime metadata (e.g. the GCS
// variant's minimal field mask). The executor checks for this via a type
// assertion before an Upsert that restores mtime, and if present, uses the
// refreshed value in place of the descriptor's listing-derived MTime.
type MTimeRefresher interface {
	RefreshMTime(ctx context.Context) (mtime time.Time, ok bool, err error)
}

// EntryDescriptor is the observable state of one file or GCS object.
type EntryDescriptor struct {
	Key    RelativeKey
	Size   uint64
	MTime  time.Time
	CRC32C *uint32 // nil when not cheaply available
	Handle SourceHandle
}

// ActionKind tags a SyncAction.
type ActionKind int

const (
	// ActionUpsert copies bytes from source to destination.
	ActionUpsert ActionKind = iota
	// ActionDelete removes a destination entry absent from the source (mirror mode only).
	ActionDelete
	// ActionSkip records that the predicate found source and destination equivalent.
	ActionSkip
)

func (k ActionKind) String() string {
	switch k {
	case ActionUpsert:
		return "upsert"
	case ActionDelete:
		return "delete"
	case ActionSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// SkipReason explains why the predicate judged two descriptors equivalent.
type SkipReason int

const (
	SkipReasonNone SkipReason = iota
	SkipReasonSizeMTimeMatch
	SkipReasonCRC32CMatch
)

func (r SkipReason) String() string {
	switch r {
	case SkipReasonSizeMTimeMatch:
		return "size_mtime_match"
	case SkipReasonCRC32CMatch:
		return "crc32c_match"
	default:
		return ""
	}
}

// SyncAction is the tagged output of the Diff Engine.
type SyncAction struct {
	Kind ActionKind
	Key  RelativeKey

	// Src is populated for ActionUpsert.
	Src *EntryDescriptor

	// SkipReason is populated for ActionSkip.
	SkipReason SkipReason
}

// Direction indicates which side of a run is the source.
type Direction int

const (
	LocalToRemote Direction = iota
	RemoteToLocal
)

func (d Direction) String() string {
	if d == LocalToRemote {
		return "local-to-remote"
	}
	return "remote-to-local"
}

// RunConfig is the immutable configuration of a single sync() call.
type RunConfig struct {
	Direction      Direction
	Mirror         bool
	RestoreMTime   bool
	Includes       []string
	Excludes       []string
	MaxConcurrency int
	Recursive      bool
	FailFast       bool
	DryRun         bool

	// UploadChunkThreshold is the GCS sink's simple-vs-resumable upload
	// size split, in bytes.
	UploadChunkThreshold int64

	// TransferBufferSize carries the configured per-transfer buffer size.
	// Neither the executor nor the sinks read it; their copies use io.Copy's
	// own buffer.
	TransferBufferSize int
}
