package source

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strconv"
	"time"

	"github.com/cboudereau/gcs-rsync/internal/entry"
	"github.com/cboudereau/gcs-rsync/internal/globfilter"
	"github.com/cboudereau/gcs-rsync/internal/objectclient"
)

// GCSHandle is the GCS variant's opaque source handle: the object name, used
// to re-open a download stream.
type GCSHandle struct {
	client *objectclient.Client
	Name   string
}

// NewGCSHandle constructs a handle bound to client, for callers outside this
// package that need to build a descriptor around a GCS object (e.g. the GCS
// sink, reporting the post-write destination descriptor).
func NewGCSHandle(client *objectclient.Client, name string) *GCSHandle {
	return &GCSHandle{client: client, Name: name}
}

// Open streams the object's content.
func (h *GCSHandle) Open(ctx context.Context) (io.ReadCloser, error) {
	return h.client.Download(ctx, h.Name)
}

// RefreshMTime fetches the object's full metadata resource (the List call's
// minimal field mask omits the custom goog-reserved-file-mtime field) and
// decodes the source mtime it carries. Satisfies entry.MTimeRefresher.
func (h *GCSHandle) RefreshMTime(ctx context.Context) (time.Time, bool, error) {
	obj, err := h.client.GetMetadata(ctx, h.Name)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: refreshing mtime metadata: %w", entry.ErrTransport, err)
	}

	mtime, err := parseMTime(obj)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %w", entry.ErrProtocol, err)
	}

	_, hasCustom := obj.Metadata[objectclient.MTimeMetadataKey]

	return mtime, hasCustom, nil
}

// GCS streams objects under prefix from client in GCS's native lexicographic
// order, which the List operation already preserves. delimiter is "/" for
// non-recursive listing, "" for recursive.
func GCS(client *objectclient.Client, prefix, delimiter string, filter *globfilter.Filter) iter.Seq[Result] {
	return func(yield func(Result) bool) {
		ctx := context.Background()
		pageToken := ""

		for {
			objects, nextToken, err := client.ListPage(ctx, prefix, delimiter, pageToken)
			if err != nil {
				yield(Result{Err: fmt.Errorf("%w: listing objects: %w", entry.ErrTransport, err)})
				return
			}

			for _, obj := range objects {
				desc, err := toDescriptor(client, &obj, prefix)
				if err != nil {
					if !yield(Result{Err: err}) {
						return
					}

					continue
				}

				if filter != nil && !filter.Match(string(desc.Key)) {
					continue
				}

				if !yield(Result{Entry: desc}) {
					return
				}
			}

			if nextToken == "" {
				return
			}

			pageToken = nextToken
		}
	}
}

func toDescriptor(client *objectclient.Client, obj *objectclient.Object, prefix string) (entry.EntryDescriptor, error) {
	key := obj.Name
	if len(key) >= len(prefix) {
		key = key[len(prefix):]
	}

	rk, err := entry.NewRelativeKey(key)
	if err != nil {
		return entry.EntryDescriptor{}, err
	}

	size, err := obj.SizeBytes()
	if err != nil {
		return entry.EntryDescriptor{}, fmt.Errorf("%w: %w", entry.ErrProtocol, err)
	}

	mtime, err := parseMTime(obj)
	if err != nil {
		return entry.EntryDescriptor{}, fmt.Errorf("%w: %w", entry.ErrProtocol, err)
	}

	desc := entry.EntryDescriptor{
		Key:    rk,
		Size:   size,
		MTime:  mtime,
		Handle: &GCSHandle{client: client, Name: obj.Name},
	}

	if obj.CRC32C != "" {
		crc, err := obj.CRC32CValue()
		if err != nil {
			return entry.EntryDescriptor{}, fmt.Errorf("%w: decoding crc32c: %w", entry.ErrProtocol, err)
		}

		desc.CRC32C = &crc
	}

	return desc, nil
}

// parseMTime prefers the goog-reserved-file-mtime custom metadata (decimal
// seconds, set by this tool's own sink) and falls back to the object's
// server-assigned Updated timestamp.
func parseMTime(obj *objectclient.Object) (time.Time, error) {
	if obj.Metadata != nil {
		if raw, ok := obj.Metadata[objectclient.MTimeMetadataKey]; ok {
			seconds, err := strconv.ParseInt(raw, 10, 64)
			if err == nil {
				return time.Unix(seconds, 0).UTC(), nil
			}
		}
	}

	if obj.Updated == "" {
		return time.Time{}, nil
	}

	return time.Parse(time.RFC3339, obj.Updated)
}
