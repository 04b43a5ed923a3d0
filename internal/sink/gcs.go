package sink

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cboudereau/gcs-rsync/internal/entry"
	"github.com/cboudereau/gcs-rsync/internal/objectclient"
	"github.com/cboudereau/gcs-rsync/internal/source"
)

func asObjectError(err error, target **objectclient.ObjectError) bool {
	return errors.As(err, target)
}

// GCS is the GCS Entry Sink: simple (multipart, single request) upload for
// small objects, resumable (initiate + single content PUT) for large ones.
type GCS struct {
	Client               *objectclient.Client
	Prefix               string
	RestoreMTime         bool
	UploadChunkThreshold int64 // defaults to 8 MiB when zero
}

const defaultUploadChunkThreshold = 8 * 1024 * 1024

func (s *GCS) threshold() int64 {
	if s.UploadChunkThreshold > 0 {
		return s.UploadChunkThreshold
	}

	return defaultUploadChunkThreshold
}

// Put uploads byteStream to the object named Prefix+key.
func (s *GCS) Put(ctx context.Context, key string, src *entry.EntryDescriptor, byteStream io.Reader) (entry.EntryDescriptor, error) {
	name := s.Prefix + key

	mtime := src.MTime
	size := int64(src.Size)

	var obj *objectclient.Object
	var err error

	if size >= 0 && size < s.threshold() {
		obj, err = s.Client.SimpleUpload(ctx, name, byteStream, size, mtime, s.RestoreMTime)
	} else {
		obj, err = s.Client.ResumableUpload(ctx, name, byteStream, size, mtime, s.RestoreMTime)
	}

	if err != nil {
		return entry.EntryDescriptor{}, fmt.Errorf("%w: uploading %s: %w", entry.ErrTransport, name, err)
	}

	return s.descriptorFromObject(key, obj)
}

// Delete removes the object named Prefix+key. An object already absent is
// not an error, matching the local sink's absent-is-success semantics.
func (s *GCS) Delete(ctx context.Context, key string) error {
	name := s.Prefix + key

	if err := s.Client.Delete(ctx, name); err != nil {
		if isNotFound(err) {
			return nil
		}

		return fmt.Errorf("%w: deleting %s: %w", entry.ErrTransport, name, err)
	}

	return nil
}

// Lookup fetches a single object's metadata. Reserved; no current caller
// uses it — whole-side enumeration via the Entry Source covers all paths.
func (s *GCS) Lookup(ctx context.Context, key string) (*entry.EntryDescriptor, error) {
	name := s.Prefix + key

	obj, err := s.Client.GetMetadata(ctx, name)
	if err != nil {
		if isNotFound(err) {
			return nil, nil //nolint:nilnil // sentinel for "not found"
		}

		return nil, fmt.Errorf("%w: fetching %s: %w", entry.ErrTransport, name, err)
	}

	desc, err := s.descriptorFromObject(key, obj)
	if err != nil {
		return nil, err
	}

	return &desc, nil
}

func isNotFound(err error) bool {
	var objErr *objectclient.ObjectError
	return asObjectError(err, &objErr) && objErr.StatusCode == 404
}

func (s *GCS) descriptorFromObject(key string, obj *objectclient.Object) (entry.EntryDescriptor, error) {
	rk, err := entry.NewRelativeKey(key)
	if err != nil {
		return entry.EntryDescriptor{}, err
	}

	size, err := obj.SizeBytes()
	if err != nil {
		return entry.EntryDescriptor{}, fmt.Errorf("%w: %w", entry.ErrProtocol, err)
	}

	desc := entry.EntryDescriptor{
		Key:    rk,
		Size:   size,
		Handle: source.NewGCSHandle(s.Client, obj.Name),
	}

	if obj.CRC32C != "" {
		crc, crcErr := obj.CRC32CValue()
		if crcErr == nil {
			desc.CRC32C = &crc
		}
	}

	return desc, nil
}
