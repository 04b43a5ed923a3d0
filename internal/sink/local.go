// Package sink implements the Entry Sink contract (put/delete/lookup) for
// both the local filesystem and GCS variants.
package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cboudereau/gcs-rsync/internal/entry"
	"github.com/cboudereau/gcs-rsync/internal/source"
	"github.com/cboudereau/gcs-rsync/pkg/crc32c"
)

// filePerms and dirPerms match the permissions a sync destination tree gets
// by default — owner read/write, directories additionally executable.
const (
	filePerms = 0o600
	dirPerms  = 0o700
)

// Local is the local-filesystem Entry Sink: atomic temp-file-then-rename
// writes, mtime restoration, and streaming CRC32C computed during write.
type Local struct {
	Root         string
	RestoreMTime bool
}

// Put writes byteStream to key under the sink's root. The write goes to a
// temp path in the same directory as the final path, then renames —
// atomicity guarantees a reader never observes a partially-written file.
func (s *Local) Put(ctx context.Context, key string, src *entry.EntryDescriptor, byteStream io.Reader) (entry.EntryDescriptor, error) {
	finalPath := filepath.Join(s.Root, filepath.FromSlash(key))
	dir := filepath.Dir(finalPath)

	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return entry.EntryDescriptor{}, fmt.Errorf("%w: creating directory %s: %w", entry.ErrLocalIO, dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".gcs-rsync-*.tmp")
	if err != nil {
		return entry.EntryDescriptor{}, fmt.Errorf("%w: creating temp file: %w", entry.ErrLocalIO, err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, filePerms); err != nil {
		tmp.Close()
		return entry.EntryDescriptor{}, fmt.Errorf("%w: setting permissions: %w", entry.ErrLocalIO, err)
	}

	hasher := crc32c.New()
	size, err := io.Copy(tmp, io.TeeReader(byteStream, hasher))
	if err != nil {
		tmp.Close()
		return entry.EntryDescriptor{}, fmt.Errorf("%w: writing %s: %w", entry.ErrLocalIO, finalPath, err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return entry.EntryDescriptor{}, fmt.Errorf("%w: syncing %s: %w", entry.ErrLocalIO, finalPath, err)
	}

	if err := tmp.Close(); err != nil {
		return entry.EntryDescriptor{}, fmt.Errorf("%w: closing %s: %w", entry.ErrLocalIO, finalPath, err)
	}

	mtime := time.Now()
	if s.RestoreMTime && src != nil && !src.MTime.IsZero() {
		mtime = src.MTime
	}

	if err := os.Chtimes(tmpPath, mtime, mtime); err != nil {
		return entry.EntryDescriptor{}, fmt.Errorf("%w: setting mtime on %s: %w", entry.ErrLocalIO, finalPath, err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return entry.EntryDescriptor{}, fmt.Errorf("%w: renaming into place %s: %w", entry.ErrLocalIO, finalPath, err)
	}

	success = true

	rk, err := entry.NewRelativeKey(key)
	if err != nil {
		return entry.EntryDescriptor{}, err
	}

	sum := hasher.Sum32()

	return entry.EntryDescriptor{
		Key:    rk,
		Size:   uint64(size),
		MTime:  mtime,
		CRC32C: &sum,
		Handle: &source.LocalHandle{AbsPath: finalPath},
	}, nil
}

// Delete removes the file at key. Deleting an already-absent file is not an
// error — the desired end state (absent) already holds.
func (s *Local) Delete(ctx context.Context, key string) error {
	path := filepath.Join(s.Root, filepath.FromSlash(key))

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: deleting %s: %w", entry.ErrLocalIO, path, err)
	}

	return nil
}

// Lookup stats a single file. Reserved for code paths that choose per-item
// lookup over whole-side enumeration; no current caller uses it.
func (s *Local) Lookup(ctx context.Context, key string) (*entry.EntryDescriptor, error) {
	path := filepath.Join(s.Root, filepath.FromSlash(key))

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", entry.ErrLocalIO, path, err)
	}

	rk, err := entry.NewRelativeKey(key)
	if err != nil {
		return nil, err
	}

	return &entry.EntryDescriptor{
		Key:    rk,
		Size:   uint64(info.Size()),
		MTime:  info.ModTime(),
		Handle: &source.LocalHandle{AbsPath: path},
	}, nil
}
