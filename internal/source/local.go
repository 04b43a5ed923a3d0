// Package source implements the Entry Source contract (stream a lazy,
// ordered sequence of EntryDescriptor from a root) for both the local
// filesystem and GCS variants.
package source

import (
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/cboudereau/gcs-rsync/internal/entry"
	"github.com/cboudereau/gcs-rsync/internal/globfilter"
)

// Result pairs an EntryDescriptor with any error encountered producing it.
// Errors are yielded in-line rather than absorbed, per the Entry Source
// contract — the Diff Engine decides whether to abort or continue.
type Result struct {
	Entry entry.EntryDescriptor
	Err   error
}

// LocalHandle is the local variant's opaque source handle: an absolute
// filesystem path.
type LocalHandle struct {
	AbsPath string
}

// Open opens the file for streaming read.
func (h *LocalHandle) Open(ctx context.Context) (io.ReadCloser, error) {
	f, err := os.Open(h.AbsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", entry.ErrLocalIO, h.AbsPath, err)
	}

	return f, nil
}

// Local streams a directory tree rooted at absRoot in ascending key order:
// each directory's children are sorted with a subdirectory's name taken as
// name + "/" (the prefix it gives its descendants' keys), and a subdirectory
// is walked before moving to the next sibling, so "sub-a.txt" and "sub.txt"
// come before "sub/x.txt" as byte order requires. Symlinks are followed to
// their targets (via os.Stat) but never themselves emitted as entries.
func Local(absRoot string, filter *globfilter.Filter) iter.Seq[Result] {
	return func(yield func(Result) bool) {
		walkLocal(context.Background(), absRoot, "", filter, yield)
	}
}

func walkLocal(ctx context.Context, absRoot, relDir string, filter *globfilter.Filter, yield func(Result) bool) bool {
	dirPath := absRoot
	if relDir != "" {
		dirPath = filepath.Join(absRoot, relDir)
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return yield(Result{Err: fmt.Errorf("%w: reading directory %s: %w", entry.ErrLocalIO, dirPath, err)})
	}

	sortName := func(de os.DirEntry) string {
		if de.IsDir() {
			return de.Name() + "/"
		}

		return de.Name()
	}

	sort.Slice(entries, func(i, j int) bool { return sortName(entries[i]) < sortName(entries[j]) })

	for _, de := range entries {
		if ctx.Err() != nil {
			return yield(Result{Err: fmt.Errorf("%w: %w", entry.ErrCancelled, ctx.Err())})
		}

		childRel := de.Name()
		if relDir != "" {
			childRel = relDir + "/" + de.Name()
		}

		fullPath := filepath.Join(absRoot, childRel)

		info, statErr := os.Stat(fullPath) // follows symlinks
		if statErr != nil {
			if !yield(Result{Err: fmt.Errorf("%w: stat %s: %w", entry.ErrLocalIO, fullPath, statErr)}) {
				return false
			}

			continue
		}

		if info.IsDir() {
			if !walkLocal(ctx, absRoot, childRel, filter, yield) {
				return false
			}

			continue
		}

		if !info.Mode().IsRegular() {
			continue
		}

		key := normalizeKey(childRel)

		if filter != nil && !filter.Match(string(key)) {
			continue
		}

		rk, err := entry.NewRelativeKey(string(key))
		if err != nil {
			if !yield(Result{Err: err}) {
				return false
			}

			continue
		}

		desc := entry.EntryDescriptor{
			Key:    rk,
			Size:   uint64(info.Size()),
			MTime:  info.ModTime(),
			Handle: &LocalHandle{AbsPath: fullPath},
		}

		if !yield(Result{Entry: desc}) {
			return false
		}
	}

	return true
}

// normalizeKey applies NFC normalization so sync keys are stable across
// filesystems that store decomposed Unicode forms (notably macOS HFS+/APFS,
// which store NFD), and converts native separators to "/".
func normalizeKey(relPath string) string {
	normalized := strings.ReplaceAll(relPath, string(filepath.Separator), "/")
	return norm.NFC.String(normalized)
}
