package sink_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cboudereau/gcs-rsync/internal/entry"
	"github.com/cboudereau/gcs-rsync/internal/sink"
)

func TestLocalPutWritesAtomicallyAndRestoresMTime(t *testing.T) {
	root := t.TempDir()
	s := &sink.Local{Root: root, RestoreMTime: true}

	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	rk, _ := entry.NewRelativeKey("dir/a.txt")
	src := &entry.EntryDescriptor{Key: rk, Size: 5, MTime: mtime}

	desc, err := s.Put(context.Background(), "dir/a.txt", src, strings.NewReader("hello"))
	require.NoError(t, err)
	require.Equal(t, uint64(5), desc.Size)
	require.NotNil(t, desc.CRC32C)

	finalPath := filepath.Join(root, "dir", "a.txt")
	data, err := os.ReadFile(finalPath)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	info, err := os.Stat(finalPath)
	require.NoError(t, err)
	require.WithinDuration(t, mtime, info.ModTime(), time.Second)

	entries, err := os.ReadDir(filepath.Join(root, "dir"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no leftover temp file")
}

func TestLocalDeleteAbsentIsSuccess(t *testing.T) {
	s := &sink.Local{Root: t.TempDir()}
	require.NoError(t, s.Delete(context.Background(), "missing.txt"))
}

func TestLocalLookupMissingReturnsNil(t *testing.T) {
	s := &sink.Local{Root: t.TempDir()}
	desc, err := s.Lookup(context.Background(), "missing.txt")
	require.NoError(t, err)
	require.Nil(t, desc)
}
