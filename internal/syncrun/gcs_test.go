package syncrun_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cboudereau/gcs-rsync/internal/entry"
	"github.com/cboudereau/gcs-rsync/internal/objectclient"
	"github.com/cboudereau/gcs-rsync/internal/syncrun"
)

func withEmulator(t *testing.T, fake *fakeGCSServer) {
	t.Helper()
	t.Setenv(objectclient.EnvEmulatorHost, fake.URL())
}

// TestRunLocalToGCSUploadsNewFiles is scenario S1: a local directory synced
// one-way to an empty gs:// bucket prefix uploads every file.
func TestRunLocalToGCSUploadsNewFiles(t *testing.T) {
	fake := newFakeGCSServer()
	defer fake.Close()
	withEmulator(t, fake)

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "hello")

	cfg := entry.RunConfig{MaxConcurrency: 2, RestoreMTime: true}
	deps := syncrun.Deps{TokenSource: objectclient.NoAuth()}

	result, err := syncrun.Run(context.Background(), src, "gs://bucket/prefix/", cfg, deps)
	require.NoError(t, err)
	require.Equal(t, 1, result.Upserted)
	require.Equal(t, 0, result.Failed)

	fake.mu.Lock()
	content, ok := fake.objects["prefix/a.txt"]
	fake.mu.Unlock()

	require.True(t, ok)
	require.Equal(t, "hello", string(content))
}

// TestRunGCSToLocalDownloadsExistingObjects checks that objects already
// present in the gs:// source sync down to an empty local destination.
func TestRunGCSToLocalDownloadsExistingObjects(t *testing.T) {
	fake := newFakeGCSServer()
	defer fake.Close()
	withEmulator(t, fake)
	fake.seed("prefix/b.txt", []byte("world"))

	dst := t.TempDir()

	cfg := entry.RunConfig{MaxConcurrency: 2, RestoreMTime: true}
	deps := syncrun.Deps{TokenSource: objectclient.NoAuth()}

	result, err := syncrun.Run(context.Background(), "gs://bucket/prefix/", dst, cfg, deps)
	require.NoError(t, err)
	require.Equal(t, 1, result.Upserted)

	data, err := os.ReadFile(filepath.Join(dst, "b.txt"))
	require.NoError(t, err)
	require.Equal(t, "world", string(data))
}

// TestRunMirrorDeletesExtraGCSObjects is scenario S4: mirror mode deletes a
// destination object whose key no longer exists on the source side.
func TestRunMirrorDeletesExtraGCSObjects(t *testing.T) {
	fake := newFakeGCSServer()
	defer fake.Close()
	withEmulator(t, fake)
	fake.seed("prefix/stale.txt", []byte("stale"))

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "keep.txt"), "keep")

	cfg := entry.RunConfig{MaxConcurrency: 2, Mirror: true, RestoreMTime: true}
	deps := syncrun.Deps{TokenSource: objectclient.NoAuth()}

	result, err := syncrun.Run(context.Background(), src, "gs://bucket/prefix/", cfg, deps)
	require.NoError(t, err)
	require.Equal(t, 1, result.Upserted)
	require.Equal(t, 1, result.Deleted)

	fake.mu.Lock()
	_, ok := fake.objects["prefix/stale.txt"]
	fake.mu.Unlock()
	require.False(t, ok)
}

// TestRunSucceedsAfterTransientListFailure is scenario S6: a full sync
// completes successfully even when the destination listing call returns a
// transient 503 before succeeding, exercising the Object Client's retry
// policy from inside a full syncrun.Run orchestration rather than in
// isolation.
func TestRunSucceedsAfterTransientListFailure(t *testing.T) {
	fake := newFakeGCSServer()
	defer fake.Close()
	withEmulator(t, fake)
	fake.failNextLists(2)

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "hello")

	cfg := entry.RunConfig{MaxConcurrency: 2, RestoreMTime: true}
	deps := syncrun.Deps{TokenSource: objectclient.NoAuth()}

	result, err := syncrun.Run(context.Background(), src, "gs://bucket/prefix/", cfg, deps)
	require.NoError(t, err)
	require.Equal(t, 1, result.Upserted)
	require.Equal(t, 0, result.Failed)
}
