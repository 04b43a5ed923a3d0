package main

import (
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cboudereau/gcs-rsync/internal/executor"
)

// captureStderr redirects os.Stderr for the duration of fn and returns
// everything written to it.
func captureStderr(t *testing.T, fn func()) string {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err)

	orig := os.Stderr
	os.Stderr = w

	fn()

	require.NoError(t, w.Close())
	os.Stderr = orig

	out, err := io.ReadAll(r)
	require.NoError(t, err)

	return string(out)
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err)

	orig := os.Stdout
	os.Stdout = w

	fn()

	require.NoError(t, w.Close())
	os.Stdout = orig

	out, err := io.ReadAll(r)
	require.NoError(t, err)

	return string(out)
}

func TestPrintTextSummaryAlreadyInSync(t *testing.T) {
	out := captureStderr(t, func() {
		printTextSummary(executor.Result{}, 5*time.Millisecond)
	})

	require.Contains(t, out, "Already in sync")
}

func TestPrintTextSummaryReportsCounts(t *testing.T) {
	result := executor.Result{Upserted: 2, Deleted: 1, Skipped: 3, Failed: 1, BytesTransferred: 2048}

	out := captureStderr(t, func() {
		printTextSummary(result, 10*time.Millisecond)
	})

	require.True(t, strings.Contains(out, "Upserted: 2"))
	require.True(t, strings.Contains(out, "Deleted:  1"))
	require.True(t, strings.Contains(out, "Skipped:  3"))
	require.True(t, strings.Contains(out, "Failed:   1"))
	require.True(t, strings.Contains(out, "2.0 kB") || strings.Contains(out, "2.0KB") || strings.Contains(out, "KB"))
}

func TestPrintJSONSummaryIncludesError(t *testing.T) {
	result := executor.Result{Upserted: 1}

	out := captureStdout(t, func() {
		printJSONSummary(result, 100*time.Millisecond, errSample)
	})

	require.Contains(t, out, `"upserted": 1`)
	require.Contains(t, out, `"error": "boom"`)
}

var errSample = sampleErr{}

type sampleErr struct{}

func (sampleErr) Error() string { return "boom" }
