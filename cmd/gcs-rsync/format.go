package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/cboudereau/gcs-rsync/internal/executor"
)

func printTextSummary(result executor.Result, elapsed time.Duration) {
	if result.Upserted == 0 && result.Deleted == 0 && result.Failed == 0 {
		fmt.Fprintf(os.Stderr, "Already in sync (%s).\n", elapsed.Round(time.Millisecond))
		return
	}

	fmt.Fprintf(os.Stderr, "Sync complete in %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "  Upserted: %d (%s)\n", result.Upserted, humanize.Bytes(result.BytesTransferred))
	fmt.Fprintf(os.Stderr, "  Deleted:  %d\n", result.Deleted)
	fmt.Fprintf(os.Stderr, "  Skipped:  %d\n", result.Skipped)

	if result.Failed > 0 {
		fmt.Fprintf(os.Stderr, "  Failed:   %d\n", result.Failed)
	}
}

// summaryJSON is the JSON output schema for the run summary.
type summaryJSON struct {
	DurationMs       int64  `json:"duration_ms"`
	Upserted         int    `json:"upserted"`
	Deleted          int    `json:"deleted"`
	Skipped          int    `json:"skipped"`
	Failed           int    `json:"failed"`
	BytesTransferred uint64 `json:"bytes_transferred"`
	Error            string `json:"error,omitempty"`
}

func printJSONSummary(result executor.Result, elapsed time.Duration, runErr error) {
	out := summaryJSON{
		DurationMs:       elapsed.Milliseconds(),
		Upserted:         result.Upserted,
		Deleted:          result.Deleted,
		Skipped:          result.Skipped,
		Failed:           result.Failed,
		BytesTransferred: result.BytesTransferred,
	}

	if runErr != nil {
		out.Error = runErr.Error()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
