// Package equality implements the Equality Predicate: given a source and
// destination descriptor for the same relative key, decide whether they are
// equivalent, promoting to a streaming CRC32C compute when that decision
// would otherwise be ambiguous.
package equality

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cboudereau/gcs-rsync/internal/entry"
	"github.com/cboudereau/gcs-rsync/pkg/crc32c"
)

// Tolerance is the mtime comparison window: sub-second mtime is not portable
// across all filesystems, and GCS custom metadata preserves only whole
// seconds.
const Tolerance = 1 * time.Second

// Verdict is the predicate's result.
type Verdict int

const (
	NotEqual Verdict = iota
	Equal
)

// Compare decides whether src and dst are equivalent, per §4.D:
//  1. size mismatch -> NotEqual.
//  2. both crc32c present -> authoritative compare, no fallback.
//  3. neither present -> size + mtime-with-tolerance compare.
//  4. exactly one side has crc32c -> promote by streaming the missing one,
//     but only when step 3's fast path disagrees.
//
// Promotion reads src's byte stream via ctx, so Compare may perform I/O.
func Compare(ctx context.Context, src, dst *entry.EntryDescriptor) (Verdict, entry.SkipReason, error) {
	if src.Size != dst.Size {
		return NotEqual, entry.SkipReasonNone, nil
	}

	if src.CRC32C != nil && dst.CRC32C != nil {
		if *src.CRC32C == *dst.CRC32C {
			return Equal, entry.SkipReasonCRC32CMatch, nil
		}

		return NotEqual, entry.SkipReasonNone, nil
	}

	if src.CRC32C == nil && dst.CRC32C == nil {
		if sizeMTimeMatch(src, dst) {
			return Equal, entry.SkipReasonSizeMTimeMatch, nil
		}

		return NotEqual, entry.SkipReasonNone, nil
	}

	// Exactly one side has crc32c. Fast path first; promote only on disagreement.
	if sizeMTimeMatch(src, dst) {
		return Equal, entry.SkipReasonSizeMTimeMatch, nil
	}

	promoted, err := promote(ctx, src, dst)
	if err != nil {
		return NotEqual, entry.SkipReasonNone, err
	}

	if promoted {
		return Equal, entry.SkipReasonCRC32CMatch, nil
	}

	return NotEqual, entry.SkipReasonNone, nil
}

// sizeMTimeMatch requires equal size (already checked by the caller) and
// src.mtime <= dst.mtime + Tolerance — "src not newer than dst" — so a
// freshly-uploaded destination whose mtime was restored from src is not
// later re-uploaded.
func sizeMTimeMatch(src, dst *entry.EntryDescriptor) bool {
	return !src.MTime.After(dst.MTime.Add(Tolerance))
}

// promote computes whichever side's crc32c is missing by streaming its
// content, then compares. Whichever descriptor already has a crc32c is
// trusted without re-reading it.
func promote(ctx context.Context, src, dst *entry.EntryDescriptor) (bool, error) {
	if src.CRC32C != nil {
		dstSum, err := computeCRC32C(ctx, dst)
		if err != nil {
			return false, err
		}

		return *src.CRC32C == dstSum, nil
	}

	srcSum, err := computeCRC32C(ctx, src)
	if err != nil {
		return false, err
	}

	return srcSum == *dst.CRC32C, nil
}

func computeCRC32C(ctx context.Context, desc *entry.EntryDescriptor) (uint32, error) {
	rc, err := desc.Handle.Open(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: opening %s for crc32c promotion: %w", entry.ErrLocalIO, desc.Key, err)
	}
	defer rc.Close()

	h := crc32c.New()
	if _, err := io.Copy(h, rc); err != nil {
		return 0, fmt.Errorf("%w: reading %s for crc32c promotion: %w", entry.ErrLocalIO, desc.Key, err)
	}

	return h.Sum32(), nil
}
