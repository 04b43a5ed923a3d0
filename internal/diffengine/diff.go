// Package diffengine merges two ordered EntryDescriptor sequences into an
// ordered stream of SyncAction, in O(1) memory regardless of the total
// object count.
package diffengine

import (
	"context"
	"fmt"
	"iter"

	"github.com/cboudereau/gcs-rsync/internal/entry"
	"github.com/cboudereau/gcs-rsync/internal/equality"
)

// Item is one element of an ordered entry sequence fed to Diff.
type Item struct {
	Entry entry.EntryDescriptor
	Err   error
}

// Diff merges source and destination, in ascending key order, into a stream
// of SyncAction. mirror enables Delete actions for destination-only keys.
// If either side emits a key that does not strictly exceed the previously
// emitted key from that side, Diff yields a single final item wrapping
// entry.ErrOrderingViolation and stops.
func Diff(ctx context.Context, src, dst iter.Seq[Item], mirror bool) iter.Seq[ActionOrErr] {
	return func(yield func(ActionOrErr) bool) {
		srcNext, srcStop := iter.Pull(src)
		defer srcStop()

		dstNext, dstStop := iter.Pull(dst)
		defer dstStop()

		s, sOK := srcNext()
		d, dOK := dstNext()

		var lastSrcKey, lastDstKey entry.RelativeKey
		haveLastSrc, haveLastDst := false, false

		for sOK || dOK {
			if ctx.Err() != nil {
				yield(ActionOrErr{Err: fmt.Errorf("%w: %w", entry.ErrCancelled, ctx.Err())})
				return
			}

			if sOK && s.Err != nil {
				yield(ActionOrErr{Err: s.Err})
				return
			}

			if dOK && d.Err != nil {
				yield(ActionOrErr{Err: d.Err})
				return
			}

			switch {
			case sOK && (!dOK || s.Entry.Key < d.Entry.Key):
				if haveLastSrc && s.Entry.Key <= lastSrcKey {
					yield(ActionOrErr{Err: entry.ErrOrderingViolation})
					return
				}

				lastSrcKey, haveLastSrc = s.Entry.Key, true

				if !yield(ActionOrErr{Action: entry.SyncAction{Kind: entry.ActionUpsert, Key: s.Entry.Key, Src: &s.Entry}}) {
					return
				}

				s, sOK = srcNext()

			case dOK && (!sOK || d.Entry.Key < s.Entry.Key):
				if haveLastDst && d.Entry.Key <= lastDstKey {
					yield(ActionOrErr{Err: entry.ErrOrderingViolation})
					return
				}

				lastDstKey, haveLastDst = d.Entry.Key, true

				if mirror {
					if !yield(ActionOrErr{Action: entry.SyncAction{Kind: entry.ActionDelete, Key: d.Entry.Key}}) {
						return
					}
				}

				d, dOK = dstNext()

			default:
				if haveLastSrc && s.Entry.Key <= lastSrcKey {
					yield(ActionOrErr{Err: entry.ErrOrderingViolation})
					return
				}

				if haveLastDst && d.Entry.Key <= lastDstKey {
					yield(ActionOrErr{Err: entry.ErrOrderingViolation})
					return
				}

				lastSrcKey, haveLastSrc = s.Entry.Key, true
				lastDstKey, haveLastDst = d.Entry.Key, true

				verdict, reason, err := equality.Compare(ctx, &s.Entry, &d.Entry)
				if err != nil {
					yield(ActionOrErr{Err: err})
					return
				}

				var action entry.SyncAction
				if verdict == equality.Equal {
					action = entry.SyncAction{Kind: entry.ActionSkip, Key: s.Entry.Key, SkipReason: reason}
				} else {
					action = entry.SyncAction{Kind: entry.ActionUpsert, Key: s.Entry.Key, Src: &s.Entry}
				}

				if !yield(ActionOrErr{Action: action}) {
					return
				}

				s, sOK = srcNext()
				d, dOK = dstNext()
			}
		}
	}
}

// ActionOrErr pairs a SyncAction with any error terminating the diff early.
type ActionOrErr struct {
	Action entry.SyncAction
	Err    error
}
