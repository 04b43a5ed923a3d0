// Package executor drives a SyncAction stream through a bounded concurrent
// worker pool: streaming bytes from source to sink, preserving mtime and
// checksum, and reporting per-item results. Grounded on a flat
// goroutine-pool-over-one-channel pattern, trimmed of any cross-action
// dependency tracking or persisted baseline — a stateless one-way sync has
// no ordering dependency between distinct keys.
package executor

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cboudereau/gcs-rsync/internal/entry"
)

// maxRecordedErrors caps the diagnostic error slice so a run with very many
// per-item failures does not grow the outcome vector unboundedly; the
// failed counter remains accurate regardless of this cap.
const maxRecordedErrors = 1000

// Sink is the subset of the Entry Sink contract the executor drives.
type Sink interface {
	Put(ctx context.Context, key string, src *entry.EntryDescriptor, byteStream io.Reader) (entry.EntryDescriptor, error)
	Delete(ctx context.Context, key string) error
}

// Outcome records one failed SyncAction (key, kind, and error). Successful
// actions are reflected only in Result's counters, never as an Outcome.
type Outcome struct {
	Action entry.ActionKind
	Key    entry.RelativeKey
	Err    error
}

// Result is the aggregate outcome of a run.
type Result struct {
	// Outcomes holds up to maxRecordedErrors failed actions for diagnostics.
	Outcomes []Outcome
	Skipped  int
	Upserted int
	Deleted  int
	Failed   int
	// BytesTransferred is the sum of Upsert sizes that completed successfully.
	BytesTransferred uint64
}

// Executor drives a bounded-concurrency worker pool over a SyncAction stream.
type Executor struct {
	sink   Sink
	cfg    entry.RunConfig
	logger *slog.Logger

	mu       sync.Mutex
	outcomes []Outcome
	dropped  int64

	upserted, skipped, deleted, failed atomic.Int64
	bytesTransferred                   atomic.Uint64
}

// New creates an Executor driving actions into sink.
func New(sink Sink, cfg entry.RunConfig, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}

	return &Executor{sink: sink, cfg: cfg, logger: logger}
}

// Run consumes actions until the sequence is exhausted, the context is
// canceled, or (with FailFast) the first per-item error occurs. It returns
// the aggregate Result; a non-nil error is returned only for an abort
// condition (Cancelled, or the first error under FailFast) — per-item
// failures otherwise live in Result.Outcomes and do not fail the call.
func (e *Executor) Run(ctx context.Context, actions iter.Seq[entry.SyncAction]) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	work := make(chan entry.SyncAction, e.cfg.MaxConcurrency)
	firstErr := make(chan error, 1)

	var wg sync.WaitGroup
	for range e.cfg.MaxConcurrency {
		wg.Add(1)

		go func() {
			defer wg.Done()
			e.worker(ctx, work, firstErr, cancel)
		}()
	}

	feedErr := e.feed(ctx, actions, work)

	wg.Wait()

	select {
	case err := <-firstErr:
		return e.result(), err
	default:
	}

	if feedErr != nil {
		return e.result(), feedErr
	}

	if ctx.Err() != nil {
		return e.result(), fmt.Errorf("%w: %w", entry.ErrCancelled, ctx.Err())
	}

	return e.result(), nil
}

// feed reads the action sequence and dispatches to the work channel,
// stopping early on cancellation.
func (e *Executor) feed(ctx context.Context, actions iter.Seq[entry.SyncAction], work chan<- entry.SyncAction) error {
	defer close(work)

	for action := range actions {
		select {
		case <-ctx.Done():
			return nil
		case work <- action:
		}
	}

	return nil
}

func (e *Executor) worker(ctx context.Context, work <-chan entry.SyncAction, firstErr chan<- error, cancel context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case action, ok := <-work:
			if !ok {
				return
			}

			e.safeExecute(ctx, action, firstErr, cancel)
		}
	}
}

// safeExecute wraps executeAction with panic recovery so a single action's
// panic cannot crash the whole run.
func (e *Executor) safeExecute(ctx context.Context, action entry.SyncAction, firstErr chan<- error, cancel context.CancelFunc) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("executor: panic executing %s %s: %v", action.Kind, action.Key, r)
			e.recordOutcome(Outcome{Action: action.Kind, Key: action.Key, Err: err})
			e.reportFailure(err, firstErr, cancel)
		}
	}()

	err := e.executeAction(ctx, action)
	e.recordOutcome(Outcome{Action: action.Kind, Key: action.Key, Err: err})

	if err != nil {
		e.reportFailure(err, firstErr, cancel)
	}
}

func (e *Executor) executeAction(ctx context.Context, action entry.SyncAction) error {
	switch action.Kind {
	case entry.ActionSkip:
		e.skipped.Add(1)
		e.logger.Debug("skip",
			slog.String("direction", e.cfg.Direction.String()),
			slog.String("key", string(action.Key)),
			slog.String("reason", action.SkipReason.String()))

		return nil

	case entry.ActionDelete:
		if e.cfg.DryRun {
			e.logger.Info("delete (dry-run)",
				slog.String("direction", e.cfg.Direction.String()),
				slog.String("key", string(action.Key)))
			e.deleted.Add(1)

			return nil
		}

		if err := e.sink.Delete(ctx, string(action.Key)); err != nil {
			return err
		}

		e.deleted.Add(1)
		e.logger.Info("delete",
			slog.String("direction", e.cfg.Direction.String()),
			slog.String("key", string(action.Key)))

		return nil

	case entry.ActionUpsert:
		return e.executeUpsert(ctx, action)

	default:
		return fmt.Errorf("%w: unknown action kind %d", entry.ErrConfig, action.Kind)
	}
}

func (e *Executor) executeUpsert(ctx context.Context, action entry.SyncAction) error {
	src := action.Src

	if e.cfg.RestoreMTime {
		if refresher, ok := src.Handle.(entry.MTimeRefresher); ok {
			if mtime, found, err := refresher.RefreshMTime(ctx); err == nil && found {
				refreshed := *src
				refreshed.MTime = mtime
				src = &refreshed
			}
		}
	}

	if e.cfg.DryRun {
		e.logger.Info("upsert (dry-run)",
			slog.String("direction", e.cfg.Direction.String()),
			slog.String("key", string(action.Key)))
		e.upserted.Add(1)

		return nil
	}

	rc, err := src.Handle.Open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	counted := &countingReader{r: rc}

	if _, err := e.sink.Put(ctx, string(action.Key), src, counted); err != nil {
		return err
	}

	e.upserted.Add(1)
	e.bytesTransferred.Add(uint64(counted.n))
	e.logger.Info("upsert",
		slog.String("direction", e.cfg.Direction.String()),
		slog.String("key", string(action.Key)),
		slog.Uint64("bytes", uint64(counted.n)))

	return nil
}

// recordOutcome tallies o via the atomic counters and, for failures only,
// appends it to the diagnostic slice up to maxRecordedErrors. Successful
// outcomes are never accumulated — they're already reflected in the
// upserted/skipped/deleted counters, and keeping a slice entry per
// successful key would grow without bound over a large run.
func (e *Executor) recordOutcome(o Outcome) {
	if o.Err == nil {
		return
	}

	e.failed.Add(1)

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.outcomes) >= maxRecordedErrors {
		e.dropped++
		return
	}

	e.outcomes = append(e.outcomes, o)
}

func (e *Executor) reportFailure(err error, firstErr chan<- error, cancel context.CancelFunc) {
	if !e.cfg.FailFast {
		return
	}

	select {
	case firstErr <- err:
		cancel()
	default:
	}
}

func (e *Executor) result() Result {
	e.mu.Lock()
	outcomes := make([]Outcome, len(e.outcomes))
	copy(outcomes, e.outcomes)
	e.mu.Unlock()

	return Result{
		Outcomes:         outcomes,
		Skipped:          int(e.skipped.Load()),
		Upserted:         int(e.upserted.Load()),
		Deleted:          int(e.deleted.Load()),
		Failed:           int(e.failed.Load()),
		BytesTransferred: e.bytesTransferred.Load(),
	}
}

// countingReader counts bytes read, so the executor can report bytes
// transferred without the sink needing to.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)

	return n, err
}
