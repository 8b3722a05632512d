package commit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flogdb/flog/codec"
	"github.com/flogdb/flog/core"
)

// Coordinator serializes commit-metadata writes, owns the
// CommittedBeginAddress/CommittedUntilAddress watermarks, and signals
// waiters via a one-shot Future swapped atomically on each commit.
//
// The coarse mutex below is held only for the metadata write: producers
// never take it, they only subscribe to the current Future.
type Coordinator struct {
	manager Manager
	codec   codec.Codec

	mu             sync.Mutex
	committedBegin atomic.Int64
	committedUntil atomic.Int64
	future         atomic.Pointer[Future]

	disposed atomic.Bool

	logger  logSink
	metrics metricsSink
}

// NewCoordinator creates a Coordinator with no committed watermarks; call
// Seed after restoring from a manager's recovery record to avoid
// re-announcing address 0 as committed.
func NewCoordinator(manager Manager, c codec.Codec, opts ...Option) *Coordinator {
	o := defaultCoordinatorOptions()
	for _, opt := range opts {
		opt(o)
	}
	co := &Coordinator{manager: manager, codec: c, logger: o.logger, metrics: o.metrics}
	co.future.Store(NewFuture())
	return co
}

// Seed initializes the committed watermarks from a restored recovery
// record, without performing a metadata write.
func (co *Coordinator) Seed(begin, until core.Address) {
	co.committedBegin.Store(int64(begin))
	co.committedUntil.Store(int64(until))
}

// CommittedBeginAddress returns the oldest byte guaranteed retained
// across a restart.
func (co *Coordinator) CommittedBeginAddress() core.Address {
	return core.Address(co.committedBegin.Load())
}

// CommittedUntilAddress returns the exclusive upper bound of bytes whose
// durability has been persisted to the commit metadata.
func (co *Coordinator) CommittedUntilAddress() core.Address {
	return core.Address(co.committedUntil.Load())
}

// CurrentFuture returns the Future that will be completed by the next
// commit. Callers must load this before the action whose failure they
// will await on (subscribe-before-check, see Future).
func (co *Coordinator) CurrentFuture() *Future {
	return co.future.Load()
}

// Commit runs the commit callback: clamp the watermarks upward from
// beginAddress/flushAddress, persist the recovery record, publish the
// new watermarks, and complete the previously-current Future.
//
// Idempotent: a call that advances neither watermark is a no-op, so a
// flush-completion callback racing an explicit Commit never regresses or
// redundantly persists state.
func (co *Coordinator) Commit(ctx context.Context, beginAddress, flushAddress core.Address) error {
	if co.disposed.Load() {
		return ErrDisposed
	}
	start := time.Now()

	co.mu.Lock()

	begin := co.committedBegin.Load()
	until := co.committedUntil.Load()
	if int64(beginAddress) <= begin && int64(flushAddress) <= until {
		co.mu.Unlock()
		return nil
	}

	newBegin := maxInt64(begin, int64(beginAddress))
	newUntil := maxInt64(until, int64(flushAddress))

	blob, err := EncodeRecoveryRecord(co.codec, RecoveryRecord{
		BeginAddress:        core.Address(newBegin),
		FlushedUntilAddress: core.Address(newUntil),
	})
	if err != nil {
		co.mu.Unlock()
		return err
	}

	if err := co.manager.Commit(ctx, newBegin, newUntil, blob); err != nil {
		co.mu.Unlock()
		co.logger.LogCommit(ctx, newBegin, newUntil, err)
		co.metrics.RecordCommit(time.Since(start), err)
		return err
	}

	co.committedBegin.Store(newBegin)
	co.committedUntil.Store(newUntil)

	old := co.future.Load()
	co.future.Store(NewFuture())

	co.mu.Unlock()

	old.Complete(core.Address(newUntil))
	co.logger.LogCommit(ctx, newBegin, newUntil, nil)
	co.metrics.RecordCommit(time.Since(start), nil)
	return nil
}

// Dispose completes the future in the slot at dispose time (and any
// future subsequently installed) exceptionally, so every pending and
// future waiter unblocks with ErrDisposed.
func (co *Coordinator) Dispose() {
	if !co.disposed.CompareAndSwap(false, true) {
		return
	}
	terminal := NewFuture()
	terminal.CompleteError(ErrDisposed)
	old := co.future.Swap(terminal)
	old.CompleteError(ErrDisposed)
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
