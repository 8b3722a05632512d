package commit

import (
	"context"
	"sync/atomic"

	"github.com/flogdb/flog/core"
)

// Future is a one-shot completion handle fulfilled when the next commit
// advances CommittedUntilAddress, or completed exceptionally on Dispose.
// A Future is never reused: each commit (or dispose) installs a fresh one
// in the Coordinator's slot and completes the snapshotted old one.
//
// Subscribers must load the current Future *before* the action whose
// failure they will await on (subscribe-before-check); completing a
// Future closes its channel, which is itself memory-synchronizing, so a
// completion that races a Subscribe is never lost.
type Future struct {
	done   chan struct{}
	result atomic.Pointer[result]
}

type result struct {
	until core.Address
	err   error
}

// NewFuture returns a fresh, unresolved Future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Complete fulfills the future with the address committed up to. Calling
// Complete more than once is a programmer error; only the first call has
// effect.
func (f *Future) Complete(until core.Address) {
	if f.result.CompareAndSwap(nil, &result{until: until}) {
		close(f.done)
	}
}

// CompleteError fulfills the future exceptionally, e.g. with ErrDisposed.
// Like Complete, only the first completion has effect.
func (f *Future) CompleteError(err error) {
	if f.result.CompareAndSwap(nil, &result{err: err}) {
		close(f.done)
	}
}

// Wait blocks until the future completes, returning the committed address
// or the exceptional error it was completed with.
func (f *Future) Wait(ctx context.Context) (core.Address, error) {
	select {
	case <-f.done:
		r := f.result.Load()
		return r.until, r.err
	case <-ctx.Done():
		return core.AddressInvalid, ctx.Err()
	}
}

// Done returns the channel closed on completion, for callers composing
// their own select statements.
func (f *Future) Done() <-chan struct{} {
	return f.done
}
