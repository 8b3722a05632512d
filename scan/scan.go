// Package scan implements a forward iterator over a log's committed
// records, double-buffering one record ahead of the cursor so sequential
// throughput is not gated on synchronous per-record reads.
package scan

import (
	"context"
	"errors"

	"github.com/flogdb/flog/core"
)

// ErrDone is returned by Next once the cursor has caught up to the
// governing watermark (CommittedUntilAddress by default, or
// FlushedUntilAddress with WithUncommitted).
var ErrDone = errors.New("scan: no more committed records")

// Source is the subset of *flog.Log a Scanner reads through. flog.Log
// satisfies this structurally; scan does not import flog to avoid a
// cycle back into the package root.
type Source interface {
	ReadAsync(ctx context.Context, addr core.Address, estimatedLength int) ([]byte, error)
	CommittedUntilAddress() core.Address
	FlushedUntilAddress() core.Address
}

// Option configures a Scanner.
type Option func(*options)

type options struct {
	uncommitted  bool
	estimateSize int
}

// WithUncommitted gates the scan on FlushedUntilAddress instead of
// CommittedUntilAddress, surfacing records that have reached the device
// but not yet had their durability announced by a commit.
func WithUncommitted() Option {
	return func(o *options) { o.uncommitted = true }
}

// WithEstimatedRecordSize sets the buffer size guessed for each read
// before the record's true length is known, avoiding the retry-on-
// underestimate path in the common case. Default 256 bytes.
func WithEstimatedRecordSize(n int) Option {
	return func(o *options) { o.estimateSize = n }
}

func defaultOptions() *options {
	return &options{estimateSize: 256}
}

type entry struct {
	addr core.Address
	rec  []byte
	err  error
}

// Scanner iterates committed records from a starting address, reading
// one record ahead of the cursor on a background goroutine.
type Scanner struct {
	src  Source
	opts *options

	ahead  chan entry
	stopCh chan struct{}

	cur core.Address
	err error
}

// New starts a Scanner at from, reading forward until the governing
// watermark. Callers must call Close when done to stop the background
// reader.
func New(ctx context.Context, src Source, from core.Address, opts ...Option) *Scanner {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	s := &Scanner{
		src:    src,
		opts:   o,
		ahead:  make(chan entry, 1),
		stopCh: make(chan struct{}),
		cur:    from,
	}
	go s.run(ctx)
	return s
}

func (s *Scanner) limit() core.Address {
	if s.opts.uncommitted {
		return s.src.FlushedUntilAddress()
	}
	return s.src.CommittedUntilAddress()
}

func (s *Scanner) run(ctx context.Context) {
	addr := s.cur
	for {
		if addr >= s.limit() {
			select {
			case s.ahead <- entry{err: ErrDone}:
			case <-s.stopCh:
			}
			return
		}
		rec, err := s.src.ReadAsync(ctx, addr, s.opts.estimateSize)
		if err != nil {
			select {
			case s.ahead <- entry{err: err}:
			case <-s.stopCh:
			}
			return
		}
		next := addr + core.Address(core.RecordSize(len(rec)))
		select {
		case s.ahead <- entry{addr: addr, rec: rec}:
		case <-s.stopCh:
			return
		}
		addr = next
	}
}

// Next advances the cursor and returns the next record's address and
// payload, or ErrDone once the governing watermark is reached.
func (s *Scanner) Next(ctx context.Context) (core.Address, []byte, error) {
	if s.err != nil {
		return core.AddressInvalid, nil, s.err
	}
	select {
	case e := <-s.ahead:
		if e.err != nil {
			s.err = e.err
			return core.AddressInvalid, nil, e.err
		}
		s.cur = e.addr + core.Address(core.RecordSize(len(e.rec)))
		return e.addr, e.rec, nil
	case <-ctx.Done():
		return core.AddressInvalid, nil, ctx.Err()
	}
}

// Close stops the background reader. Safe to call more than once.
func (s *Scanner) Close() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}
