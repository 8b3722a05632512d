package flog

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flogdb/flog/alloc"
	"github.com/flogdb/flog/codec"
	"github.com/flogdb/flog/commit"
	"github.com/flogdb/flog/core"
	"github.com/flogdb/flog/device"
	"github.com/flogdb/flog/epoch"
	"github.com/flogdb/flog/internal/conv"
	"github.com/flogdb/flog/scan"
)

// Log is a high-throughput, persistent append-only log. Producers call
// the Enqueue family from any goroutine; flushing happens on background
// worker goroutines owned by the allocator; readers may come from
// arbitrary goroutines.
type Log struct {
	alloc       *alloc.Allocator
	device      device.Device
	epochMgr    *epoch.Manager
	coordinator *commit.Coordinator
	codec       codec.Codec
	logger      *Logger
	metrics     MetricsCollector
	memSupplier func(n int) []byte

	clientPool sync.Pool

	disposed atomic.Bool
}

// Open opens or recovers a Log. dev and mgr may be nil if supplied via
// WithDevice/WithCommitManager instead.
func Open(ctx context.Context, dev device.Device, mgr commit.Manager, opts ...Option) (*Log, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	o.resolveResources()
	if dev == nil {
		dev = o.device
	}
	if mgr == nil {
		mgr = o.commitManager
	}
	if dev == nil {
		return nil, fmt.Errorf("flog: a device is required (pass one to Open or use WithDevice)")
	}
	if mgr == nil {
		return nil, fmt.Errorf("flog: a commit manager is required (pass one to Open or use WithCommitManager)")
	}

	epochMgr := epoch.NewManager()
	coordinator := commit.NewCoordinator(mgr, o.codec, commit.WithLogger(o.logger), commit.WithMetrics(o.metrics))

	l := &Log{
		device:      dev,
		epochMgr:    epochMgr,
		coordinator: coordinator,
		codec:       o.codec,
		logger:      o.logger,
		metrics:     o.metrics,
		memSupplier: o.memSupplier,
	}

	allocOpts := []alloc.Option{
		alloc.WithPageSize(o.pageSize),
		alloc.WithRingPages(o.ringPages),
		alloc.WithDevice(dev),
		alloc.WithEpochManager(epochMgr),
		alloc.WithLogger(o.logger),
		alloc.WithMetrics(o.metrics),
		alloc.WithFlushCallback(func(flushedUntil int64) {
			_ = coordinator.Commit(context.Background(), l.alloc.BeginAddress(), core.Address(flushedUntil))
		}),
	}
	if o.flushWorkers > 0 {
		allocOpts = append(allocOpts, alloc.WithFlushWorkers(o.flushWorkers))
	}
	if o.resources != nil {
		allocOpts = append(allocOpts, alloc.WithResourceController(o.resources))
	}

	a, err := alloc.New(allocOpts...)
	if err != nil {
		return nil, err
	}
	l.alloc = a

	blob, err := mgr.GetCommitMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("flog: read commit metadata: %w", err)
	}
	if blob == nil {
		o.logger.LogRecover(ctx, core.AddressInvalid, core.AddressInvalid, true, nil)
		return l, nil
	}

	rec, err := commit.DecodeRecoveryRecord(blob, o.codec)
	if err != nil {
		o.logger.LogRecover(ctx, 0, 0, false, err)
		return nil, fmt.Errorf("flog: decode recovery record: %w", err)
	}

	offset := core.OffsetInPage(rec.FlushedUntilAddress, o.pageSize)
	head := rec.FlushedUntilAddress - core.Address(offset)
	if head < rec.BeginAddress {
		head = rec.BeginAddress
	}
	if err := l.alloc.RestoreHybridLog(ctx, rec.FlushedUntilAddress, head, rec.BeginAddress); err != nil {
		return nil, fmt.Errorf("flog: restore allocator state: %w", err)
	}
	coordinator.Seed(rec.BeginAddress, rec.FlushedUntilAddress)
	o.logger.LogRecover(ctx, rec.BeginAddress, rec.FlushedUntilAddress, false, nil)

	return l, nil
}

func (l *Log) acquireClient() (*epoch.Client, error) {
	if c, ok := l.clientPool.Get().(*epoch.Client); ok {
		return c, nil
	}
	return l.epochMgr.Acquire()
}

func (l *Log) releaseClient(c *epoch.Client) {
	l.clientPool.Put(c)
}

// TryAppend writes a single entry, returning the logical address it was
// written at. ok is false if the allocator could not satisfy the
// request (transient full); this is not an error, per the log's error
// model: callers retry.
func (l *Log) TryAppend(entry []byte) (ok bool, addr core.Address) {
	if l.disposed.Load() {
		return false, core.AddressInvalid
	}
	start := time.Now()
	client, err := l.acquireClient()
	if err != nil {
		return false, core.AddressInvalid
	}
	defer l.releaseClient(client)

	l.epochMgr.Resume(client)
	defer func() { _ = l.epochMgr.Suspend(client) }()

	n := core.RecordSize(len(entry))
	addr = l.alloc.TryAllocate(n)
	if addr == core.AddressInvalid {
		l.logger.LogAppend(context.Background(), addr, len(entry), false)
		return false, core.AddressInvalid
	}

	buf, err := l.alloc.GetPhysicalAddress(addr)
	if err != nil {
		return false, core.AddressInvalid
	}
	length, err := conv.IntToUint32(len(entry))
	if err != nil {
		return false, core.AddressInvalid
	}
	binary.LittleEndian.PutUint32(buf[0:4], length)
	copy(buf[4:], entry)

	l.logger.LogAppend(context.Background(), addr, len(entry), true)
	l.metrics.RecordAppend(time.Since(start), len(entry), nil)
	return true, addr
}

// TryAppendBatch writes n records atomically at consecutive addresses
// starting at the returned address, or none at all.
func (l *Log) TryAppendBatch(entries [][]byte) (ok bool, addr core.Address, allocatedLength int) {
	if l.disposed.Load() {
		return false, core.AddressInvalid, 0
	}
	lens := make([]int, len(entries))
	for i, e := range entries {
		lens[i] = len(e)
	}
	allocatedLength = core.BatchSize(lens)

	client, err := l.acquireClient()
	if err != nil {
		return false, core.AddressInvalid, 0
	}
	defer l.releaseClient(client)

	l.epochMgr.Resume(client)
	defer func() { _ = l.epochMgr.Suspend(client) }()

	addr = l.alloc.TryAllocate(allocatedLength)
	if addr == core.AddressInvalid {
		return false, core.AddressInvalid, 0
	}

	buf, err := l.alloc.GetPhysicalAddress(addr)
	if err != nil {
		return false, core.AddressInvalid, 0
	}

	offset := 0
	for _, e := range entries {
		length, err := conv.IntToUint32(len(e))
		if err != nil {
			return false, core.AddressInvalid, 0
		}
		binary.LittleEndian.PutUint32(buf[offset:offset+4], length)
		copy(buf[offset+4:], e)
		offset += core.RecordSize(len(e))
	}
	return true, addr, allocatedLength
}

// TryEnqueue is the non-blocking form of Enqueue.
func (l *Log) TryEnqueue(entry []byte) (core.Address, bool) {
	ok, addr := l.TryAppend(entry)
	return addr, ok
}

// Enqueue spins over TryAppend until it succeeds or ctx is done.
// Appropriate because failure is expected to be transient: the flusher
// catches up within microseconds.
func (l *Log) Enqueue(ctx context.Context, entry []byte) (core.Address, error) {
	for {
		if ok, addr := l.TryAppend(entry); ok {
			return addr, nil
		}
		if err := ctx.Err(); err != nil {
			return core.AddressInvalid, err
		}
	}
}

// EnqueueAsync acquires the current commit future before each TryAppend
// attempt and awaits it on failure; this is the subscribe-before-check
// pattern that avoids missing a wakeup between a commit and the
// subscription.
func (l *Log) EnqueueAsync(ctx context.Context, entry []byte) (core.Address, error) {
	for {
		fut := l.coordinator.CurrentFuture()
		if ok, addr := l.TryAppend(entry); ok {
			return addr, nil
		}
		if _, err := fut.Wait(ctx); err != nil {
			return core.AddressInvalid, err
		}
	}
}

// EnqueueAndWaitForCommit appends entry, then blocks (spinning) until its
// bytes are durably committed. It does not request a commit itself: it
// returns once a page flush or a Commit call from another goroutine has
// advanced CommittedUntilAddress past the record.
func (l *Log) EnqueueAndWaitForCommit(ctx context.Context, entry []byte) (core.Address, error) {
	addr, err := l.Enqueue(ctx, entry)
	if err != nil {
		return core.AddressInvalid, err
	}
	until := addr + core.Address(core.RecordSize(len(entry)))
	if err := l.WaitForCommit(ctx, until); err != nil {
		return addr, err
	}
	return addr, nil
}

// EnqueueAndWaitForCommitAsync is the future-subscribing analogue of
// EnqueueAndWaitForCommit, used in both the append and the wait phase.
func (l *Log) EnqueueAndWaitForCommitAsync(ctx context.Context, entry []byte) (core.Address, error) {
	addr, err := l.EnqueueAsync(ctx, entry)
	if err != nil {
		return core.AddressInvalid, err
	}
	until := addr + core.Address(core.RecordSize(len(entry)))
	if err := l.WaitForCommitAsync(ctx, until); err != nil {
		return addr, err
	}
	return addr, nil
}

// WaitForCommit spins until CommittedUntilAddress reaches until. until=0
// means "current tail at call time". Spinning is intentional: commit
// latency is expected to be microsecond-scale, and spinning avoids
// wakeup latency on the hot path.
func (l *Log) WaitForCommit(ctx context.Context, until core.Address) error {
	if until == 0 {
		until = l.alloc.GetTailAddress()
	}
	for l.coordinator.CommittedUntilAddress() < until {
		if l.disposed.Load() {
			return ErrDisposed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		l.epochMgr.ProtectAndDrain()
	}
	return nil
}

// WaitForCommitAsync re-subscribes to the commit future each time it
// reloads, re-checking the watermark after every wakeup (the watermark
// may need more than one commit to reach until).
func (l *Log) WaitForCommitAsync(ctx context.Context, until core.Address) error {
	if until == 0 {
		until = l.alloc.GetTailAddress()
	}
	for {
		fut := l.coordinator.CurrentFuture()
		if l.coordinator.CommittedUntilAddress() >= until {
			return nil
		}
		if _, err := fut.Wait(ctx); err != nil {
			return err
		}
	}
}

// Commit requests the allocator close the current tail page. If spinWait
// is true, blocks until CommittedUntilAddress reaches the tail at the
// moment of the shift. If nothing needed shifting but BeginAddress has
// advanced since the last commit, forces a metadata write directly.
func (l *Log) Commit(ctx context.Context, spinWait bool) error {
	shifted, tail := l.alloc.ShiftReadOnlyToTail()
	if shifted {
		if spinWait {
			return l.WaitForCommit(ctx, tail)
		}
		return nil
	}
	return l.coordinator.Commit(ctx, l.alloc.BeginAddress(), l.coordinator.CommittedUntilAddress())
}

// CommitAsync is the non-spinning form of Commit: it requests the shift
// and returns the future a caller can await for durability, without
// blocking the calling goroutine.
func (l *Log) CommitAsync(ctx context.Context) (*commit.Future, error) {
	fut := l.coordinator.CurrentFuture()
	shifted, _ := l.alloc.ShiftReadOnlyToTail()
	if !shifted {
		if err := l.coordinator.Commit(ctx, l.alloc.BeginAddress(), l.coordinator.CommittedUntilAddress()); err != nil {
			return nil, err
		}
	}
	return fut, nil
}

// ReadAsync fetches the record at address, restarting with the correct
// size if estimatedLength underestimated the payload.
func (l *Log) ReadAsync(ctx context.Context, addr core.Address, estimatedLength int) ([]byte, error) {
	start := time.Now()

	client, err := l.acquireClient()
	if err != nil {
		return nil, err
	}
	defer l.releaseClient(client)

	l.epochMgr.Resume(client)
	defer func() { _ = l.epochMgr.Suspend(client) }()

	if addr >= l.coordinator.CommittedUntilAddress() || addr < l.alloc.BeginAddress() {
		l.metrics.RecordRead(time.Since(start), 0, ErrOutOfRange)
		return nil, ErrOutOfRange
	}

	n := 4 + estimatedLength
	if n < 4 {
		n = 4
	}
	buf := l.getBuffer(n)
	read, err := l.alloc.ReadAt(ctx, addr, buf)
	if err != nil {
		l.logger.LogRead(ctx, addr, 0, err)
		l.metrics.RecordRead(time.Since(start), 0, ErrDeviceIO)
		return nil, fmt.Errorf("%w: %w", ErrDeviceIO, err)
	}
	if read < 4 {
		l.metrics.RecordRead(time.Since(start), 0, ErrCorruptRecord)
		return nil, ErrCorruptRecord
	}

	length := int(binary.LittleEndian.Uint32(buf[0:4]))
	if length < 0 || length > l.alloc.PageSize() {
		l.logger.LogRead(ctx, addr, length, ErrCorruptRecord)
		l.metrics.RecordRead(time.Since(start), 0, ErrCorruptRecord)
		return nil, ErrCorruptRecord
	}

	if read >= 4+length {
		out := make([]byte, length)
		copy(out, buf[4:4+length])
		l.metrics.RecordRead(time.Since(start), length, nil)
		return out, nil
	}

	// Under-read: re-issue with the now-known correct size.
	buf = l.getBuffer(4 + length)
	read, err = l.alloc.ReadAt(ctx, addr, buf)
	if err != nil {
		l.metrics.RecordRead(time.Since(start), 0, ErrDeviceIO)
		return nil, fmt.Errorf("%w: %w", ErrDeviceIO, err)
	}
	if read < 4+length {
		l.metrics.RecordRead(time.Since(start), 0, ErrCorruptRecord)
		return nil, ErrCorruptRecord
	}
	out := make([]byte, length)
	copy(out, buf[4:4+length])
	l.logger.LogRead(ctx, addr, length, nil)
	l.metrics.RecordRead(time.Since(start), length, nil)
	return out, nil
}

func (l *Log) getBuffer(n int) []byte {
	if l.memSupplier != nil {
		return l.memSupplier(n)
	}
	return make([]byte, n)
}

// Scan returns a forward iterator over committed records starting at
// from, gated on CommittedUntilAddress by default or FlushedUntilAddress
// with scan.WithUncommitted(). Callers must Close the returned Scanner.
func (l *Log) Scan(ctx context.Context, from core.Address, opts ...scan.Option) *scan.Scanner {
	return scan.New(ctx, l, from, opts...)
}

// TruncateUntil advances BeginAddress to addr, making bytes below it
// eligible for reclamation; ReadAsync for those addresses returns
// ErrOutOfRange afterward. Forces a commit so the new begin address is
// durable.
func (l *Log) TruncateUntil(ctx context.Context, addr core.Address) error {
	// CommittedBeginAddress must never trail BeginAddress (the core
	// invariant BeginAddress <= CommittedBeginAddress), so the durable
	// publish happens before the allocator reclaims anything in memory.
	err := l.coordinator.Commit(ctx, addr, l.coordinator.CommittedUntilAddress())
	if err == nil {
		l.alloc.ShiftBeginAddress(addr)
		if t, ok := l.device.(truncator); ok {
			err = t.TruncateUntil(ctx, int64(addr))
		}
	}
	l.logger.LogTruncate(ctx, addr)
	l.metrics.RecordTruncate(err)
	return err
}

// truncator is implemented by devices that can release storage for pages
// entirely below a given offset (fsdevice, blobdevice). Not part of
// device.Device itself since not every backend can reclaim space
// page-by-page.
type truncator interface {
	TruncateUntil(ctx context.Context, beginOffset int64) error
}

// BeginAddress, CommittedUntilAddress, FlushedUntilAddress and
// TailAddress expose the log's watermarks.
func (l *Log) BeginAddress() core.Address          { return l.alloc.BeginAddress() }
func (l *Log) CommittedBeginAddress() core.Address { return l.coordinator.CommittedBeginAddress() }
func (l *Log) CommittedUntilAddress() core.Address { return l.coordinator.CommittedUntilAddress() }
func (l *Log) FlushedUntilAddress() core.Address   { return l.alloc.FlushedUntilAddress() }
func (l *Log) TailAddress() core.Address           { return l.alloc.GetTailAddress() }

// Stats returns a snapshot of the allocator's diagnostics, including the
// pending flush-worker backlog.
func (l *Log) Stats() alloc.Stats { return l.alloc.Stats() }

// Dispose completes every outstanding commit future (and any future
// installed afterward) with ErrDisposed, then releases allocator and
// device resources. After Dispose, TryAppend and TryAppendBatch fail and
// commit waits return ErrDisposed.
func (l *Log) Dispose() error {
	if !l.disposed.CompareAndSwap(false, true) {
		return nil
	}
	l.coordinator.Dispose()
	return l.alloc.Close()
}
