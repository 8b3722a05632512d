// Package alloc implements the paged allocator: a lock-free bump-pointer
// allocator over a ring of fixed-size, off-heap memory pages, with
// asynchronous flush to a device.Device and epoch-gated page retirement.
package alloc

import (
	"context"
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/flogdb/flog/core"
	"github.com/flogdb/flog/device"
	"github.com/flogdb/flog/engine"
	"github.com/flogdb/flog/epoch"
	"github.com/flogdb/flog/resource"
)

// Allocator owns the in-memory page ring, hands out tail-monotonic
// logical addresses, and flushes closed pages to a device.Device in the
// background.
type Allocator struct {
	pageSize  int64
	ringPages int64

	slots   []atomic.Pointer[page]
	current atomic.Pointer[page]
	mu      sync.Mutex

	beginAddr    atomic.Int64
	flushedUntil atomic.Int64
	firstValid   int64 // device offset of logical address 0

	device      device.Device
	epochMgr    *epoch.Manager
	flushWorker *engine.WorkerPool
	ownsWorker  bool
	resources   *resource.Controller
	onFlush     FlushFunc
	logger      logSink
	metrics     metricsSink

	retiredMu sync.Mutex
	retired   *roaring.Bitmap

	closed atomic.Bool
}

// New creates an Allocator and opens its first page.
func New(opts ...Option) (*Allocator, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.device == nil {
		return nil, fmt.Errorf("alloc: WithDevice is required")
	}
	if o.epochMgr == nil {
		o.epochMgr = epoch.NewManager()
	}
	if o.flushWorker == nil {
		o.flushWorker = engine.NewWorkerPool(0)
		o.ownsWorker = true
	}

	if o.pageSize <= 0 {
		o.pageSize = DefaultPageSize
	}
	pageSize := int64(1) << bits.Len(uint(o.pageSize-1))
	if o.ringPages <= 0 {
		o.ringPages = DefaultRingPages
	}

	a := &Allocator{
		pageSize:    pageSize,
		ringPages:   int64(o.ringPages),
		slots:       make([]atomic.Pointer[page], o.ringPages),
		device:      o.device,
		epochMgr:    o.epochMgr,
		flushWorker: o.flushWorker,
		ownsWorker:  o.ownsWorker,
		resources:   o.resources,
		onFlush:     o.onFlush,
		logger:      o.logger,
		metrics:     o.metrics,
		retired:     newRetiredSet(),
	}

	p, err := newPage(0, int(pageSize))
	if err != nil {
		return nil, err
	}
	// Page 0 is always resident regardless of a configured memory budget -
	// the ring needs at least one open page to make progress - so it is
	// not counted against resources.MemoryLimitBytes.
	//
	// core.AddressInvalid is 0: reserve the first few bytes of a brand new
	// log so TryAllocate never hands out address 0 to a real record.
	p.offset.Store(reservedPrefixBytes)
	a.slots[0].Store(p)
	a.current.Store(p)
	return a, nil
}

// reservedPrefixBytes is the amount of page 0 kept permanently
// unallocated so address 0 is free to mean core.AddressInvalid.
const reservedPrefixBytes = 4

func (a *Allocator) slotIndex(pageIdx int64) int64 {
	return ((pageIdx % a.ringPages) + a.ringPages) % a.ringPages
}

// TryAllocate bumps the tail by n aligned bytes, returning core.AddressInvalid
// if the current page has no room, the next page is not yet available, or
// the ring is back-pressured by un-flushed pages.
func (a *Allocator) TryAllocate(n int) core.Address {
	if a.closed.Load() {
		return core.AddressInvalid
	}
	if int64(n) > a.pageSize {
		return core.AddressInvalid
	}

	for {
		curr := a.current.Load()
		if curr == nil {
			return core.AddressInvalid
		}

		if addr, ok := a.tryAllocInPage(curr, n); ok {
			return addr
		}

		if a.current.Load() != curr {
			continue
		}

		a.mu.Lock()
		if a.current.Load() != curr {
			a.mu.Unlock()
			continue
		}
		// A request that does not fit in the current page fails even when
		// the roll succeeds; the caller's retry lands on the new page.
		a.rollPageLocked(curr)
		a.mu.Unlock()
		return core.AddressInvalid
	}
}

func (a *Allocator) tryAllocInPage(p *page, n int) (core.Address, bool) {
	if p.loadState() != pageOpen {
		return core.AddressInvalid, false
	}
	old := p.offset.Load()
	newOff := old + int64(n)
	if newOff > a.pageSize {
		return core.AddressInvalid, false
	}
	if !p.offset.CompareAndSwap(old, newOff) {
		return core.AddressInvalid, false
	}
	return core.Address(p.index*a.pageSize + old), true
}

// rollPageLocked closes curr and opens the next page in the ring. It
// returns false if the next ring slot is still occupied by a page that
// has not yet been retired, or if a configured memory budget has no room
// left for another resident page (both are back-pressure).
func (a *Allocator) rollPageLocked(curr *page) bool {
	curr.casState(pageOpen, pageClosed)

	nextIdx := curr.index + 1
	slot := a.slotIndex(nextIdx)
	if occupant := a.slots[slot].Load(); occupant != nil && occupant.index != nextIdx {
		if occupant.loadState() != pageRetired {
			return false
		}
	}

	if a.resources != nil && !a.resources.TryAcquireMemory(a.pageSize) {
		curr.casState(pageClosed, pageOpen)
		return false
	}

	next, err := newPage(nextIdx, int(a.pageSize))
	if err != nil {
		if a.resources != nil {
			a.resources.ReleaseMemory(a.pageSize)
		}
		return false
	}
	a.slots[slot].Store(next)
	a.retiredMu.Lock()
	a.retired.Remove(uint32(slot))
	a.retiredMu.Unlock()
	a.current.Store(next)

	a.submitFlush(curr)
	return true
}

// GetPhysicalAddress returns the in-memory byte range backing addr. Valid
// only while the calling goroutine is resumed in the epoch manager.
func (a *Allocator) GetPhysicalAddress(addr core.Address) ([]byte, error) {
	pageIdx := int64(addr) / a.pageSize
	within := int64(addr) % a.pageSize

	p := a.slots[a.slotIndex(pageIdx)].Load()
	if p == nil || p.index != pageIdx {
		return nil, ErrStaleAddress
	}
	data := p.mapping.Bytes()
	if data == nil || within > int64(len(data)) {
		return nil, ErrStaleAddress
	}
	return data[within:], nil
}

// PageSize returns the allocator's fixed page size in bytes.
func (a *Allocator) PageSize() int {
	return int(a.pageSize)
}

// ReadAt copies bytes starting at addr into dst, serving from the
// resident page if addr is still in the ring, and otherwise falling back
// to a device read. The caller must be resumed in the epoch manager for
// the duration of the resident-page fast path.
func (a *Allocator) ReadAt(ctx context.Context, addr core.Address, dst []byte) (int, error) {
	if data, err := a.GetPhysicalAddress(addr); err == nil {
		n := copy(dst, data)
		return n, nil
	}
	deviceOffset := int64(addr) - a.firstValid
	return a.device.ReadAt(ctx, dst, deviceOffset)
}

// GetTailAddress returns the next address the allocator will hand out.
func (a *Allocator) GetTailAddress() core.Address {
	curr := a.current.Load()
	if curr == nil {
		return core.AddressInvalid
	}
	return core.Address(curr.index*a.pageSize + curr.offset.Load())
}

// BeginAddress returns the oldest logically retained byte.
func (a *Allocator) BeginAddress() core.Address {
	return core.Address(a.beginAddr.Load())
}

// FlushedUntilAddress returns the exclusive upper bound written to the device.
func (a *Allocator) FlushedUntilAddress() core.Address {
	return core.Address(a.flushedUntil.Load())
}

// ShiftBeginAddress raises BeginAddress, making memory and disk space
// below addr eligible for reclamation. It never lowers the watermark.
func (a *Allocator) ShiftBeginAddress(addr core.Address) {
	casMax(&a.beginAddr, int64(addr))
	a.reclaimRetireable()
}

// ShiftReadOnlyToTail closes the currently open page suffix (if it holds
// any bytes) so the flusher drains it, reporting the tail at the moment
// of the shift. It reports false when the page is empty or when the roll
// into the next page is back-pressured.
func (a *Allocator) ShiftReadOnlyToTail() (bool, core.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()

	curr := a.current.Load()
	if curr == nil {
		return false, a.GetTailAddress()
	}
	off := curr.offset.Load()
	if off == 0 || (curr.index == 0 && off == reservedPrefixBytes) {
		return false, a.GetTailAddress()
	}

	tail := core.Address(curr.index*a.pageSize + off)
	return a.rollPageLocked(curr), tail
}

// RestoreHybridLog reconstitutes page state on open so future
// allocations continue from flushed, with head as the first resident
// page and begin as the logical begin address. The page's already-
// flushed prefix [pageBase, flushed) is loaded from the device so reads
// against addresses in that range hit real data instead of a zeroed
// anonymous mapping.
func (a *Allocator) RestoreHybridLog(ctx context.Context, flushed, head, begin core.Address) error {
	headIdx := int64(head) / a.pageSize
	pageBase := headIdx * a.pageSize

	p, err := newPage(headIdx, int(a.pageSize))
	if err != nil {
		return err
	}

	n := int64(flushed) - pageBase
	if n > 0 {
		deviceOffset := pageBase - a.firstValid
		if _, err := a.device.ReadAt(ctx, p.mapping.Bytes()[:n], deviceOffset); err != nil {
			p.release()
			return fmt.Errorf("alloc: restore head page from device: %w", err)
		}
	}
	p.offset.Store(n)

	a.slots[a.slotIndex(headIdx)].Store(p)
	a.current.Store(p)
	a.beginAddr.Store(int64(begin))
	a.flushedUntil.Store(int64(flushed))
	return nil
}

func (a *Allocator) submitFlush(p *page) {
	if !p.casState(pageClosed, pageFlushing) {
		return
	}
	err := a.flushWorker.Submit(context.Background(), func() {
		a.flushPage(p)
	})
	if err != nil {
		// Pool closed (likely during Dispose); leave the page closed so a
		// future open can re-flush it from RestoreHybridLog's perspective.
		p.state.Store(int32(pageClosed))
	}
}

func (a *Allocator) flushPage(p *page) {
	n := int(p.offset.Load())
	data := p.mapping.Bytes()[:n]
	deviceOffset := p.index*a.pageSize - a.firstValid

	ctx := context.Background()

	if a.resources != nil {
		if err := a.resources.AcquireFlush(ctx, n); err != nil {
			p.state.Store(int32(pageClosed))
			return
		}
		defer a.resources.ReleaseBackground()
	}

	err := a.device.WriteAt(ctx, data, deviceOffset)
	if err == nil {
		err = a.device.Sync(ctx)
	}

	a.logger.LogFlush(p.index, n, err)
	a.metrics.RecordFlush(n, err)

	if err != nil {
		// DeviceIOError: flush errors do not advance FlushedUntilAddress,
		// so the log stalls for this range until the device recovers.
		// Leave the page flushing; a future retry is the caller's choice.
		return
	}

	p.casState(pageFlushing, pageFlushed)

	newFlushed := p.index*a.pageSize + int64(n)
	casMax(&a.flushedUntil, newFlushed)

	if a.onFlush != nil {
		a.onFlush(newFlushed)
	}

	a.reclaimRetireable()
}

// reclaimRetireable scans the ring for pages that are flushed and fully
// behind BeginAddress, and defers their unmapping until no epoch
// participant can still observe them.
func (a *Allocator) reclaimRetireable() {
	begin := a.beginAddr.Load()
	for i := range a.slots {
		p := a.slots[i].Load()
		if p == nil || p.loadState() != pageFlushed {
			continue
		}
		if begin < (p.index+1)*a.pageSize {
			continue
		}
		if !p.casState(pageFlushed, pageRetired) {
			continue
		}
		a.markRetired(p.index)
		a.epochMgr.Defer(func() {
			p.release()
			if a.resources != nil {
				a.resources.ReleaseMemory(a.pageSize)
			}
		})
	}
}

func (a *Allocator) markRetired(pageIdx int64) {
	a.retiredMu.Lock()
	a.retired.Add(uint32(a.slotIndex(pageIdx)))
	a.retiredMu.Unlock()
}

// Stats reports allocator diagnostics.
type Stats struct {
	TailAddress         core.Address
	BeginAddress        core.Address
	FlushedUntilAddress core.Address
	RetiredSlots        uint64
	FlushQueueDepth     int
}

// Stats returns a snapshot of the allocator's watermarks, retired-slot
// count, and pending flush backlog.
func (a *Allocator) Stats() Stats {
	a.retiredMu.Lock()
	retired := a.retired.GetCardinality()
	a.retiredMu.Unlock()

	return Stats{
		TailAddress:         a.GetTailAddress(),
		BeginAddress:        a.BeginAddress(),
		FlushedUntilAddress: a.FlushedUntilAddress(),
		RetiredSlots:        retired,
		FlushQueueDepth:     a.flushWorker.QueueDepth(),
	}
}

// Close disposes the allocator. Pending flushes are allowed to drain if
// the worker pool is owned by this allocator; physical pointers obtained
// before Close must not be dereferenced afterward.
func (a *Allocator) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	if a.ownsWorker {
		a.flushWorker.Close()
	}
	return a.device.Close()
}

func casMax(addr *atomic.Int64, v int64) {
	for {
		old := addr.Load()
		if v <= old {
			return
		}
		if addr.CompareAndSwap(old, v) {
			return
		}
	}
}
