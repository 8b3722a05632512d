package alloc

import (
	"sync/atomic"

	"github.com/flogdb/flog/internal/mmap"
)

type pageState int32

const (
	pageOpen pageState = iota
	pageClosed
	pageFlushing
	pageFlushed
	pageRetired
)

// page is a single fixed-size, off-heap memory region backing one segment
// of the logical address space. Its bump pointer (offset) is advanced by
// lock-free CAS from TryAllocate and is never reset: a page is not reused
// after retirement, each roll maps a fresh page.
type page struct {
	index   int64 // page.index * pageSize is the page's base logical address
	mapping *mmap.Mapping
	data    []byte
	offset  atomic.Int64
	state   atomic.Int32
}

func newPage(index int64, size int) (*page, error) {
	m, err := mmap.MapAnon(size)
	if err != nil {
		return nil, err
	}
	return &page{index: index, mapping: m, data: m.Bytes()}, nil
}

func (p *page) loadState() pageState { return pageState(p.state.Load()) }

func (p *page) casState(from, to pageState) bool {
	return p.state.CompareAndSwap(int32(from), int32(to))
}

func (p *page) release() {
	if p.mapping != nil {
		_ = p.mapping.Close()
	}
}
