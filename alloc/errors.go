package alloc

import "errors"

var (
	// ErrClosed identifies a closed allocator. No allocator method returns
	// it: TryAllocate reports a closed allocator as core.AddressInvalid.
	ErrClosed = errors.New("alloc: allocator closed")
	// ErrStaleAddress is returned by GetPhysicalAddress when addr refers to
	// a page that has already been retired and reused.
	ErrStaleAddress = errors.New("alloc: stale or out-of-range address")
	// ErrEntryTooLarge identifies a request larger than the page size, which
	// no page could ever satisfy. No allocator method returns it:
	// TryAllocate reports that case as core.AddressInvalid.
	ErrEntryTooLarge = errors.New("alloc: entry larger than page size")
)
