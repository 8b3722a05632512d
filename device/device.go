// Package device abstracts the physical storage the paged allocator
// flushes pages to and reads cold records from.
package device

import (
	"context"
	"errors"
)

// ErrShortWrite is returned by WriteAt when fewer bytes than requested
// were written and the device reports no other error.
var ErrShortWrite = errors.New("device: short write")

// Device is the storage collaborator owned by the paged allocator.
// Addresses passed to a Device are relative to the device's own
// first-valid-address; the allocator subtracts its base before calling.
//
// Implementations must be safe for concurrent ReadAt calls. WriteAt calls
// are serialized by the allocator's flush worker pool: a Device never
// observes two in-flight WriteAt calls to the same byte range.
type Device interface {
	ReadAt(ctx context.Context, dst []byte, offset int64) (int, error)
	WriteAt(ctx context.Context, p []byte, offset int64) error
	Sync(ctx context.Context) error
	Close() error
}
