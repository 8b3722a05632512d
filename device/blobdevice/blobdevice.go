// Package blobdevice implements device.Device over any blobstore.BlobStore,
// segmenting pages into one blob per page index. s3device and miniodevice
// are thin constructors over this shared implementation.
package blobdevice

import (
	"context"
	"fmt"

	"github.com/flogdb/flog/blobstore"
	"github.com/flogdb/flog/device"
)

// Device stores each page as its own blob named by the page's index.
type Device struct {
	store      blobstore.BlobStore
	pageSize   int64
	rootPrefix string
}

// New creates a Device over store, segmenting pages of pageSize bytes
// each into their own blob under rootPrefix.
func New(store blobstore.BlobStore, pageSize int64, rootPrefix string) *Device {
	return &Device{store: store, pageSize: pageSize, rootPrefix: rootPrefix}
}

func (d *Device) blobName(page int64) string {
	return fmt.Sprintf("%spage-%020d.seg", d.rootPrefix, page)
}

// ReadAt reads dst starting at offset; offset and len(dst) must not span
// a page boundary (the allocator never issues a read request that does).
func (d *Device) ReadAt(ctx context.Context, dst []byte, offset int64) (int, error) {
	page := offset / d.pageSize
	within := offset % d.pageSize

	blob, err := d.store.Open(ctx, d.blobName(page))
	if err != nil {
		if err == blobstore.ErrNotFound {
			return 0, nil
		}
		return 0, err
	}
	defer blob.Close()

	return blob.ReadAt(ctx, dst, within)
}

// WriteAt writes the entirety of a page in one call; p must not span a
// page boundary, matching the allocator's flush granularity.
func (d *Device) WriteAt(ctx context.Context, p []byte, offset int64) error {
	page := offset / d.pageSize
	within := offset % d.pageSize
	if within != 0 {
		return fmt.Errorf("blobdevice: partial-page write at offset %d unsupported", offset)
	}
	return d.store.Put(ctx, d.blobName(page), p)
}

// Sync is a no-op: Put already durably persists each page synchronously.
func (d *Device) Sync(ctx context.Context) error { return nil }

// Close releases no resources of its own; the underlying store outlives
// the Device.
func (d *Device) Close() error { return nil }

// TruncateUntil removes every page blob that lies entirely below
// beginOffset.
func (d *Device) TruncateUntil(ctx context.Context, beginOffset int64) error {
	lastFullPage := beginOffset/d.pageSize - 1
	for page := int64(0); page <= lastFullPage; page++ {
		if err := d.store.Delete(ctx, d.blobName(page)); err != nil && err != blobstore.ErrNotFound {
			return err
		}
	}
	return nil
}

var _ device.Device = (*Device)(nil)
