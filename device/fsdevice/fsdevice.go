// Package fsdevice implements device.Device over a directory of local
// segment files, one file per page.
package fsdevice

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/flogdb/flog/device"
	"github.com/flogdb/flog/internal/fs"
)

// Device stores each page as its own file named by the page's index, so
// that truncation can unlink whole files instead of rewriting one large
// one.
type Device struct {
	dir      string
	pageSize int64
	fsys     fs.FileSystem

	mu    sync.Mutex
	files map[int64]fs.File
}

// Option configures a Device.
type Option func(*Device)

// WithFileSystem overrides the file system, e.g. with fs.NewFaultyFS for
// crash-consistency tests.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(d *Device) { d.fsys = fsys }
}

// New creates a Device rooted at dir, segmenting pages of pageSize bytes
// each into their own file.
func New(dir string, pageSize int64, opts ...Option) (*Device, error) {
	d := &Device{
		dir:      dir,
		pageSize: pageSize,
		fsys:     fs.Default,
		files:    make(map[int64]fs.File),
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fsdevice: mkdir: %w", err)
	}
	return d, nil
}

func (d *Device) segmentPath(page int64) string {
	return filepath.Join(d.dir, fmt.Sprintf("page-%020d.seg", page))
}

func (d *Device) segmentFor(offset int64, create bool) (fs.File, int64, error) {
	page := offset / d.pageSize
	within := offset % d.pageSize

	d.mu.Lock()
	defer d.mu.Unlock()

	f, ok := d.files[page]
	if !ok {
		flag := os.O_RDWR
		if create {
			flag |= os.O_CREATE
		}
		var err error
		f, err = d.fsys.OpenFile(d.segmentPath(page), flag, 0o644)
		if err != nil {
			return nil, 0, err
		}
		d.files[page] = f
	}
	return f, within, nil
}

// ReadAt reads dst starting at offset; offset and len(dst) must not span
// a page boundary (the allocator never issues a read request that does).
func (d *Device) ReadAt(ctx context.Context, dst []byte, offset int64) (int, error) {
	f, within, err := d.segmentFor(offset, false)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, io.EOF
		}
		return 0, err
	}
	return f.ReadAt(dst, within)
}

// WriteAt writes p starting at offset; p must not span a page boundary.
func (d *Device) WriteAt(ctx context.Context, p []byte, offset int64) error {
	f, within, err := d.segmentFor(offset, true)
	if err != nil {
		return err
	}
	n, err := writeAt(f, p, within)
	if err != nil {
		return err
	}
	if n != len(p) {
		return device.ErrShortWrite
	}
	return nil
}

func writeAt(f fs.File, p []byte, off int64) (int, error) {
	type writerAt interface {
		WriteAt([]byte, int64) (int, error)
	}
	if wa, ok := f.(writerAt); ok {
		return wa.WriteAt(p, off)
	}
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return f.Write(p)
}

// Sync flushes every currently open segment file to stable storage.
func (d *Device) Sync(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range d.files {
		if err := f.Sync(); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every open segment file.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for page, f := range d.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(d.files, page)
	}
	return firstErr
}

// TruncateUntil removes every segment file that lies entirely below
// beginOffset, releasing its disk space.
func (d *Device) TruncateUntil(ctx context.Context, beginOffset int64) error {
	lastFullPage := beginOffset/d.pageSize - 1

	d.mu.Lock()
	defer d.mu.Unlock()
	for page := int64(0); page <= lastFullPage; page++ {
		if f, ok := d.files[page]; ok {
			_ = f.Close()
			delete(d.files, page)
		}
		if err := d.fsys.Remove(d.segmentPath(page)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
