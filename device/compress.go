package device

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm names a page-compression codec usable with WithCompression.
type Algorithm int

const (
	// LZ4 favors compression/decompression speed over ratio.
	LZ4 Algorithm = iota
	// Zstd favors compression ratio over speed.
	Zstd
)

func (a Algorithm) compress(dst *bytes.Buffer, src []byte) error {
	switch a {
	case LZ4:
		w := lz4.NewWriter(dst)
		if _, err := w.Write(src); err != nil {
			return err
		}
		return w.Close()
	case Zstd:
		w, err := zstd.NewWriter(dst)
		if err != nil {
			return err
		}
		if _, err := w.Write(src); err != nil {
			return err
		}
		return w.Close()
	default:
		return fmt.Errorf("device: unknown compression algorithm %d", a)
	}
}

func (a Algorithm) decompress(src []byte) ([]byte, error) {
	switch a {
	case LZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(src)))
	case Zstd:
		r, err := zstd.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("device: unknown compression algorithm %d", a)
	}
}

// compressingDevice wraps a Device, compressing each page independently
// before WriteAt and decompressing a full page on the first ReadAt that
// touches it, caching the decompressed bytes for subsequent reads within
// the same page so random reads never decompress more than one page.
type compressingDevice struct {
	inner    Device
	pageSize int64
	algo     Algorithm

	mu        sync.Mutex
	cachedIdx int64
	cached    []byte
	cacheSet  bool
}

// WithCompression wraps inner so every page is compressed with algo
// before being written and transparently decompressed on read, trading
// CPU for flushed bytes. pageSize must match the allocator's page size.
func WithCompression(inner Device, pageSize int64, algo Algorithm) Device {
	return &compressingDevice{inner: inner, pageSize: pageSize, algo: algo}
}

func (d *compressingDevice) WriteAt(ctx context.Context, p []byte, offset int64) error {
	if offset%d.pageSize != 0 {
		return fmt.Errorf("device: compressed write at non-page-aligned offset %d", offset)
	}
	var buf bytes.Buffer
	if err := d.algo.compress(&buf, p); err != nil {
		return fmt.Errorf("device: compress page: %w", err)
	}

	d.mu.Lock()
	d.cachedIdx = offset / d.pageSize
	d.cached = append([]byte(nil), p...)
	d.cacheSet = true
	d.mu.Unlock()

	return d.inner.WriteAt(ctx, buf.Bytes(), offset)
}

func (d *compressingDevice) ReadAt(ctx context.Context, dst []byte, offset int64) (int, error) {
	page := offset / d.pageSize
	within := offset % d.pageSize

	plain, err := d.decompressedPage(ctx, page)
	if err != nil {
		return 0, err
	}
	if within > int64(len(plain)) {
		return 0, io.EOF
	}
	n := copy(dst, plain[within:])
	if n < len(dst) {
		return n, io.EOF
	}
	return n, nil
}

func (d *compressingDevice) decompressedPage(ctx context.Context, page int64) ([]byte, error) {
	d.mu.Lock()
	if d.cacheSet && d.cachedIdx == page {
		plain := d.cached
		d.mu.Unlock()
		return plain, nil
	}
	d.mu.Unlock()

	raw := make([]byte, int(d.pageSize))
	n, err := d.inner.ReadAt(ctx, raw, page*d.pageSize)
	if err != nil && err != io.EOF {
		return nil, err
	}
	plain, derr := d.algo.decompress(raw[:n])
	if derr != nil {
		return nil, fmt.Errorf("device: decompress page %d: %w", page, derr)
	}

	d.mu.Lock()
	d.cachedIdx = page
	d.cached = plain
	d.cacheSet = true
	d.mu.Unlock()

	return plain, nil
}

func (d *compressingDevice) Sync(ctx context.Context) error { return d.inner.Sync(ctx) }
func (d *compressingDevice) Close() error                   { return d.inner.Close() }

var _ Device = (*compressingDevice)(nil)
