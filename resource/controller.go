package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds the resource limits a Controller enforces over an
// allocator's page ring and flush path.
type Config struct {
	// MemoryLimitBytes bounds how many bytes of resident ring pages the
	// allocator may keep mapped at once, beyond the single page that is
	// always resident. If 0, the ring is bounded only by RingPages.
	MemoryLimitBytes int64

	// MaxBackgroundWorkers is the maximum number of page flushes allowed
	// in flight at once. If 0, defaults to 1.
	MaxBackgroundWorkers int64

	// IOLimitBytesPerSec caps flush throughput to the device. If 0,
	// unlimited.
	IOLimitBytesPerSec int64
}

// Controller enforces Config's limits over a page ring's resident memory
// and its background flush concurrency and throughput.
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Concurrency
	bgSem *semaphore.Weighted

	// IO
	ioLimiter *rate.Limiter
}

// NewController creates a Controller bounding page-ring memory and flush
// concurrency/throughput according to cfg.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundWorkers <= 0 {
		cfg.MaxBackgroundWorkers = 1
	}

	c := &Controller{
		cfg:   cfg,
		bgSem: semaphore.NewWeighted(cfg.MaxBackgroundWorkers),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// AcquireMemory reserves bytes of ring-page memory, blocking until a
// configured MemoryLimitBytes has room or ctx is canceled.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil {
		return nil
	}
	if bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}

	c.memUsed.Add(bytes)
	return nil
}

// TryAcquireMemory reserves bytes of ring-page memory without blocking,
// used by the allocator to gate opening another resident page. Returns
// false if the reservation would exceed MemoryLimitBytes.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil {
		return true
	}
	if bytes <= 0 {
		return true
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return false
		}
	}

	c.memUsed.Add(bytes)
	return true
}

// ReleaseMemory gives back bytes reserved for a page that has been
// unmapped after retirement.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil {
		return
	}
	if bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current resident-page memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	return c.memUsed.Load()
}

// AcquireBackground reserves a flush-worker slot, blocking if
// MaxBackgroundWorkers are already busy flushing pages.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	return c.bgSem.Acquire(ctx, 1)
}

// ReleaseBackground releases a flush-worker slot claimed by
// AcquireBackground or AcquireFlush.
func (c *Controller) ReleaseBackground() {
	c.bgSem.Release(1)
}

// AcquireIO waits until IOLimitBytesPerSec allows writing n more bytes to
// the device.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c.ioLimiter == nil {
		return nil
	}
	return c.ioLimiter.WaitN(ctx, bytes)
}

// TryAcquireBackground reserves a flush-worker slot without blocking.
func (c *Controller) TryAcquireBackground() bool {
	return c.bgSem.TryAcquire(1)
}

// AcquireFlush reserves a flush-worker slot and then waits for the IO
// limiter to admit n bytes, the two checks flushPage needs before writing
// one closed page to the device. On IO-limiter failure the worker slot is
// released before returning. The caller must pair a successful call with
// ReleaseBackground once the flush completes.
func (c *Controller) AcquireFlush(ctx context.Context, n int) error {
	if err := c.AcquireBackground(ctx); err != nil {
		return err
	}
	if err := c.AcquireIO(ctx, n); err != nil {
		c.ReleaseBackground()
		return err
	}
	return nil
}
