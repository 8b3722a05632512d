// Package flog provides a high-throughput, persistent append-only log.
//
// This file implements the fluent builder API for opening a Log.
// Builders are immutable - each method returns a new builder with the
// updated configuration.
package flog

import (
	"context"
	"fmt"

	"github.com/flogdb/flog/codec"
	"github.com/flogdb/flog/commit"
	"github.com/flogdb/flog/commit/fsmanager"
	"github.com/flogdb/flog/device"
	"github.com/flogdb/flog/device/fsdevice"
	"github.com/flogdb/flog/resource"
)

// Local creates a new Builder rooted at dir, using fsdevice for page
// storage and fsmanager for commit metadata, both under dir.
//
// The builder is immutable - each method returns a new builder with the
// updated configuration. This ensures thread-safety and prevents
// accidental state sharing.
//
// Example:
//
//	lg, err := flog.Local("./data").
//	    PageSize(4 << 20).
//	    RingPages(16).
//	    FlushRateLimit(64 << 20).
//	    Open(ctx)
func Local(dir string) Builder {
	return Builder{
		dir:       dir,
		pageSize:  DefaultPageSize,
		ringPages: DefaultRingPages,
		codec:     codec.Default,
	}
}

// Builder is an immutable fluent builder for opening a Log. Each method
// returns a new builder with the updated configuration.
type Builder struct {
	dir       string
	pageSize  int
	ringPages int

	flushWorkers int
	resources    *resource.Controller
	rateLimit    int64
	maxInFlight  int64
	compression  *device.Algorithm

	codec         codec.Codec
	logger        *Logger
	metrics       MetricsCollector
	memSupplier   func(n int) []byte
	device        device.Device
	commitManager commit.Manager
}

// PageSize sets the allocator's fixed page size in bytes. Default 4 MiB.
func (b Builder) PageSize(n int) Builder {
	b.pageSize = n
	return b
}

// RingPages sets how many pages the allocator keeps resident before
// TryAllocate starts failing with back-pressure. Default 8.
func (b Builder) RingPages(n int) Builder {
	b.ringPages = n
	return b
}

// FlushWorkers sets the number of goroutines draining closed pages to
// the device.
func (b Builder) FlushWorkers(n int) Builder {
	b.flushWorkers = n
	return b
}

// FlushRateLimit bounds flush throughput in bytes/sec. Combines with
// MaxInFlightFlushes into a single resource.Controller.
func (b Builder) FlushRateLimit(bytesPerSec int64) Builder {
	b.rateLimit = bytesPerSec
	return b
}

// MaxInFlightFlushes bounds how many page flushes may be in flight at
// once. Combines with FlushRateLimit into a single resource.Controller.
func (b Builder) MaxInFlightFlushes(n int64) Builder {
	b.maxInFlight = n
	return b
}

// ResourceController sets the resource.Controller directly, overriding
// FlushRateLimit/MaxInFlightFlushes, letting a caller share one
// controller's budget across multiple logs.
func (b Builder) ResourceController(c *resource.Controller) Builder {
	b.resources = c
	return b
}

// Compression wraps the device (whether constructed from the builder's
// directory or set via Device) with device.WithCompression, compressing
// each flushed page independently.
func (b Builder) Compression(algo device.Algorithm) Builder {
	b.compression = &algo
	return b
}

// Codec sets the codec used to encode the recovery record. Defaults to
// codec.Default (GoJSON).
func (b Builder) Codec(c codec.Codec) Builder {
	if c == nil {
		c = codec.Default
	}
	b.codec = c
	return b
}

// Logger sets the structured logger. Defaults to a no-op.
func (b Builder) Logger(l *Logger) Builder {
	b.logger = l
	return b
}

// Metrics sets the metrics collector. Defaults to a no-op.
func (b Builder) Metrics(m MetricsCollector) Builder {
	b.metrics = m
	return b
}

// MemorySupplier lets callers pool ReadAsync destination buffers instead
// of allocating a fresh one per read.
func (b Builder) MemorySupplier(fn func(n int) []byte) Builder {
	b.memSupplier = fn
	return b
}

// Device overrides the storage device that would otherwise be
// constructed from the builder's directory via fsdevice.
func (b Builder) Device(d device.Device) Builder {
	b.device = d
	return b
}

// CommitManager overrides the commit manager that would otherwise be
// constructed from the builder's directory via fsmanager.
func (b Builder) CommitManager(m commit.Manager) Builder {
	b.commitManager = m
	return b
}

// Open constructs the device and commit manager (unless overridden) and
// opens the Log, recovering from any existing commit metadata.
func (b Builder) Open(ctx context.Context) (*Log, error) {
	dev := b.device
	if dev == nil {
		if b.dir == "" {
			return nil, fmt.Errorf("flog: Local builder requires a directory or an explicit Device")
		}
		d, err := fsdevice.New(b.dir, int64(pageSizeOrDefault(b.pageSize)))
		if err != nil {
			return nil, fmt.Errorf("flog: open device: %w", err)
		}
		dev = d
	}
	if b.compression != nil {
		dev = device.WithCompression(dev, int64(pageSizeOrDefault(b.pageSize)), *b.compression)
	}

	mgr := b.commitManager
	if mgr == nil {
		if b.dir == "" {
			return nil, fmt.Errorf("flog: Local builder requires a directory or an explicit CommitManager")
		}
		mgr = fsmanager.New(b.dir)
	}

	opts := []Option{
		WithPageSize(b.pageSize),
		WithRingPages(b.ringPages),
		WithCodec(b.codec),
	}
	if b.flushWorkers > 0 {
		opts = append(opts, WithFlushWorkers(b.flushWorkers))
	}
	if b.logger != nil {
		opts = append(opts, WithLogger(b.logger))
	}
	if b.metrics != nil {
		opts = append(opts, WithMetrics(b.metrics))
	}
	if b.memSupplier != nil {
		opts = append(opts, WithMemorySupplier(b.memSupplier))
	}
	switch {
	case b.resources != nil:
		opts = append(opts, WithResourceController(b.resources))
	case b.rateLimit > 0 || b.maxInFlight > 0:
		opts = append(opts, WithResourceController(resource.NewController(resource.Config{
			IOLimitBytesPerSec:   b.rateLimit,
			MaxBackgroundWorkers: b.maxInFlight,
		})))
	}

	return Open(ctx, dev, mgr, opts...)
}

func pageSizeOrDefault(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	return n
}
