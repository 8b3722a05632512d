package flog

import (
	"github.com/flogdb/flog/alloc"
	"github.com/flogdb/flog/codec"
	"github.com/flogdb/flog/commit"
	"github.com/flogdb/flog/device"
	"github.com/flogdb/flog/resource"
)

const (
	// DefaultPageSize is used when no WithPageSize option is given.
	DefaultPageSize = alloc.DefaultPageSize
	// DefaultRingPages is used when no WithRingPages option is given.
	DefaultRingPages = alloc.DefaultRingPages
)

type options struct {
	pageSize     int
	ringPages    int
	flushWorkers int

	resources         *resource.Controller
	resourceConfig    resource.Config
	resourceConfigSet bool

	codec         codec.Codec
	logger        *Logger
	metrics       MetricsCollector
	memSupplier   func(n int) []byte
	device        device.Device
	commitManager commit.Manager
}

// resolveResources builds o.resources from any WithFlushRateLimit/
// WithMaxInFlightFlushes calls, unless WithResourceController already set
// one explicitly (which always wins).
func (o *options) resolveResources() {
	if o.resources != nil || !o.resourceConfigSet {
		return
	}
	o.resources = resource.NewController(o.resourceConfig)
}

// Option configures Open/Builder behavior.
type Option func(*options)

// WithPageSize sets the allocator's fixed page size. Rounded up to a
// power of two.
func WithPageSize(n int) Option {
	return func(o *options) { o.pageSize = n }
}

// WithRingPages sets how many pages the allocator keeps resident before
// TryAllocate starts failing with back-pressure.
func WithRingPages(n int) Option {
	return func(o *options) { o.ringPages = n }
}

// WithFlushWorkers sets the number of goroutines draining closed pages
// to the device.
func WithFlushWorkers(n int) Option {
	return func(o *options) { o.flushWorkers = n }
}

// WithFlushRateLimit bounds flush throughput in bytes/sec using a shared
// resource.Controller, so a burst of closed pages cannot saturate local
// disk or cloud upload bandwidth. Combines with WithMaxInFlightFlushes;
// both merge into a single Config unless WithResourceController overrides
// them outright.
func WithFlushRateLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.resourceConfig.IOLimitBytesPerSec = bytesPerSec
		o.resourceConfigSet = true
	}
}

// WithMaxInFlightFlushes bounds how many page flushes may be in flight at
// once via a shared resource.Controller background-worker semaphore.
// Combines with WithFlushRateLimit; see its doc comment.
func WithMaxInFlightFlushes(n int64) Option {
	return func(o *options) {
		o.resourceConfig.MaxBackgroundWorkers = n
		o.resourceConfigSet = true
	}
}

// WithResourceController sets the resource.Controller directly, letting
// a caller share one controller's budget across multiple logs.
func WithResourceController(c *resource.Controller) Option {
	return func(o *options) { o.resources = c }
}

// WithCodec sets the codec used to encode the recovery record. Defaults
// to codec.Default (GoJSON).
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithLogger sets the structured logger. Defaults to a no-op.
func WithLogger(l *Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics collector. Defaults to a no-op.
func WithMetrics(m MetricsCollector) Option {
	return func(o *options) { o.metrics = m }
}

// WithMemorySupplier lets callers pool ReadAsync destination buffers
// instead of allocating a fresh one per read.
func WithMemorySupplier(fn func(n int) []byte) Option {
	return func(o *options) { o.memSupplier = fn }
}

// WithDevice sets the storage device, for callers constructing via
// options alone rather than Open's positional parameter.
func WithDevice(d device.Device) Option {
	return func(o *options) { o.device = d }
}

// WithCommitManager sets the commit manager, for callers constructing
// via options alone rather than Open's positional parameter.
func WithCommitManager(m commit.Manager) Option {
	return func(o *options) { o.commitManager = m }
}

func defaultOptions() *options {
	return &options{
		pageSize:     DefaultPageSize,
		ringPages:    DefaultRingPages,
		flushWorkers: 0,
		codec:        codec.Default,
		logger:       NoopLogger(),
		metrics:      NoopMetricsCollector{},
	}
}
