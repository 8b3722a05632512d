package alloc

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/flogdb/flog/device"
	"github.com/flogdb/flog/engine"
	"github.com/flogdb/flog/epoch"
	"github.com/flogdb/flog/resource"
)

const (
	// DefaultPageSize is used when WithPageSize is not given or is given
	// a value of zero or less.
	DefaultPageSize = 4 << 20 // 4 MiB
	// DefaultRingPages is used when WithRingPages is not given or is
	// given a value of zero or less.
	DefaultRingPages = 8
)

// FlushFunc is invoked on every durable flush completion with the new
// FlushedUntilAddress.
type FlushFunc func(flushedUntil int64)

type options struct {
	pageSize    int
	ringPages   int
	flushWorker *engine.WorkerPool
	ownsWorker  bool
	resources   *resource.Controller
	device      device.Device
	epochMgr    *epoch.Manager
	ownsEpoch   bool
	onFlush     FlushFunc
	logger      logSink
	metrics     metricsSink
}

// Option configures an Allocator.
type Option func(*options)

// WithPageSize sets the fixed size of each page. Rounded up to a power of
// two, matching the backing off-heap mapping granularity.
func WithPageSize(n int) Option {
	return func(o *options) { o.pageSize = n }
}

// WithRingPages sets how many pages may be resident in memory at once.
// A larger ring tolerates a slower flusher before TryAllocate starts
// failing with back-pressure.
func WithRingPages(n int) Option {
	return func(o *options) { o.ringPages = n }
}

// WithFlushWorkers sets the number of goroutines draining closed pages to
// the device. Defaults to a small worker pool sized for a local disk.
func WithFlushWorkers(n int) Option {
	return func(o *options) {
		o.flushWorker = engine.NewWorkerPool(n)
		o.ownsWorker = true
	}
}

// WithResourceController bounds resident page memory, flush concurrency,
// and flush throughput using a shared resource.Controller.
func WithResourceController(c *resource.Controller) Option {
	return func(o *options) { o.resources = c }
}

// WithDevice sets the storage device pages are flushed to and cold reads
// are served from.
func WithDevice(d device.Device) Option {
	return func(o *options) { o.device = d }
}

// WithEpochManager sets the epoch manager used to defer page unmapping
// until no reader holds a physical pointer into it.
func WithEpochManager(m *epoch.Manager) Option {
	return func(o *options) { o.epochMgr = m }
}

// WithFlushCallback registers the function invoked on every flush
// completion with the new FlushedUntilAddress.
func WithFlushCallback(fn FlushFunc) Option {
	return func(o *options) { o.onFlush = fn }
}

// WithLogger sets the structured log sink. Defaults to a no-op.
func WithLogger(l logSink) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics sink. Defaults to a no-op.
func WithMetrics(m metricsSink) Option {
	return func(o *options) { o.metrics = m }
}

func defaultOptions() *options {
	return &options{
		pageSize:  DefaultPageSize,
		ringPages: DefaultRingPages,
		logger:    noopLogSink{},
		metrics:   noopMetricsSink{},
	}
}

// logSink and metricsSink are minimal interfaces so this package does not
// import the root ambient-stack types directly; flog.Logger and
// flog.MetricsCollector satisfy them structurally.
type logSink interface {
	LogFlush(page int64, bytes int, err error)
}

type metricsSink interface {
	RecordFlush(bytes int, err error)
}

type noopLogSink struct{}

func (noopLogSink) LogFlush(int64, int, error) {}

type noopMetricsSink struct{}

func (noopMetricsSink) RecordFlush(int, error) {}

// The retired-slot set behind Stats.RetiredSlots is a roaring bitmap that
// compactly records which ring slots are currently retired and awaiting
// reuse.
func newRetiredSet() *roaring.Bitmap { return roaring.New() }
