package flog

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational
// metrics. Implement this interface to integrate with monitoring
// systems like Prometheus.
type MetricsCollector interface {
	// RecordAppend is called after each successful TryAppend, and so after
	// each successful Enqueue.
	RecordAppend(duration time.Duration, bytes int, err error)
	// RecordCommit is called after each commit callback invocation.
	RecordCommit(duration time.Duration, err error)
	// RecordFlush is called after each allocator flush completion.
	RecordFlush(bytes int, err error)
	// RecordRead is called after each ReadAsync.
	RecordRead(duration time.Duration, bytes int, err error)
	// RecordTruncate is called after each TruncateUntil.
	RecordTruncate(err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAppend(time.Duration, int, error) {}
func (NoopMetricsCollector) RecordCommit(time.Duration, error)      {}
func (NoopMetricsCollector) RecordFlush(int, error)                 {}
func (NoopMetricsCollector) RecordRead(time.Duration, int, error)   {}
func (NoopMetricsCollector) RecordTruncate(error)                   {}

// BasicMetricsCollector provides simple in-memory metrics collection
// using atomic counters, suitable for tests and simple deployments.
type BasicMetricsCollector struct {
	AppendCount      atomic.Int64
	AppendErrors     atomic.Int64
	AppendBytes      atomic.Int64
	AppendTotalNanos atomic.Int64

	CommitCount      atomic.Int64
	CommitErrors     atomic.Int64
	CommitTotalNanos atomic.Int64

	FlushCount  atomic.Int64
	FlushErrors atomic.Int64
	FlushBytes  atomic.Int64

	ReadCount      atomic.Int64
	ReadErrors     atomic.Int64
	ReadTotalNanos atomic.Int64

	TruncateCount  atomic.Int64
	TruncateErrors atomic.Int64
}

func (b *BasicMetricsCollector) RecordAppend(duration time.Duration, bytes int, err error) {
	b.AppendCount.Add(1)
	b.AppendBytes.Add(int64(bytes))
	b.AppendTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AppendErrors.Add(1)
	}
}

func (b *BasicMetricsCollector) RecordCommit(duration time.Duration, err error) {
	b.CommitCount.Add(1)
	b.CommitTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CommitErrors.Add(1)
	}
}

func (b *BasicMetricsCollector) RecordFlush(bytes int, err error) {
	b.FlushCount.Add(1)
	b.FlushBytes.Add(int64(bytes))
	if err != nil {
		b.FlushErrors.Add(1)
	}
}

func (b *BasicMetricsCollector) RecordRead(duration time.Duration, bytes int, err error) {
	b.ReadCount.Add(1)
	b.ReadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ReadErrors.Add(1)
	}
}

func (b *BasicMetricsCollector) RecordTruncate(err error) {
	b.TruncateCount.Add(1)
	if err != nil {
		b.TruncateErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AppendCount:   b.AppendCount.Load(),
		AppendErrors:  b.AppendErrors.Load(),
		AppendBytes:   b.AppendBytes.Load(),
		CommitCount:   b.CommitCount.Load(),
		CommitErrors:  b.CommitErrors.Load(),
		FlushCount:    b.FlushCount.Load(),
		FlushErrors:   b.FlushErrors.Load(),
		FlushBytes:    b.FlushBytes.Load(),
		ReadCount:     b.ReadCount.Load(),
		ReadErrors:    b.ReadErrors.Load(),
		TruncateCount: b.TruncateCount.Load(),
	}
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AppendCount   int64
	AppendErrors  int64
	AppendBytes   int64
	CommitCount   int64
	CommitErrors  int64
	FlushCount    int64
	FlushErrors   int64
	FlushBytes    int64
	ReadCount     int64
	ReadErrors    int64
	TruncateCount int64
}
