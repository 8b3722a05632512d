package commit

import (
	"context"
	"time"
)

// logSink and metricsSink are minimal interfaces so this package does not
// import the root ambient-stack types directly; flog.Logger and
// flog.MetricsCollector satisfy them structurally.
type logSink interface {
	LogCommit(ctx context.Context, beginAddress, flushedUntilAddress int64, err error)
}

type metricsSink interface {
	RecordCommit(duration time.Duration, err error)
}

type noopLogSink struct{}

func (noopLogSink) LogCommit(context.Context, int64, int64, error) {}

type noopMetricsSink struct{}

func (noopMetricsSink) RecordCommit(time.Duration, error) {}

// Option configures a Coordinator.
type Option func(*coordinatorOptions)

type coordinatorOptions struct {
	logger  logSink
	metrics metricsSink
}

// WithLogger sets the structured log sink. Defaults to a no-op.
func WithLogger(l logSink) Option {
	return func(o *coordinatorOptions) { o.logger = l }
}

// WithMetrics sets the metrics sink. Defaults to a no-op.
func WithMetrics(m metricsSink) Option {
	return func(o *coordinatorOptions) { o.metrics = m }
}

func defaultCoordinatorOptions() *coordinatorOptions {
	return &coordinatorOptions{logger: noopLogSink{}, metrics: noopMetricsSink{}}
}
