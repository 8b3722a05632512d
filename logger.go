package flog

import (
	"context"
	"log/slog"
	"os"

	"github.com/flogdb/flog/core"
)

// Logger wraps slog.Logger with flog-specific convenience methods and
// consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler. If handler is
// nil, uses a default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(1000)}))}
}

// LogAppend logs a TryAppend outcome.
func (l *Logger) LogAppend(ctx context.Context, addr core.Address, n int, ok bool) {
	if !ok {
		l.DebugContext(ctx, "append transiently full", "bytes", n)
		return
	}
	l.DebugContext(ctx, "append completed", "address", int64(addr), "bytes", n)
}

// LogCommit logs a commit callback outcome.
func (l *Logger) LogCommit(ctx context.Context, begin, until int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "commit failed", "begin", begin, "until", until, "error", err)
		return
	}
	l.InfoContext(ctx, "commit completed", "begin", begin, "until", until)
}

// LogFlush logs an allocator flush completion.
func (l *Logger) LogFlush(page int64, bytes int, err error) {
	if err != nil {
		l.Error("flush failed", "page", page, "bytes", bytes, "error", err)
		return
	}
	l.Debug("flush completed", "page", page, "bytes", bytes)
}

// LogRead logs a ReadAsync outcome.
func (l *Logger) LogRead(ctx context.Context, addr core.Address, n int, err error) {
	if err != nil {
		l.WarnContext(ctx, "read failed", "address", int64(addr), "error", err)
		return
	}
	l.DebugContext(ctx, "read completed", "address", int64(addr), "bytes", n)
}

// LogTruncate logs a TruncateUntil call.
func (l *Logger) LogTruncate(ctx context.Context, addr core.Address) {
	l.InfoContext(ctx, "truncated", "until", int64(addr))
}

// LogRecover logs the outcome of restoring from a commit manager on Open.
func (l *Logger) LogRecover(ctx context.Context, begin, flushed core.Address, fresh bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "recovery failed", "error", err)
		return
	}
	if fresh {
		l.InfoContext(ctx, "starting fresh log")
		return
	}
	l.InfoContext(ctx, "recovered log", "begin", int64(begin), "flushed", int64(flushed))
}
