package flog

import (
	"errors"

	"github.com/flogdb/flog/commit"
)

var (
	// ErrOutOfRange is returned by ReadAsync when address is below
	// BeginAddress or at/above CommittedUntilAddress. TryAppend failures
	// are not an error: they are reported as a boolean-false result so
	// the caller's retry loop does not pay allocation/unwrap cost.
	ErrOutOfRange = errors.New("flog: address out of range")

	// ErrCorruptRecord is returned when a read's length prefix is
	// negative or exceeds the page size. No automatic repair is
	// attempted; the caller decides whether to skip or halt.
	ErrCorruptRecord = errors.New("flog: corrupt record")

	// ErrDeviceIO wraps a non-nil status from a device read made by
	// ReadAsync. Flush errors are logged and passed to the metrics
	// collector rather than returned; a failed flush does not advance
	// FlushedUntilAddress, so the log stalls for that range until the
	// device recovers or is replaced.
	ErrDeviceIO = errors.New("flog: device I/O error")

	// ErrDisposed is the terminal error every pending commit future
	// resolves with once the log is disposed, and what WaitForCommit and
	// TruncateUntil return afterward. It is the same value as
	// commit.ErrDisposed.
	ErrDisposed = commit.ErrDisposed
)
