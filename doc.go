// Package flog provides a high-throughput, persistent append-only log:
// a durable record store optimized for concurrent producers writing
// variable-length byte entries, with asynchronous flushing to storage
// and explicit commit boundaries.
//
// Records, once committed, are stable and scannable in insertion order
// until a caller truncates the prefix. There is no random insertion,
// deletion other than prefix truncation, cross-entry transactions,
// secondary indexing, or schema.
//
// # Quick Start
//
// Local mode:
//
//	ctx := context.Background()
//	l, _ := flog.Local("./data").Open(ctx)  // creates or reopens
//	defer l.Dispose()
//
//	addr, _ := l.Enqueue(ctx, []byte("hello"))
//	l.Commit(ctx, true) // spin-wait for durability
//
//	data, _ := l.ReadAsync(ctx, addr, 0)
//
// Cloud mode, via an explicit device and commit manager:
//
//	dev := s3device.New(s3Client, "my-bucket", "log/", flog.DefaultPageSize)
//	mgr := s3dynamo.New(store, ddbClient, "flog-commits", "log-a")
//	l, _ := flog.Open(ctx, dev, mgr)
//
// # Durability Model
//
// Appends land in memory immediately and are visible to readers once
// committed. A record is durable once CommittedUntilAddress has passed
// its end:
//
//	addr, _ := l.EnqueueAndWaitForCommit(ctx, payload) // blocks until a flush or Commit covers it
//
// # Key Components
//
//   - Epoch-based reclamation (epoch) guards every physical pointer the
//     allocator hands back, so page memory is freed without locks on the
//     read/append hot path.
//   - A lock-free bump-pointer paged allocator (alloc) over a ring of
//     fixed-size pages, flushed asynchronously to a device.Device.
//   - A commit coordinator (commit) serializing metadata writes and
//     signaling waiters via a one-shot completion future.
package flog
