// Package engine holds small concurrency runtime helpers: a fixed-size
// worker pool, used by the allocator to drain closed pages to storage, and
// a panic-recovering goroutine launcher (GoSafe) for background work that
// must not take the process down.
package engine
