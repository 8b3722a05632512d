package engine

import "errors"

// ErrPoolClosed is returned by WorkerPool.Submit once the pool has been
// closed.
var ErrPoolClosed = errors.New("engine: worker pool closed")
