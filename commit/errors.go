package commit

import "errors"

// ErrDisposed is the terminal error pending and future commit futures
// are completed with once the Coordinator is disposed.
var ErrDisposed = errors.New("commit: coordinator disposed")
