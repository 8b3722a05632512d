// Package commit implements the commit coordinator: serialization of
// commit-metadata writes, the monotonic CommittedBeginAddress /
// CommittedUntilAddress watermarks, and the one-shot completion future
// producers subscribe to.
package commit

import "context"

// Manager persists and retrieves the log's recovery record durably. The
// Log owns exactly one instance; fsmanager and s3dynamo are the two
// built-in implementations.
type Manager interface {
	// Commit persists {beginAddress, flushedUntilAddress, metadata}
	// durably before returning.
	Commit(ctx context.Context, beginAddress, flushedUntilAddress int64, metadata []byte) error
	// GetCommitMetadata retrieves the most recently committed blob, or
	// nil if the log has never committed.
	GetCommitMetadata(ctx context.Context) ([]byte, error)
}
