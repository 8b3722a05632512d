// Package blobstore provides a small key-blob storage abstraction used by
// the commit manager to persist the recovery record durably, optionally
// behind a cloud object store.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem, mmap-backed reads
//   - MemoryStore: in-memory, for tests and ephemeral logs
//   - s3.Store: Amazon S3 with range reads and streamed uploads
//   - minio.Store: MinIO / any S3-compatible endpoint
//
// commit/fsmanager and commit/s3dynamo persist the recovery record through
// this interface rather than talking to a filesystem or bucket directly, so
// a Log can move between local disk and an object store without any change
// to the commit path.
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Create(ctx, name) (WritableBlob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
