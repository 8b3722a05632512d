// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store := s3.NewStore(client, "my-bucket", "log/") // client is an *s3.Client from the AWS SDK
//	dev := blobdevice.New(store, pageSize, "")
//
// # Features
//
//   - Range reads for efficient partial fetches
//   - Multipart uploads for large segments
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
