// Package miniodevice implements device.Device over any S3-compatible
// endpoint reachable through the minio client, for self-hosted object
// storage deployments.
package miniodevice

import (
	"github.com/minio/minio-go/v7"

	minioblob "github.com/flogdb/flog/blobstore/minio"
	"github.com/flogdb/flog/device"
	"github.com/flogdb/flog/device/blobdevice"
)

// New creates a device.Device that flushes pages of pageSize bytes each
// to their own object under rootPrefix in bucket.
func New(client *minio.Client, bucket, rootPrefix string, pageSize int64) device.Device {
	store := minioblob.NewStore(client, bucket, rootPrefix)
	return blobdevice.New(store, pageSize, "")
}
