// Package s3device implements device.Device over an S3 bucket, so closed
// pages can be flushed directly to object storage instead of local disk.
package s3device

import (
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	s3blob "github.com/flogdb/flog/blobstore/s3"
	"github.com/flogdb/flog/device"
	"github.com/flogdb/flog/device/blobdevice"
)

// New creates a device.Device that flushes pages of pageSize bytes each
// to their own object under rootPrefix in bucket.
func New(client *awss3.Client, bucket, rootPrefix string, pageSize int64) device.Device {
	store := s3blob.NewStore(client, bucket, rootPrefix)
	return blobdevice.New(store, pageSize, "")
}
