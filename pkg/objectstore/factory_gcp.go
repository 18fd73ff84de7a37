//go:build gcp

package objectstore

import "context"

func newGCSBackend(ctx context.Context, bucket string, policy UploadPolicy) (ObjectStore, error) {
	return NewGCSStore(ctx, GCSStoreConfig{Bucket: bucket, Policy: policy})
}
