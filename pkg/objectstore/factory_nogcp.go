//go:build !gcp

package objectstore

import (
	"context"
	"fmt"
)

func newGCSBackend(ctx context.Context, bucket string, policy UploadPolicy) (ObjectStore, error) {
	return nil, fmt.Errorf("gcs backend requires building with -tags gcp")
}
