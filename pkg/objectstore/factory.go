package objectstore

import (
	"context"
	"fmt"

	"github.com/cardworks/appraisal/pkg/config"
)

// New selects an object-store backend from configuration.
func New(ctx context.Context, cfg *config.Config) (ObjectStore, error) {
	policy := UploadPolicy{
		MaxSizeBytes: cfg.MaxUploadSize,
		AllowedMime:  cfg.UploadAllowedMime,
	}

	switch cfg.ObjectStoreBackend {
	case "s3":
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:   cfg.UploadBucket,
			Region:   cfg.AWSRegion,
			Endpoint: cfg.S3Endpoint,
			Policy:   policy,
		})
	case "gcs":
		return newGCSBackend(ctx, cfg.UploadBucket, policy)
	default:
		return nil, fmt.Errorf("unknown object store backend %q", cfg.ObjectStoreBackend)
	}
}
