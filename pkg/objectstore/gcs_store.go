//go:build gcp

package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"

	"github.com/cardworks/appraisal/pkg/contracts"
	"github.com/cardworks/appraisal/pkg/util/resiliency"
)

// GCSStore implements ObjectStore using Google Cloud Storage.
type GCSStore struct {
	client *storage.Client
	bucket string
	policy UploadPolicy
	gate   *resiliency.Gate
}

// GCSStoreConfig holds configuration for GCSStore.
type GCSStoreConfig struct {
	Bucket string
	Policy UploadPolicy
}

// NewGCSStore creates a new GCS-backed image store (uses ADC credentials).
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{
		client: client,
		bucket: cfg.Bucket,
		policy: cfg.Policy,
		gate:   resiliency.NewGate("gcs", 32, 64),
	}, nil
}

// Get fetches raw image bytes by key.
func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.Release()

	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, contracts.NewFault(contracts.KindNotFound, err)
		}
		return nil, contracts.NewFault(contracts.KindTransient, fmt.Errorf("gcs read failed for %s: %w", key, err))
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, contracts.NewFault(contracts.KindTransient, fmt.Errorf("gcs read failed for %s: %w", key, err))
	}
	return data, nil
}

// Delete removes an object; a missing object is treated as success.
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return contracts.NewFault(contracts.KindTransient, fmt.Errorf("gcs delete failed for %s: %w", key, err))
	}
	return nil
}

// PresignPut returns a V4 signed PUT URL after policy validation.
func (s *GCSStore) PresignPut(ctx context.Context, key, contentType string, sizeBytes int64, ttl time.Duration) (string, error) {
	if err := s.policy.Validate(contentType, sizeBytes); err != nil {
		return "", err
	}

	url, err := s.client.Bucket(s.bucket).SignedURL(key, &storage.SignedURLOptions{
		Method:      "PUT",
		Expires:     time.Now().Add(ClampTTL(ttl)),
		ContentType: contentType,
		Scheme:      storage.SigningSchemeV4,
	})
	if err != nil {
		return "", contracts.NewFault(contracts.KindTransient, fmt.Errorf("gcs presign failed for %s: %w", key, err))
	}
	return url, nil
}
