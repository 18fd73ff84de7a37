// Package objectstore reads uploaded card images and presigns write slots.
// Backends: AWS S3 (default) and Google Cloud Storage (build tag "gcp").
package objectstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cardworks/appraisal/pkg/contracts"
)

// MaxPresignTTL caps presigned URL lifetime.
const MaxPresignTTL = 60 * time.Second

// ObjectStore is the image storage interface.
type ObjectStore interface {
	// Get fetches raw object bytes by key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes an object. Missing objects are not an error.
	Delete(ctx context.Context, key string) error

	// PresignPut returns a time-limited upload URL after validating size and
	// content type against the upload policy.
	PresignPut(ctx context.Context, key, contentType string, sizeBytes int64, ttl time.Duration) (string, error)
}

// UploadPolicy bounds what presigned uploads may carry.
type UploadPolicy struct {
	MaxSizeBytes int64
	AllowedMime  []string
}

// Validate checks a presign request against the policy.
func (p UploadPolicy) Validate(contentType string, sizeBytes int64) error {
	if p.MaxSizeBytes > 0 && sizeBytes > p.MaxSizeBytes {
		return contracts.Faultf(contracts.KindInvalidInput, "upload size %d exceeds cap %d", sizeBytes, p.MaxSizeBytes)
	}
	if sizeBytes <= 0 {
		return contracts.Faultf(contracts.KindInvalidInput, "upload size must be positive")
	}
	for _, m := range p.AllowedMime {
		if strings.EqualFold(m, contentType) {
			return nil
		}
	}
	return contracts.Faultf(contracts.KindInvalidInput, "content type %q not allowed", contentType)
}

// ValidateOwnedKey refuses keys outside the caller's upload prefix. The vision
// stage calls this before every fetch to prevent cross-tenant reads.
func ValidateOwnedKey(key, ownerID string) error {
	if ownerID == "" {
		return contracts.Faultf(contracts.KindInvalidInput, "empty owner id")
	}
	prefix := fmt.Sprintf("uploads/%s/", ownerID)
	if !strings.HasPrefix(key, prefix) {
		return contracts.Faultf(contracts.KindPermissionDenied, "key %q outside owner prefix", key)
	}
	rest := strings.TrimPrefix(key, prefix)
	if rest == "" || strings.Contains(rest, "..") || strings.Contains(rest, "/") {
		return contracts.Faultf(contracts.KindInvalidInput, "malformed object key %q", key)
	}
	return nil
}

// ClampTTL bounds a requested presign TTL to the maximum.
func ClampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > MaxPresignTTL {
		return MaxPresignTTL
	}
	return ttl
}
