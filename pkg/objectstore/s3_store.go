package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/cardworks/appraisal/pkg/contracts"
	"github.com/cardworks/appraisal/pkg/util/resiliency"
)

// S3Store implements ObjectStore using AWS S3.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	policy  UploadPolicy
	gate    *resiliency.Gate
}

// S3StoreConfig holds configuration for S3Store.
type S3StoreConfig struct {
	Bucket   string
	Region   string
	Endpoint string // Optional custom endpoint (for MinIO, LocalStack, etc.)
	Policy   UploadPolicy
}

// NewS3Store creates a new S3-backed image store.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	clientOpts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO/LocalStack
		}
	}
	client := s3.NewFromConfig(awsCfg, clientOpts)

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		policy:  cfg.Policy,
		gate:    resiliency.NewGate("s3", 32, 64),
	}, nil
}

// Get fetches raw image bytes by key.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.Release()

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyS3(fmt.Errorf("s3 get failed for %s: %w", key, err))
	}
	defer func() { _ = result.Body.Close() }()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, contracts.NewFault(contracts.KindTransient, fmt.Errorf("s3 read failed for %s: %w", key, err))
	}
	return data, nil
}

// Delete removes an object; a missing object is treated as success.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return classifyS3(fmt.Errorf("s3 delete failed for %s: %w", key, err))
	}
	return nil
}

// PresignPut validates the request against the upload policy and returns a
// time-limited PUT URL.
func (s *S3Store) PresignPut(ctx context.Context, key, contentType string, sizeBytes int64, ttl time.Duration) (string, error) {
	if err := s.policy.Validate(contentType, sizeBytes); err != nil {
		return "", err
	}

	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(sizeBytes),
	}, s3.WithPresignExpires(ClampTTL(ttl)))
	if err != nil {
		return "", classifyS3(fmt.Errorf("s3 presign failed for %s: %w", key, err))
	}
	return req.URL, nil
}

// classifyS3 maps S3 API errors onto the fault taxonomy.
func classifyS3(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return contracts.NewFault(contracts.KindNotFound, err)
		case "AccessDenied":
			return contracts.NewFault(contracts.KindPermissionDenied, err)
		case "SlowDown", "RequestLimitExceeded":
			return contracts.NewFault(contracts.KindThrottled, err)
		}
	}
	return contracts.NewFault(contracts.KindTransient, err)
}
