package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/garyjia/sygfp/internal/application/port"
)

// MinIOConfig holds the object store settings
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOStorage implements port.BlobStorage on an S3-compatible bucket
type MinIOStorage struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

// NewMinIOStorage connects to the object store and makes sure the bucket exists
func NewMinIOStorage(ctx context.Context, cfg MinIOConfig, logger *zap.Logger) (*MinIOStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info("Bucket created", zap.String("bucket", cfg.Bucket))
	}

	return &MinIOStorage{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// Put uploads content under key
func (s *MinIOStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		s.logger.Error("Failed to upload object", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to upload object: %w", err)
	}
	s.logger.Debug("Object uploaded", zap.String("key", key), zap.Int64("size", info.Size))
	return nil
}

// Get downloads the content stored under key
func (s *MinIOStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		s.logger.Error("Failed to get object", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return obj, nil
}

// Delete removes the object stored under key
func (s *MinIOStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		s.logger.Error("Failed to remove object", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to remove object: %w", err)
	}
	return nil
}

// URL returns a presigned download link
func (s *MinIOStorage) URL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, url.Values{})
	if err != nil {
		s.logger.Error("Failed to presign object", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("failed to presign object: %w", err)
	}
	return u.String(), nil
}

// Verify interface compliance
var _ port.BlobStorage = (*MinIOStorage)(nil)
