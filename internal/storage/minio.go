package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DownloadURLTTL is how long a presigned download link stays valid.
const DownloadURLTTL = time.Hour

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore keeps profile files in one private bucket and hands out
// presigned links for reading them.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to MinIO and creates the bucket if it is missing
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("make bucket: %w", err)
		}
	}

	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *MinioStore) Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, path, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", path, err)
	}
	return nil
}

func (s *MinioStore) DownloadURL(ctx context.Context, path string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, path, DownloadURLTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", path, err)
	}
	return u.String(), nil
}

func (s *MinioStore) Delete(ctx context.Context, path string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", path, err)
	}
	return nil
}
