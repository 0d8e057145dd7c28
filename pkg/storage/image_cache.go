package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ImageCache is a best-effort cache of generated verse images keyed by
// surah and ayah. Misses and failures are both reported as (nil, false):
// callers regenerate, never fail.
type ImageCache interface {
	Get(ctx context.Context, surah, ayah int) (data []byte, contentType string, ok bool)
	Put(ctx context.Context, surah, ayah int, data []byte, contentType string) error
}

// MinioImageCache implements ImageCache over MinIO/S3-compatible storage.
type MinioImageCache struct {
	client *minio.Client
	bucket string
}

// NewMinioImageCache connects to MinIO and ensures the bucket exists.
func NewMinioImageCache(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioImageCache, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioImageCache{client: client, bucket: bucket}, nil
}

func cacheKey(surah, ayah int) string {
	return fmt.Sprintf("verse-images/%d_%d", surah, ayah)
}

// Get fetches a cached image. Any failure is a miss.
func (c *MinioImageCache) Get(ctx context.Context, surah, ayah int) ([]byte, string, bool) {
	obj, err := c.client.GetObject(ctx, c.bucket, cacheKey(surah, ayah), minio.GetObjectOptions{})
	if err != nil {
		return nil, "", false
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil || len(data) == 0 {
		return nil, "", false
	}
	stat, err := obj.Stat()
	if err != nil {
		return nil, "", false
	}
	return data, stat.ContentType, true
}

// Put stores a generated image under the verse key.
func (c *MinioImageCache) Put(ctx context.Context, surah, ayah int, data []byte, contentType string) error {
	_, err := c.client.PutObject(ctx, c.bucket, cacheKey(surah, ayah),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put cached image: %w", err)
	}
	return nil
}
