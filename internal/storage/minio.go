package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bowerhall/gatekeeper/internal/logger"
)

const DefaultBucket = "gatekeeper-audit"

// Client wraps a MinIO client bound to a single bucket
type Client struct {
	mc     *minio.Client
	bucket string
}

// Config holds MinIO connection settings
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// NewClient creates a new storage client
func NewClient(cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = DefaultBucket
	}

	return &Client{mc: mc, bucket: bucket}, nil
}

// Init creates the bucket if it doesn't exist
func (c *Client) Init(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}

	if !exists {
		if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", c.bucket, err)
		}
		logger.Info("bucket created", "bucket", c.bucket)
	}

	return nil
}

// Upload stores data under name in the client's bucket
func (c *Client) Upload(ctx context.Context, name string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := c.mc.PutObject(ctx, c.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", c.bucket, name, err)
	}

	logger.Debug("object uploaded", "bucket", c.bucket, "name", name, "size", len(data))
	return nil
}

// Bucket returns the bucket name
func (c *Client) Bucket() string {
	return c.bucket
}

// Healthy checks if MinIO is reachable
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.mc.BucketExists(ctx, c.bucket)
	return err == nil
}
