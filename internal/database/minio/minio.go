package minio

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bigballadanny/dwschatbot/internal/config"
)

var (
	client  *minio.Client
	once    sync.Once
	initErr error
)

// GetClient initializes and returns a singleton MinIO client.
func GetClient(cfg *config.MinIOConfig) (*minio.Client, error) {
	once.Do(func() {
		c, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.Secure,
		})
		if err != nil {
			initErr = fmt.Errorf("cannot create MinIO client: %w", err)
			return
		}

		if _, err = c.ListBuckets(context.Background()); err != nil {
			initErr = fmt.Errorf("MinIO connectivity check failed: %w", err)
			return
		}

		log.Println("✅ Connected to MinIO!")
		client = c
	})

	return client, initErr
}

// EnsureBucket creates the bucket when it does not exist yet.
func EnsureBucket(ctx context.Context, bucket string) error {
	if client == nil {
		return fmt.Errorf("MinIO client not initialized")
	}
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("cannot check bucket '%s': %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("cannot create bucket '%s': %w", bucket, err)
	}
	log.Printf("✅ Created bucket: %s", bucket)
	return nil
}

// HealthCheck verifies connectivity and credentials by listing buckets.
func HealthCheck(ctx context.Context) error {
	if client == nil {
		return fmt.Errorf("MinIO client not initialized")
	}
	if _, err := client.ListBuckets(ctx); err != nil {
		return fmt.Errorf("MinIO health check failed: %w", err)
	}
	return nil
}

// Close is a no-op since the minio-go client manages connections on demand.
func Close() {
	log.Println("ℹ️ MinIO client released (no explicit close required).")
}
