// Package filestore defines the object storage that table exports are
// written to.
//
// Callers depend only on this package; the minio subpackage provides the
// implementation.
package filestore

import (
	"context"
	"io"
	"time"
)

// Store is the interface storage backends implement.
type Store interface {
	// Ping verifies the backend is reachable and the credentials work.
	Ping(ctx context.Context) error

	// EnsureBucket creates bucket unless it already exists.
	EnsureBucket(ctx context.Context, bucket string) error

	// PutObject uploads size bytes from r to key inside bucket.
	// A size of -1 streams until EOF.
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (*ObjectInfo, error)

	// StatObject returns metadata for the object at key without downloading it.
	StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)

	// PresignGetURL returns a time-limited URL that downloads the object
	// without credentials.
	PresignGetURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// Config holds the settings for connecting to an S3-compatible server.
type Config struct {
	// Endpoint is the host:port of the storage server, e.g. "localhost:9000".
	Endpoint string

	AccessKey string
	SecretKey string
	UseSSL    bool

	// Region is used when creating buckets. Leave empty for MinIO.
	Region string

	// Bucket receives the exports.
	Bucket string

	// URLTTL is how long presigned download links stay valid.
	URLTTL time.Duration
}

// DefaultConfig returns a local-dev MinIO config.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Bucket:    "backoffice-exports",
		URLTTL:    15 * time.Minute,
	}
}
