package remote

import (
	"context"
	"errors"
	"io"
)

// ErrBucketExists is returned by CreateBucket when the bucket is already
// present. Callers racing to provision the same bucket treat it as success.
var ErrBucketExists = errors.New("bucket already exists")

// Bucket describes a named container in an object store.
type Bucket struct {
	Name string
}

// BucketOptions configures a newly created bucket.
type BucketOptions struct {
	Public         bool
	MaxObjectBytes int64
}

// UploadOptions configures a single object upload.
type UploadOptions struct {
	ContentType  string
	CacheControl string
}

// Storage is an object store that model files are materialized into.
// Implementations must be safe for concurrent use.
type Storage interface {
	Kind() string
	Start(ctx context.Context) error
	ListBuckets(ctx context.Context) ([]Bucket, error)
	// CreateBucket returns ErrBucketExists (possibly wrapped) if the bucket is
	// already there.
	CreateBucket(ctx context.Context, name string, opts BucketOptions) error
	SetBucketPublic(ctx context.Context, name string) error
	UploadObject(ctx context.Context, bucket, name string, body io.Reader, size int64, opts UploadOptions) error
	PublicURL(bucket, name string) (string, error)
	Close() error
	Summary() string
}

// HasBucket reports whether name is in buckets.
func HasBucket(buckets []Bucket, name string) bool {
	for _, b := range buckets {
		if b.Name == name {
			return true
		}
	}
	return false
}

// publicReadPolicy is the S3-style bucket policy granting anonymous reads.
// It is shared by the S3 and MinIO backends.
func publicReadPolicy(bucket string) string {
	return `{"Version":"2012-10-17","Statement":[{"Sid":"PublicRead","Effect":"Allow","Principal":"*","Action":["s3:GetObject"],"Resource":["arn:aws:s3:::` + bucket + `/*"]}]}`
}
