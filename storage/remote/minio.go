package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/reillywatson/modelresolver/storage/count"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig describes an S3-compatible endpoint.
type MinIOConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	PathStyle bool
}

func NewMinIOClient(cfg MinIOConfig) (*minio.Client, error) {
	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}
	cl, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return cl, nil
}

var _ Storage = &MinIO{}

// MinIO is an object store backed by any S3-compatible server reachable
// through minio-go.
type MinIO struct {
	client        *minio.Client
	region        string
	publicBaseURL string
	logger        *slog.Logger
	count.Count
}

// NewMinIO creates a MinIO store. If publicBaseURL is empty, public URLs are
// built path-style from the client endpoint.
func NewMinIO(client *minio.Client, region, publicBaseURL string, logger *slog.Logger) *MinIO {
	if logger == nil {
		logger = slog.Default()
	}
	return &MinIO{
		client:        client,
		region:        region,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}
}

func (m *MinIO) Kind() string {
	return "minio"
}

func (m *MinIO) Start(context.Context) error {
	m.logger.Debug("object store configured", "kind", m.Kind(), "endpoint", m.client.EndpointURL().String())
	return nil
}

func (m *MinIO) ListBuckets(ctx context.Context) ([]Bucket, error) {
	m.Count.Lists.Add(1)
	infos, err := m.client.ListBuckets(ctx)
	if err != nil {
		m.Count.ListErrors.Add(1)
		return nil, fmt.Errorf("[%s] list buckets: %w", m.Kind(), err)
	}
	buckets := make([]Bucket, 0, len(infos))
	for _, info := range infos {
		buckets = append(buckets, Bucket{Name: info.Name})
	}
	return buckets, nil
}

// CreateBucket makes the bucket in the configured region and falls back to the
// server default region when that is rejected.
func (m *MinIO) CreateBucket(ctx context.Context, name string, _ BucketOptions) error {
	m.Count.Creates.Add(1)
	err := m.client.MakeBucket(ctx, name, minio.MakeBucketOptions{Region: m.region})
	if err != nil && !isMinIOBucketExists(err) && m.region != "" {
		m.logger.Warn("bucket create in region failed, retrying with server default", "kind", m.Kind(), "bucket", name, "region", m.region, "error", err)
		err = m.client.MakeBucket(ctx, name, minio.MakeBucketOptions{})
	}
	if isMinIOBucketExists(err) {
		return fmt.Errorf("[%s] create bucket %s: %w", m.Kind(), name, ErrBucketExists)
	}
	if err != nil {
		m.Count.CreateErrors.Add(1)
		return fmt.Errorf("[%s] create bucket %s: %w", m.Kind(), name, err)
	}
	return nil
}

func (m *MinIO) SetBucketPublic(ctx context.Context, name string) error {
	if err := m.client.SetBucketPolicy(ctx, name, publicReadPolicy(name)); err != nil {
		return fmt.Errorf("[%s] set public policy %s: %w", m.Kind(), name, err)
	}
	return nil
}

func (m *MinIO) UploadObject(ctx context.Context, bucket, name string, body io.Reader, size int64, opts UploadOptions) error {
	m.Count.Uploads.Add(1)
	info, err := m.client.PutObject(ctx, bucket, name, body, size, minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		CacheControl: opts.CacheControl,
	})
	if err != nil {
		m.Count.UploadErrors.Add(1)
		return fmt.Errorf("[%s] put failed for %s/%s (size: %d): %w", m.Kind(), bucket, name, size, err)
	}
	m.Count.UploadBytes.Add(info.Size)

	m.logger.Debug("object uploaded", "kind", m.Kind(), "bucket", bucket, "name", name, "size", info.Size, "etag", info.ETag)
	return nil
}

func (m *MinIO) PublicURL(bucket, name string) (string, error) {
	if m.publicBaseURL != "" {
		return m.publicBaseURL + "/" + path.Join(bucket, name), nil
	}
	u := *m.client.EndpointURL()
	u.Path = "/" + path.Join(bucket, name)
	return u.String(), nil
}

func (m *MinIO) Close() error {
	return nil
}

func (m *MinIO) Summary() string {
	return m.Count.Summary(m.Kind())
}

func isMinIOBucketExists(err error) bool {
	if err == nil {
		return false
	}
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		resp = minio.ToErrorResponse(err)
	}
	return resp.Code == "BucketAlreadyOwnedByYou" || resp.Code == "BucketAlreadyExists"
}
