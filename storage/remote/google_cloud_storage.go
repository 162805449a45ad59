package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/reillywatson/modelresolver/storage/count"

	"cloud.google.com/go/iam"
	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

const gcsPublicHost = "storage.googleapis.com"

func NewGoogleCloudStorageClient(ctx context.Context) (*storage.Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Cloud Storage client: %w", err)
	}
	return client, nil

}

var _ Storage = &GoogleCloudStorage{}

// GoogleCloudStorage is an object store backed by Google Cloud Storage.
type GoogleCloudStorage struct {
	client        *storage.Client
	projectID     string
	publicBaseURL string
	logger        *slog.Logger
	count.Count
}

// NewGoogleCloudStorage creates a new GoogleCloudStorage instance. projectID
// scopes bucket listing and creation.
func NewGoogleCloudStorage(client *storage.Client, projectID, publicBaseURL string, logger *slog.Logger) *GoogleCloudStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleCloudStorage{
		client:        client,
		projectID:     projectID,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}
}

func (g *GoogleCloudStorage) Kind() string {
	return "gcs"
}

func (g *GoogleCloudStorage) Start(context.Context) error {
	if g.projectID == "" {
		return fmt.Errorf("[%s] project id is required", g.Kind())
	}
	g.logger.Debug("object store configured", "kind", g.Kind(), "project", g.projectID)
	return nil
}

func (g *GoogleCloudStorage) ListBuckets(ctx context.Context) ([]Bucket, error) {
	g.Count.Lists.Add(1)
	var buckets []Bucket
	it := g.client.Buckets(ctx, g.projectID)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			g.Count.ListErrors.Add(1)
			return nil, fmt.Errorf("[%s] list buckets in %s: %w", g.Kind(), g.projectID, err)
		}
		buckets = append(buckets, Bucket{Name: attrs.Name})
	}
	return buckets, nil
}

// CreateBucket creates the bucket with uniform bucket-level access, falling
// back to default attributes if the organization policy rejects it. GCS has no
// per-bucket object size limit; opts.MaxObjectBytes is enforced by callers.
func (g *GoogleCloudStorage) CreateBucket(ctx context.Context, name string, _ BucketOptions) error {
	g.Count.Creates.Add(1)
	bucket := g.client.Bucket(name)
	err := bucket.Create(ctx, g.projectID, &storage.BucketAttrs{
		UniformBucketLevelAccess: storage.UniformBucketLevelAccess{Enabled: true},
	})
	if err != nil && !isConflict(err) {
		g.logger.Warn("bucket create with uniform access failed, retrying with defaults", "kind", g.Kind(), "bucket", name, "error", err)
		err = bucket.Create(ctx, g.projectID, nil)
	}
	if isConflict(err) {
		return fmt.Errorf("[%s] create bucket %s: %w", g.Kind(), name, ErrBucketExists)
	}
	if err != nil {
		g.Count.CreateErrors.Add(1)
		return fmt.Errorf("[%s] create bucket %s: %w", g.Kind(), name, err)
	}
	return nil
}

func (g *GoogleCloudStorage) SetBucketPublic(ctx context.Context, name string) error {
	handle := g.client.Bucket(name).IAM()
	policy, err := handle.Policy(ctx)
	if err != nil {
		return fmt.Errorf("[%s] get iam policy %s: %w", g.Kind(), name, err)
	}
	if policy.HasRole(iam.AllUsers, "roles/storage.objectViewer") {
		return nil
	}
	policy.Add(iam.AllUsers, "roles/storage.objectViewer")
	if err := handle.SetPolicy(ctx, policy); err != nil {
		return fmt.Errorf("[%s] set iam policy %s: %w", g.Kind(), name, err)
	}
	return nil
}

func (g *GoogleCloudStorage) UploadObject(ctx context.Context, bucket, name string, body io.Reader, size int64, opts UploadOptions) error {
	g.Count.Uploads.Add(1)
	writer := g.client.Bucket(bucket).Object(name).NewWriter(ctx)
	writer.ContentType = opts.ContentType
	writer.CacheControl = opts.CacheControl

	if _, err := io.Copy(writer, body); err != nil {
		_ = writer.Close()
		g.Count.UploadErrors.Add(1)
		return fmt.Errorf("[%s] put failed for %s/%s (failed to copy data to GCS, size: %d): %w", g.Kind(), bucket, name, size, err)
	}
	if err := writer.Close(); err != nil {
		g.Count.UploadErrors.Add(1)
		return fmt.Errorf("[%s] put failed for %s/%s (size: %d): %w", g.Kind(), bucket, name, size, err)
	}
	g.Count.UploadBytes.Add(size)

	g.logger.Debug("object uploaded", "kind", g.Kind(), "bucket", bucket, "name", name, "size", size)
	return nil
}

func (g *GoogleCloudStorage) PublicURL(bucket, name string) (string, error) {
	if g.publicBaseURL != "" {
		return g.publicBaseURL + "/" + path.Join(bucket, name), nil
	}
	u := url.URL{
		Scheme: "https",
		Host:   gcsPublicHost,
		Path:   "/" + path.Join(bucket, name),
	}
	return u.String(), nil
}

func (g *GoogleCloudStorage) Close() error {
	err := g.client.Close()
	if err != nil {
		return fmt.Errorf("[%s] close (error: %v)", g.Kind(), err)
	}
	g.logger.Debug("object store closed", "kind", g.Kind())
	return nil
}

func (g *GoogleCloudStorage) Summary() string {
	return g.Count.Summary(g.Kind())
}

func isConflict(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusConflict
}
