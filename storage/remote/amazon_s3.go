package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/reillywatson/modelresolver/storage/count"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

func NewAmazonS3Client(ctx context.Context, region string) (*s3.Client, string, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsConfig), awsConfig.Region, nil
}

var _ Storage = &AmazonS3{}

// AmazonS3 is an object store backed by Amazon S3.
type AmazonS3 struct {
	s3Client      *s3.Client
	region        string
	publicBaseURL string
	logger        *slog.Logger
	count.Count
}

// NewAmazonS3 creates an S3 store. If publicBaseURL is empty, public URLs use
// the virtual-hosted S3 endpoint for region.
func NewAmazonS3(client *s3.Client, region, publicBaseURL string, logger *slog.Logger) *AmazonS3 {
	if logger == nil {
		logger = slog.Default()
	}
	return &AmazonS3{
		s3Client:      client,
		region:        region,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}
}

func (a *AmazonS3) Kind() string {
	return "s3"
}

func (a *AmazonS3) Start(context.Context) error {
	a.logger.Debug("object store configured", "kind", a.Kind(), "region", a.region)
	return nil
}

func (a *AmazonS3) ListBuckets(ctx context.Context) ([]Bucket, error) {
	a.Count.Lists.Add(1)
	out, err := a.s3Client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		a.Count.ListErrors.Add(1)
		return nil, fmt.Errorf("[%s] list buckets: %w", a.Kind(), err)
	}
	buckets := make([]Bucket, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		buckets = append(buckets, Bucket{Name: aws.ToString(b.Name)})
	}
	return buckets, nil
}

// CreateBucket creates the bucket pinned to the client region, falling back to
// an unconstrained create when the region-constrained request is rejected.
// S3 has no per-bucket object size limit, so opts.MaxObjectBytes is enforced by
// callers. S3 buckets start private; opts.Public takes effect once
// SetBucketPublic is called.
func (a *AmazonS3) CreateBucket(ctx context.Context, name string, _ BucketOptions) error {
	a.Count.Creates.Add(1)
	err := a.createBucket(ctx, name, a.region)
	if err != nil && !errors.Is(err, ErrBucketExists) && a.region != "" {
		a.logger.Warn("region constrained bucket create failed, retrying without constraint", "kind", a.Kind(), "bucket", name, "error", err)
		err = a.createBucket(ctx, name, "")
	}
	if err != nil {
		if !errors.Is(err, ErrBucketExists) {
			a.Count.CreateErrors.Add(1)
		}
		return fmt.Errorf("[%s] create bucket %s: %w", a.Kind(), name, err)
	}
	return nil
}

func (a *AmazonS3) createBucket(ctx context.Context, name, region string) error {
	input := &s3.CreateBucketInput{Bucket: &name}
	// us-east-1 rejects an explicit location constraint.
	if region != "" && region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}
	_, err := a.s3Client.CreateBucket(ctx, input)
	if isBucketExistsError(err) {
		return ErrBucketExists
	}
	return err
}

func (a *AmazonS3) SetBucketPublic(ctx context.Context, name string) error {
	if _, err := a.s3Client.DeletePublicAccessBlock(ctx, &s3.DeletePublicAccessBlockInput{
		Bucket: &name,
	}); err != nil {
		return fmt.Errorf("[%s] remove public access block %s: %w", a.Kind(), name, err)
	}
	if _, err := a.s3Client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: &name,
		Policy: aws.String(publicReadPolicy(name)),
	}); err != nil {
		return fmt.Errorf("[%s] set public policy %s: %w", a.Kind(), name, err)
	}
	return nil
}

func (a *AmazonS3) UploadObject(ctx context.Context, bucket, name string, body io.Reader, size int64, opts UploadOptions) error {
	a.Count.Uploads.Add(1)
	input := &s3.PutObjectInput{
		Bucket:        &bucket,
		Key:           &name,
		Body:          body,
		ContentLength: &size,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.CacheControl != "" {
		input.CacheControl = aws.String(opts.CacheControl)
	}
	if _, err := a.s3Client.PutObject(ctx, input, func(options *s3.Options) {
		options.RetryMaxAttempts = 1 // We cannot perform seek in Body
	}); err != nil {
		a.Count.UploadErrors.Add(1)
		return fmt.Errorf("[%s] put failed for %s/%s (size: %d): %w", a.Kind(), bucket, name, size, err)
	}
	a.Count.UploadBytes.Add(size)

	a.logger.Debug("object uploaded", "kind", a.Kind(), "bucket", bucket, "name", name, "size", size)
	return nil
}

func (a *AmazonS3) PublicURL(bucket, name string) (string, error) {
	if a.publicBaseURL != "" {
		return a.publicBaseURL + "/" + path.Join(bucket, name), nil
	}
	if a.region == "" {
		return "", fmt.Errorf("[%s] public url for %s/%s: no region configured", a.Kind(), bucket, name)
	}
	u := url.URL{
		Scheme: "https",
		Host:   fmt.Sprintf("%s.s3.%s.amazonaws.com", bucket, a.region),
		Path:   "/" + name,
	}
	return u.String(), nil
}

func (a *AmazonS3) Close() error {
	return nil
}

func (a *AmazonS3) Summary() string {
	return a.Count.Summary(a.Kind())
}

func isBucketExistsError(err error) bool {
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) {
			code := ae.ErrorCode()
			return code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists"
		}
	}
	return false
}
