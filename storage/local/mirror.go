package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/reillywatson/modelresolver/storage/remote"
)

// Mirror is a store backed by a primary store and a best-effort replica.
// Every object uploaded to the primary is streamed into the replica at the
// same time. Listing and URLs come from the primary only.
type Mirror struct {
	primary remote.Storage
	replica remote.Storage
	logger  *slog.Logger

	// buckets known to exist in the replica
	provisioned sync.Map
}

var _ remote.Storage = &Mirror{}

func NewMirror(primary, replica remote.Storage, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		primary: primary,
		replica: replica,
		logger:  logger,
	}
}

func (m *Mirror) Kind() string {
	return "mirror"
}

func (m *Mirror) Start(ctx context.Context) error {
	err := m.primary.Start(ctx)
	if err != nil {
		_ = m.primary.Close()
		return fmt.Errorf("primary store start failed: %w", err)
	}
	err = m.replica.Start(ctx)
	if err != nil {
		_ = m.replica.Close()
		return fmt.Errorf("replica store start failed: %w", err)
	}

	return nil
}

func (m *Mirror) ListBuckets(ctx context.Context) ([]remote.Bucket, error) {
	return m.primary.ListBuckets(ctx)
}

// CreateBucket creates the bucket in the primary and, unless that failed for
// a reason other than the bucket already existing, in the replica too. The
// primary's result is returned.
func (m *Mirror) CreateBucket(ctx context.Context, name string, opts remote.BucketOptions) error {
	err := m.primary.CreateBucket(ctx, name, opts)
	if err != nil && !errors.Is(err, remote.ErrBucketExists) {
		return err
	}
	if rerr := m.createReplicaBucket(ctx, name, opts); rerr != nil {
		m.logger.Warn("replica bucket create failed", "kind", m.replica.Kind(), "bucket", name, "error", rerr)
	}
	return err
}

func (m *Mirror) createReplicaBucket(ctx context.Context, name string, opts remote.BucketOptions) error {
	err := m.replica.CreateBucket(ctx, name, opts)
	if err != nil && !errors.Is(err, remote.ErrBucketExists) {
		return err
	}
	m.provisioned.Store(name, struct{}{})
	return nil
}

// ensureReplicaBucket creates bucket in the replica the first time an object
// is mirrored into it, for buckets that predate the mirror.
func (m *Mirror) ensureReplicaBucket(ctx context.Context, bucket string) error {
	if _, ok := m.provisioned.Load(bucket); ok {
		return nil
	}
	buckets, err := m.replica.ListBuckets(ctx)
	if err != nil {
		return err
	}
	if remote.HasBucket(buckets, bucket) {
		m.provisioned.Store(bucket, struct{}{})
		return nil
	}
	return m.createReplicaBucket(ctx, bucket, remote.BucketOptions{})
}

func (m *Mirror) SetBucketPublic(ctx context.Context, name string) error {
	if err := m.primary.SetBucketPublic(ctx, name); err != nil {
		return err
	}
	if err := m.replica.SetBucketPublic(ctx, name); err != nil {
		m.logger.Warn("replica set public failed", "kind", m.replica.Kind(), "bucket", name, "error", err)
	}
	return nil
}

// UploadObject writes body to the primary and tees it into the replica.
func (m *Mirror) UploadObject(ctx context.Context, bucket, name string, body io.Reader, size int64, opts remote.UploadOptions) error {
	// The replica reads pr while the primary reads body through a TeeReader
	// that writes into pw.
	pr, pw := io.Pipe()

	wg, _ := errgroup.WithContext(ctx)
	wg.Go(func() error {
		err := m.ensureReplicaBucket(ctx, bucket)
		if err == nil {
			err = m.replica.UploadObject(ctx, bucket, name, pr, size, opts)
		}
		// Keep draining so a failed replica never stalls the primary.
		_, _ = io.Copy(io.Discard, pr)
		return err
	})

	if err := m.primary.UploadObject(ctx, bucket, name, io.TeeReader(body, pw), size, opts); err != nil {
		pw.CloseWithError(err)
		_ = wg.Wait()
		return err
	}

	_ = pw.Close()
	if err := wg.Wait(); err != nil {
		m.logger.Warn("replica upload failed", "kind", m.replica.Kind(), "bucket", bucket, "name", name, "error", err)
	}
	return nil
}

func (m *Mirror) PublicURL(bucket, name string) (string, error) {
	return m.primary.PublicURL(bucket, name)
}

func (m *Mirror) Close() error {
	var errAll error
	if err := m.primary.Close(); err != nil {
		errAll = errors.Join(fmt.Errorf("primary store close failed: %w", err), errAll)
	}
	if err := m.replica.Close(); err != nil {
		errAll = errors.Join(fmt.Errorf("replica store close failed: %w", err), errAll)
	}

	return errAll
}

func (m *Mirror) Summary() string {
	return fmt.Sprintf("\n%s\n%s", m.primary.Summary(), m.replica.Summary())
}
