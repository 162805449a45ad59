package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reillywatson/modelresolver/cache"
	"github.com/reillywatson/modelresolver/storage/remote"

	"github.com/segmentio/ksuid"
	"golang.org/x/sync/singleflight"
)

// Blob is the content behind an ephemeral local handle.
type Blob struct {
	Data        []byte
	ContentType string
}

// BlobSource reads the bytes behind local blob handles.
type BlobSource interface {
	Fetch(ctx context.Context, handle string) (Blob, error)
}

// Cache maps model references to durable URLs.
type Cache interface {
	Get(ctx context.Context, reference string) (string, bool)
	Set(ctx context.Context, reference, url string)
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithConfig(cfg Config) Option {
	return func(r *Resolver) {
		r.Reconfigure(cfg)
	}
}

func WithCache(c Cache) Option {
	return func(r *Resolver) {
		r.cache = c
	}
}

func WithProber(p Prober) Option {
	return func(r *Resolver) {
		r.prober = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func WithObserver(o Observer) Option {
	return func(r *Resolver) {
		r.observer = o
	}
}

// WithClock replaces time.Now, which drives object names and durations.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// Resolver turns model references into durable, publicly fetchable URLs,
// uploading local blobs into the object store when needed.
type Resolver struct {
	store    remote.Storage
	blobs    BlobSource
	cache    Cache
	prober   Prober
	logger   *slog.Logger
	observer Observer
	now      func() time.Time

	cfg atomic.Pointer[Config]

	group singleflight.Group
	// guards flights
	mu      sync.Mutex
	flights map[string]*flight

	count Count
}

// New creates a resolver that uploads into store and reads local handles
// from blobs. Without options it uses DefaultConfig, an in-memory LRU cache
// and an HTTP HEAD prober.
func New(store remote.Storage, blobs BlobSource, opts ...Option) *Resolver {
	r := &Resolver{
		store:    store,
		blobs:    blobs,
		prober:   HTTPProber{},
		logger:   slog.Default(),
		observer: nopObserver{},
		now:      time.Now,
		flights:  make(map[string]*flight),
	}
	r.Reconfigure(DefaultConfig())
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = cache.NewLRU(cache.DefaultSize, cache.DefaultTTL)
	}
	return r
}

// Reconfigure replaces the configuration. Calls already running keep the
// configuration they started with.
func (r *Resolver) Reconfigure(cfg Config) {
	cfg = cfg.withDefaults()
	r.cfg.Store(&cfg)
}

// Config returns the configuration in effect.
func (r *Resolver) Config() Config {
	return *r.cfg.Load()
}

// Stats returns the live counters.
func (r *Resolver) Stats() *Count {
	return &r.count
}

func (r *Resolver) Summary() string {
	return r.count.Summary()
}

// Resolve returns a durable URL for reference. Rules are tried in order:
// cache, direct probe, already in the target bucket, external URL, and
// finally upload of a local blob handle. Errors are *ValidationError.
func (r *Resolver) Resolve(ctx context.Context, reference string, cb Callbacks) (url string, err error) {
	if reference == "" {
		return "", ErrNoReferenceProvided
	}
	r.count.Resolves.Add(1)

	start := r.now()
	path := PathCache
	defer func() {
		r.observer.ObserveResolution(path, r.now().Sub(start), err)
	}()

	if cached, ok := r.cache.Get(ctx, reference); ok {
		r.count.CacheHits.Add(1)
		return cached, nil
	}

	cfg := r.Config()
	if r.probe(ctx, cfg, reference) {
		path = PathProbe
		r.count.ProbeHits.Add(1)
		r.cache.Set(ctx, reference, reference)
		return reference, nil
	}

	if r.inStorage(cfg, reference) {
		path = PathStorage
		r.count.StorageHits.Add(1)
		r.cache.Set(ctx, reference, reference)
		return reference, nil
	}

	if !IsLocalBlob(reference) {
		path = PathExternal
		r.count.External.Add(1)
		r.cache.Set(ctx, reference, reference)
		return reference, nil
	}

	path = PathUpload
	return r.uploadShared(ctx, cfg, reference, cb)
}

// probe reports whether reference is directly fetchable. Failures are misses,
// never errors.
func (r *Resolver) probe(ctx context.Context, cfg Config, reference string) bool {
	_, err := bounded(ctx, cfg.ProbeTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.prober.Probe(ctx, reference)
	})
	if err == nil {
		return true
	}
	r.count.ProbeMisses.Add(1)
	r.observer.ObserveProbeMiss()
	r.logger.Debug("probe miss", "reference", reference, "error", err)
	return false
}

// inStorage reports whether reference already points into the target bucket,
// either by the storage host marker or by the store's own public URL prefix.
func (r *Resolver) inStorage(cfg Config, reference string) bool {
	if strings.Contains(reference, cfg.StorageHostMarker) && strings.Contains(reference, "/"+cfg.BucketName+"/") {
		return true
	}
	prefix, err := r.store.PublicURL(cfg.BucketName, "")
	if err != nil || prefix == "" {
		return false
	}
	return strings.HasPrefix(reference, strings.TrimRight(prefix, "/")+"/")
}

// uploadShared runs the upload flow for reference, joining an upload that is
// already in flight for the same reference.
func (r *Resolver) uploadShared(ctx context.Context, cfg Config, reference string, cb Callbacks) (string, error) {
	cb.uploading(true)
	defer cb.uploading(false)

	progress := newMonotonic(cb.OnProgress)
	f, leader := r.joinFlight(reference)
	unsubscribe := f.subscribe(progress)
	defer unsubscribe()
	if !leader {
		r.count.Shared.Add(1)
		r.logger.Debug("joining upload in flight", "reference", reference)
	}

	// The flight outlives any single waiter.
	flightCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(reference, func() (any, error) {
		defer r.leaveFlight(reference, f)
		if url, ok := r.cache.Get(flightCtx, reference); ok {
			return url, nil
		}
		return r.upload(flightCtx, cfg, reference, f.report)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		progress.report(100)
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", wrap(KindUnknown, "", ctx.Err())
	}
}

func (r *Resolver) joinFlight(reference string) (*flight, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.flights[reference]; ok {
		return f, false
	}
	f := newFlight()
	r.flights[reference] = f
	return f, true
}

func (r *Resolver) leaveFlight(reference string, f *flight) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.flights[reference] == f {
		delete(r.flights, reference)
	}
}

func (r *Resolver) upload(ctx context.Context, cfg Config, reference string, report func(int)) (url string, err error) {
	start := r.now()
	var size int64
	r.count.Uploads.Add(1)
	defer func() {
		if err != nil {
			r.count.UploadErrors.Add(1)
			r.logger.Warn("model upload failed", "reference", reference, "kind", KindOf(err), "error", err)
		}
		r.observer.ObserveUpload(size, r.now().Sub(start), err)
	}()

	report(0)
	blob, err := bounded(ctx, cfg.StepTimeout, func(ctx context.Context) (Blob, error) {
		return r.blobs.Fetch(ctx, reference)
	})
	if err != nil {
		return "", wrap(KindFetchBlobFailed, "Invalid model file", err)
	}
	size = int64(len(blob.Data))
	if size == 0 {
		return "", newError(KindFetchBlobFailed, "Invalid model file", nil)
	}
	if size > cfg.MaxObjectBytes {
		return "", newError(KindOversizedPayload, fmt.Sprintf("Model file is too large: %d bytes exceeds the limit of %d bytes", size, cfg.MaxObjectBytes), nil)
	}
	if !cfg.allowsContentType(blob.ContentType) {
		return "", newError(KindUnsupportedContentType, fmt.Sprintf("Unsupported model file type %q", blob.ContentType), nil)
	}

	name := fmt.Sprintf("model-%d-%s%s", r.now().UnixMilli(), ksuid.New().String(), cfg.ObjectExtension)

	report(10)
	buckets, err := bounded(ctx, cfg.StepTimeout, r.store.ListBuckets)
	if err != nil {
		return "", wrap(KindStorageAccessFailed, "Failed to access storage", err)
	}

	report(20)
	if !remote.HasBucket(buckets, cfg.BucketName) {
		if err := r.ensureBucket(ctx, cfg); err != nil {
			return "", err
		}
	}

	report(40)
	_, err = bounded(ctx, cfg.StepTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.store.UploadObject(ctx, cfg.BucketName, name, bytes.NewReader(blob.Data), size, remote.UploadOptions{
			ContentType:  cfg.ContentType,
			CacheControl: cfg.CacheControl,
		})
	})
	if err != nil {
		return "", wrap(KindUploadFailed, "Failed to upload 3D model", err)
	}

	report(80)
	url, err = bounded(ctx, cfg.StepTimeout, func(context.Context) (string, error) {
		return r.store.PublicURL(cfg.BucketName, name)
	})
	if err == nil && url == "" {
		err = errors.New("empty public url")
	}
	if err != nil {
		return "", wrap(KindPublicURLUnavailable, "Failed to get public URL", err)
	}

	r.cache.Set(ctx, reference, url)
	report(100)
	r.logger.Info("model uploaded", "reference", reference, "bucket", cfg.BucketName, "name", name, "size", size, "url", url)
	return url, nil
}

// ensureBucket creates the public target bucket. A bucket created
// concurrently by someone else counts as success.
func (r *Resolver) ensureBucket(ctx context.Context, cfg Config) error {
	_, err := bounded(ctx, cfg.StepTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.store.CreateBucket(ctx, cfg.BucketName, remote.BucketOptions{
			Public:         true,
			MaxObjectBytes: cfg.MaxObjectBytes,
		})
	})
	switch {
	case errors.Is(err, remote.ErrBucketExists):
		r.logger.Debug("bucket already exists", "bucket", cfg.BucketName)
	case err != nil:
		return wrap(KindBucketCreateFailed, "Failed to create storage bucket", err)
	default:
		r.count.Buckets.Add(1)
		r.logger.Info("bucket created", "bucket", cfg.BucketName, "kind", r.store.Kind())
	}

	_, err = bounded(ctx, cfg.StepTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.store.SetBucketPublic(ctx, cfg.BucketName)
	})
	if err != nil {
		return wrap(KindBucketCreateFailed, "Failed to make storage bucket public", err)
	}
	return nil
}

// bounded runs fn with a deadline of d and returns as soon as the deadline
// passes, even if fn ignores its context.
func bounded[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		val T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		val, err := fn(ctx)
		ch <- result{val, err}
	}()

	select {
	case res := <-ch:
		return res.val, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
