package local

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/reillywatson/modelresolver/storage/count"
	"github.com/reillywatson/modelresolver/storage/remote"
)

// OperationDelay is the latency injected before a Memory operation runs.
// It mimics network latency in tests.
type OperationDelay struct {
	List      time.Duration
	Create    time.Duration
	SetPublic time.Duration
	Upload    time.Duration
}

// Failures holds errors that Memory returns instead of performing an
// operation. Nil fields mean the operation succeeds.
type Failures struct {
	List      error
	Create    error
	SetPublic error
	Upload    error
	PublicURL error
}

type memoryBucket struct {
	opts    remote.BucketOptions
	objects map[string]memoryObject
}

type memoryObject struct {
	data []byte
	opts remote.UploadOptions
}

var _ remote.Storage = &Memory{}

// Memory is an object store kept in process memory. It backs the "memory"
// backend and the tests.
type Memory struct {
	baseURL string

	mu       sync.Mutex
	buckets  map[string]*memoryBucket
	delay    OperationDelay
	failures Failures
	publics  int
	count.Count
}

// NewMemory creates an empty store whose public URLs start with baseURL.
func NewMemory(baseURL string) *Memory {
	return &Memory{
		baseURL: strings.TrimRight(baseURL, "/"),
		buckets: make(map[string]*memoryBucket),
	}
}

// SetDelay replaces the injected latency.
func (m *Memory) SetDelay(d OperationDelay) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SetFailures replaces the injected failures.
func (m *Memory) SetFailures(f Failures) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = f
}

func (m *Memory) Kind() string {
	return "memory"
}

func (m *Memory) Start(context.Context) error {
	return nil
}

func (m *Memory) ListBuckets(ctx context.Context) ([]remote.Bucket, error) {
	m.Count.Lists.Add(1)
	delay, failures := m.settings()
	if err := sleep(ctx, delay.List); err != nil {
		m.Count.ListErrors.Add(1)
		return nil, err
	}
	if failures.List != nil {
		m.Count.ListErrors.Add(1)
		return nil, fmt.Errorf("[%s] list buckets: %w", m.Kind(), failures.List)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	buckets := make([]remote.Bucket, 0, len(m.buckets))
	for name := range m.buckets {
		buckets = append(buckets, remote.Bucket{Name: name})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Name < buckets[j].Name })
	return buckets, nil
}

func (m *Memory) CreateBucket(ctx context.Context, name string, opts remote.BucketOptions) error {
	m.Count.Creates.Add(1)
	delay, failures := m.settings()
	if err := sleep(ctx, delay.Create); err != nil {
		m.Count.CreateErrors.Add(1)
		return err
	}
	if failures.Create != nil {
		m.Count.CreateErrors.Add(1)
		return fmt.Errorf("[%s] create bucket %s: %w", m.Kind(), name, failures.Create)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[name]; ok {
		return fmt.Errorf("[%s] create bucket %s: %w", m.Kind(), name, remote.ErrBucketExists)
	}
	m.buckets[name] = &memoryBucket{opts: opts, objects: make(map[string]memoryObject)}
	return nil
}

func (m *Memory) SetBucketPublic(ctx context.Context, name string) error {
	delay, failures := m.settings()
	if err := sleep(ctx, delay.SetPublic); err != nil {
		return err
	}
	if failures.SetPublic != nil {
		return fmt.Errorf("[%s] set public %s: %w", m.Kind(), name, failures.SetPublic)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[name]
	if !ok {
		return fmt.Errorf("[%s] set public %s: no such bucket", m.Kind(), name)
	}
	b.opts.Public = true
	m.publics++
	return nil
}

func (m *Memory) UploadObject(ctx context.Context, bucket, name string, body io.Reader, size int64, opts remote.UploadOptions) error {
	m.Count.Uploads.Add(1)
	delay, failures := m.settings()
	if err := sleep(ctx, delay.Upload); err != nil {
		m.Count.UploadErrors.Add(1)
		return err
	}
	if failures.Upload != nil {
		m.Count.UploadErrors.Add(1)
		return fmt.Errorf("[%s] put failed for %s/%s: %w", m.Kind(), bucket, name, failures.Upload)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		m.Count.UploadErrors.Add(1)
		return fmt.Errorf("[%s] put failed for %s/%s: %w", m.Kind(), bucket, name, err)
	}
	if int64(buf.Len()) != size {
		m.Count.UploadErrors.Add(1)
		return fmt.Errorf("[%s] put failed for %s/%s: read %d bytes, expected %d", m.Kind(), bucket, name, buf.Len(), size)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[bucket]
	if !ok {
		m.Count.UploadErrors.Add(1)
		return fmt.Errorf("[%s] put failed for %s/%s: no such bucket", m.Kind(), bucket, name)
	}
	if b.opts.MaxObjectBytes > 0 && size > b.opts.MaxObjectBytes {
		m.Count.UploadErrors.Add(1)
		return fmt.Errorf("[%s] put failed for %s/%s: size %d exceeds bucket limit %d", m.Kind(), bucket, name, size, b.opts.MaxObjectBytes)
	}
	b.objects[name] = memoryObject{data: buf.Bytes(), opts: opts}
	m.Count.UploadBytes.Add(size)
	return nil
}

func (m *Memory) PublicURL(bucket, name string) (string, error) {
	_, failures := m.settings()
	if failures.PublicURL != nil {
		return "", fmt.Errorf("[%s] public url for %s/%s: %w", m.Kind(), bucket, name, failures.PublicURL)
	}
	return m.baseURL + "/" + path.Join(bucket, name), nil
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) Summary() string {
	return m.Count.Summary(m.Kind())
}

// Bucket returns the options a bucket was created with.
func (m *Memory) Bucket(name string) (remote.BucketOptions, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[name]
	if !ok {
		return remote.BucketOptions{}, false
	}
	return b.opts, true
}

// Object returns a copy of a stored object.
func (m *Memory) Object(bucket, name string) ([]byte, remote.UploadOptions, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[bucket]
	if !ok {
		return nil, remote.UploadOptions{}, false
	}
	obj, ok := b.objects[name]
	if !ok {
		return nil, remote.UploadOptions{}, false
	}
	return append([]byte(nil), obj.data...), obj.opts, true
}

// Objects returns the object names stored in bucket.
func (m *Memory) Objects(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[bucket]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(b.objects))
	for name := range b.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PublicCalls returns how many times SetBucketPublic succeeded.
func (m *Memory) PublicCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.publics
}

func (m *Memory) settings() (OperationDelay, Failures) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delay, m.failures
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
