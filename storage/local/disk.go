package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/reillywatson/modelresolver/storage/count"
	"github.com/reillywatson/modelresolver/storage/remote"
)

const bucketMetaFile = ".bucket.json"

// bucketEntry is the metadata that Disk stores next to a bucket's objects.
type bucketEntry struct {
	Version        int   `json:"v"`
	Public         bool  `json:"p"`
	MaxObjectBytes int64 `json:"m"`
	TimeNanos      int64 `json:"t"`
}

var _ remote.Storage = &Disk{}

// Disk is an object store that keeps each bucket in a directory under dir.
type Disk struct {
	dir           string
	publicBaseURL string
	logger        *slog.Logger
	// guards bucket metadata rewrites
	mu sync.Mutex
	count.Count
}

// NewDisk creates a disk store rooted at dir. If publicBaseURL is empty,
// public URLs point at the files with the file:// scheme.
func NewDisk(dir, publicBaseURL string, logger *slog.Logger) *Disk {
	if logger == nil {
		logger = slog.Default()
	}
	return &Disk{
		dir:           dir,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}
}

func (d *Disk) Kind() string {
	return "disk"
}

func (d *Disk) Start(context.Context) error {
	d.logger.Debug("object store configured", "kind", d.Kind(), "dir", d.dir)
	return os.MkdirAll(d.dir, 0755)
}

func (d *Disk) ListBuckets(context.Context) ([]remote.Bucket, error) {
	d.Count.Lists.Add(1)
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		d.Count.ListErrors.Add(1)
		return nil, fmt.Errorf("[%s] list buckets in %s: %w", d.Kind(), d.dir, err)
	}
	var buckets []remote.Bucket
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(d.dir, e.Name(), bucketMetaFile)); err != nil {
			continue
		}
		buckets = append(buckets, remote.Bucket{Name: e.Name()})
	}
	return buckets, nil
}

func (d *Disk) CreateBucket(_ context.Context, name string, opts remote.BucketOptions) error {
	d.Count.Creates.Add(1)
	if err := validName(name); err != nil {
		d.Count.CreateErrors.Add(1)
		return fmt.Errorf("[%s] create bucket: %w", d.Kind(), err)
	}
	meta := bucketEntry{
		Version:        1,
		Public:         opts.Public,
		MaxObjectBytes: opts.MaxObjectBytes,
		TimeNanos:      time.Now().UnixNano(),
	}
	if err := os.Mkdir(filepath.Join(d.dir, name), 0755); err != nil {
		if !errors.Is(err, os.ErrExist) {
			d.Count.CreateErrors.Add(1)
			return fmt.Errorf("[%s] create bucket %s: %w", d.Kind(), name, err)
		}
		// A directory without metadata is left over from an interrupted
		// create, or predates the store. Adopt it.
		adopted, err := d.adopt(name, meta)
		if err != nil {
			d.Count.CreateErrors.Add(1)
			return fmt.Errorf("[%s] create bucket %s: %w", d.Kind(), name, err)
		}
		if !adopted {
			return fmt.Errorf("[%s] create bucket %s: %w", d.Kind(), name, remote.ErrBucketExists)
		}
		d.logger.Warn("adopted bucket directory without metadata", "kind", d.Kind(), "bucket", name)
		return nil
	}
	if err := d.writeMeta(name, meta); err != nil {
		d.Count.CreateErrors.Add(1)
		return fmt.Errorf("[%s] create bucket %s: %w", d.Kind(), name, err)
	}
	return nil
}

// adopt writes meta for an existing bucket directory that has none. It
// reports false if the metadata is already there.
func (d *Disk) adopt(name string, meta bucketEntry) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fi, err := os.Stat(filepath.Join(d.dir, name))
	if err != nil {
		return false, err
	}
	if !fi.IsDir() {
		return false, fmt.Errorf("%s is not a directory", name)
	}
	if _, err := os.Stat(filepath.Join(d.dir, name, bucketMetaFile)); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if err := d.writeMeta(name, meta); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Disk) SetBucketPublic(_ context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	meta, err := d.readMeta(name)
	if errors.Is(err, os.ErrNotExist) {
		if fi, statErr := os.Stat(filepath.Join(d.dir, name)); statErr == nil && fi.IsDir() {
			meta, err = bucketEntry{Version: 1, TimeNanos: time.Now().UnixNano()}, nil
		}
	}
	if err != nil {
		return fmt.Errorf("[%s] set public %s: %w", d.Kind(), name, err)
	}
	if meta.Public {
		return nil
	}
	meta.Public = true
	if err := d.writeMeta(name, meta); err != nil {
		return fmt.Errorf("[%s] set public %s: %w", d.Kind(), name, err)
	}
	return nil
}

func (d *Disk) UploadObject(_ context.Context, bucket, name string, body io.Reader, size int64, _ remote.UploadOptions) error {
	d.Count.Uploads.Add(1)
	if err := validName(name); err != nil {
		d.Count.UploadErrors.Add(1)
		return fmt.Errorf("[%s] put failed for %s: %w", d.Kind(), bucket, err)
	}
	meta, err := d.readMeta(bucket)
	if err != nil {
		d.Count.UploadErrors.Add(1)
		return fmt.Errorf("[%s] put failed for %s/%s: %w", d.Kind(), bucket, name, err)
	}
	if meta.MaxObjectBytes > 0 && size > meta.MaxObjectBytes {
		d.Count.UploadErrors.Add(1)
		return fmt.Errorf("[%s] put failed for %s/%s: size %d exceeds bucket limit %d", d.Kind(), bucket, name, size, meta.MaxObjectBytes)
	}
	wrote, err := writeAtomic(filepath.Join(d.dir, bucket, name), body)
	if err != nil {
		d.Count.UploadErrors.Add(1)
		return fmt.Errorf("[%s] put failed for %s/%s: %w", d.Kind(), bucket, name, err)
	}
	if wrote != size {
		d.Count.UploadErrors.Add(1)
		return fmt.Errorf("[%s] put failed for %s/%s: wrote %d bytes, expected %d", d.Kind(), bucket, name, wrote, size)
	}
	d.Count.UploadBytes.Add(size)
	return nil
}

func (d *Disk) PublicURL(bucket, name string) (string, error) {
	if d.publicBaseURL != "" {
		return d.publicBaseURL + "/" + path.Join(bucket, name), nil
	}
	abs, err := filepath.Abs(filepath.Join(d.dir, bucket, name))
	if err != nil {
		return "", fmt.Errorf("[%s] public url for %s/%s: %w", d.Kind(), bucket, name, err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

func (d *Disk) Close() error {
	return nil
}

func (d *Disk) Summary() string {
	return d.Count.Summary(d.Kind())
}

func (d *Disk) readMeta(bucket string) (bucketEntry, error) {
	var meta bucketEntry
	raw, err := os.ReadFile(filepath.Join(d.dir, bucket, bucketMetaFile))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return meta, fmt.Errorf("bucket metadata for %q: %w", bucket, err)
	}
	return meta, nil
}

func (d *Disk) writeMeta(bucket string, meta bucketEntry) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	_, err = writeAtomic(filepath.Join(d.dir, bucket, bucketMetaFile), bytes.NewReader(raw))
	return err
}

func validName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid name %q", name)
	}
	return nil
}

func writeTempFile(dest string, r io.Reader) (_ string, _ int64, err error) {
	tf, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return "", 0, err
	}
	fileName := tf.Name()
	defer func() {
		_ = tf.Close()
		if err != nil {
			_ = os.Remove(fileName)
		}
	}()
	size, err := io.Copy(tf, r)
	if err != nil {
		return "", 0, err
	}
	return fileName, size, nil
}

func writeAtomic(dest string, r io.Reader) (_ int64, err error) {
	tempFile, size, err := writeTempFile(dest, r)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tempFile)
		}
	}()
	if err = os.Rename(tempFile, dest); err != nil {
		return 0, err
	}
	return size, nil
}
