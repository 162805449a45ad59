package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reillywatson/modelresolver/cache"
	"github.com/reillywatson/modelresolver/envvar"
	"github.com/reillywatson/modelresolver/resolver"
)

const sampleConfig = `
storage:
  backend: minio
  endpoint: localhost:9000
  access_key: minio
  secret_key: minio123
  path_style: true
resolver:
  bucket_name: product-models
  max_object_bytes: 1048576
  step_timeout: 10s
cache:
  size: 16
  ttl: 1h
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, BackendMinIO, cfg.Storage.Backend)
	assert.Equal(t, "localhost:9000", cfg.Storage.Endpoint)
	assert.True(t, cfg.Storage.PathStyle)
	assert.Equal(t, int64(1048576), cfg.Resolver.MaxObjectBytes)
	assert.Equal(t, 10*time.Second, cfg.Resolver.StepTimeout)
	assert.Equal(t, 16, cfg.Cache.Size)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)

	// Unset fields fall back to defaults.
	assert.Equal(t, resolver.DefaultProbeTimeout, cfg.Resolver.ProbeTimeout)
	assert.Equal(t, resolver.DefaultContentType, cfg.Resolver.ContentType)
	assert.Equal(t, resolver.DefaultConfig().AllowedContentTypes, cfg.Resolver.AllowedContentTypes)
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, BackendDisk, cfg.Storage.Backend)
	assert.Equal(t, resolver.DefaultBucketName, cfg.Resolver.BucketName)
	assert.Equal(t, int64(resolver.DefaultMaxObjectBytes), cfg.Resolver.MaxObjectBytes)
	assert.Equal(t, cache.DefaultRedisPrefix, cfg.Cache.RedisPrefix)
}

func TestDefaultMatchesOwningPackages(t *testing.T) {
	def := Default()

	want := resolver.DefaultConfig()
	got := def.Resolver
	assert.Equal(t, want, resolver.Config{
		BucketName:          got.BucketName,
		MaxObjectBytes:      got.MaxObjectBytes,
		AllowedContentTypes: got.AllowedContentTypes,
		ContentType:         got.ContentType,
		CacheControl:        got.CacheControl,
		ObjectExtension:     got.ObjectExtension,
		StorageHostMarker:   got.StorageHostMarker,
		StepTimeout:         got.StepTimeout,
		ProbeTimeout:        got.ProbeTimeout,
	})
	assert.Equal(t, cache.DefaultSize, def.Cache.Size)
	assert.Equal(t, cache.DefaultTTL, def.Cache.TTL)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"unknown backend":  "storage:\n  backend: ftp\n",
		"unknown field":    "resolver:\n  bucket: x\n",
		"bad duration":     "resolver:\n  step_timeout: 10\n",
		"bad bucket name":  "resolver:\n  bucket_name: Product_Models\n",
		"negative size":    "cache:\n  size: 0\n",
		"malformed yaml":   "storage: [\n",
		"bad log level":    "log:\n  level: loud\n",
		"bad extension":    "resolver:\n  object_extension: glb\n",
		"string for bytes": "resolver:\n  max_object_bytes: big\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv(envvar.Backend, "memory")
	t.Setenv(envvar.Bucket, "staging-models")
	t.Setenv(envvar.SecretKey, "s3cret")

	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, "staging-models", cfg.Resolver.BucketName)
	assert.Equal(t, "s3cret", cfg.Storage.SecretKey)
}

func TestStringMasksSecrets(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	s := cfg.String()
	assert.NotContains(t, s, "minio123")
	assert.Contains(t, s, "********")
	assert.Contains(t, s, "RedisPassword: (empty)")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWatcherReload(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping watcher test in short mode")
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config, err error) {
		if err == nil {
			select {
			case reloaded <- cfg:
			default:
			}
		}
	})
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, 16, w.Snapshot().Cache.Size)

	require.NoError(t, os.WriteFile(path, []byte(sampleConfig+"metrics:\n  addr: \":9090\"\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, ":9090", cfg.Metrics.Addr)
		assert.Equal(t, ":9090", w.Snapshot().Metrics.Addr)
		assert.GreaterOrEqual(t, w.ReloadCount(), uint32(1))
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}

func TestWatcherReloadAfterRename(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping watcher test in short mode")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config, err error) {
		if err == nil {
			select {
			case reloaded <- cfg:
			default:
			}
		}
	})
	require.NoError(t, err)
	defer w.Close()

	// Editors save by writing a temporary file and renaming it over the original.
	tmp := filepath.Join(dir, ".config.yaml.swp")
	require.NoError(t, os.WriteFile(tmp, []byte(sampleConfig+"metrics:\n  addr: \":9091\"\n"), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, ":9091", cfg.Metrics.Addr)
		assert.Equal(t, ":9091", w.Snapshot().Metrics.Addr)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded after rename")
	}

	// A second save after the rename is still seen.
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig+"metrics:\n  addr: \":9092\"\n"), 0o644))
	require.Eventually(t, func() bool {
		select {
		case cfg := <-reloaded:
			return cfg.Metrics.Addr == ":9092"
		default:
			return false
		}
	}, 5*time.Second, 50*time.Millisecond, "config was not reloaded after second save")
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping watcher test in short mode")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	var calls atomic.Int32
	w, err := NewWatcher(path, func(*Config, error) { calls.Add(1) })
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644))
	time.Sleep(2 * reloadDebounce)

	assert.Zero(t, calls.Load())
	assert.Zero(t, w.ReloadCount())
}

func TestWatcherCloseCancelsPendingReload(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping watcher test in short mode")
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	var calls atomic.Int32
	w, err := NewWatcher(path, func(*Config, error) { calls.Add(1) })
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(sampleConfig+"metrics:\n  addr: \":9090\"\n"), 0o644))
	// Give the event time to arm the debounce timer, but not to fire it.
	time.Sleep(reloadDebounce / 5)
	require.NoError(t, w.Close())

	time.Sleep(2 * reloadDebounce)
	assert.Zero(t, calls.Load())
	assert.Zero(t, w.ReloadCount())
	assert.Equal(t, 16, w.Snapshot().Cache.Size)
}
