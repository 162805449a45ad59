package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/reillywatson/modelresolver/cache"
	"github.com/reillywatson/modelresolver/resolver"
)

const (
	DefaultLogFile   = "logs/modelresolver.log"
	DefaultNamespace = "modelresolver"
)

// Default returns a configuration that stores models on local disk. Resolver
// and cache settings come from the packages that own them.
func Default() *Config {
	res := resolver.DefaultConfig()
	return &Config{
		Storage: StorageConfig{
			Backend: BackendDisk,
			Dir:     DefaultStoragePath(),
		},
		Resolver: ResolverConfig{
			BucketName:          res.BucketName,
			MaxObjectBytes:      res.MaxObjectBytes,
			AllowedContentTypes: res.AllowedContentTypes,
			ContentType:         res.ContentType,
			CacheControl:        res.CacheControl,
			ObjectExtension:     res.ObjectExtension,
			StorageHostMarker:   res.StorageHostMarker,
			StepTimeout:         res.StepTimeout,
			ProbeTimeout:        res.ProbeTimeout,
		},
		Cache: CacheConfig{
			Size:        cache.DefaultSize,
			TTL:         cache.DefaultTTL,
			RedisPrefix: cache.DefaultRedisPrefix,
		},
		Log: LogConfig{
			Level: "info",
			File:  DefaultLogFile,
		},
		Metrics: MetricsConfig{
			Namespace: DefaultNamespace,
		},
	}
}

// DefaultConfigPath returns the default modelresolver config directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "modelresolver", "config")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "modelresolver")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "modelresolver")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "modelresolver")
		}
		return filepath.Join(home, ".config", "modelresolver")
	}
}

// DefaultStoragePath returns the root directory of the disk backend.
func DefaultStoragePath() string {
	d, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".", "modelresolver", "objects")
	}
	return filepath.Join(d, "modelresolver", "objects")
}

// applyDefaults fills zero values from Default.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = def.Storage.Backend
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = def.Storage.Dir
	}
	r := &cfg.Resolver
	if r.BucketName == "" {
		r.BucketName = def.Resolver.BucketName
	}
	if r.MaxObjectBytes <= 0 {
		r.MaxObjectBytes = def.Resolver.MaxObjectBytes
	}
	if r.AllowedContentTypes == nil {
		r.AllowedContentTypes = def.Resolver.AllowedContentTypes
	}
	if r.ContentType == "" {
		r.ContentType = def.Resolver.ContentType
	}
	if r.CacheControl == "" {
		r.CacheControl = def.Resolver.CacheControl
	}
	if r.ObjectExtension == "" {
		r.ObjectExtension = def.Resolver.ObjectExtension
	}
	if r.StorageHostMarker == "" {
		r.StorageHostMarker = def.Resolver.StorageHostMarker
	}
	if r.StepTimeout <= 0 {
		r.StepTimeout = def.Resolver.StepTimeout
	}
	if r.ProbeTimeout <= 0 {
		r.ProbeTimeout = def.Resolver.ProbeTimeout
	}
	if cfg.Cache.Size <= 0 {
		cfg.Cache.Size = def.Cache.Size
	}
	if cfg.Cache.TTL <= 0 {
		cfg.Cache.TTL = def.Cache.TTL
	}
	if cfg.Cache.RedisPrefix == "" {
		cfg.Cache.RedisPrefix = def.Cache.RedisPrefix
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.File == "" {
		cfg.Log.File = def.Log.File
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = def.Metrics.Namespace
	}
}
