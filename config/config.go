package config

import (
	"fmt"
	"strings"
	"time"
)

// Backend names the object store implementation.
type Backend string

const (
	BackendS3     Backend = "s3"
	BackendGCS    Backend = "gcs"
	BackendMinIO  Backend = "minio"
	BackendDisk   Backend = "disk"
	BackendMemory Backend = "memory"
)

// Config holds the main configuration for the resolver process.
type Config struct {
	Storage  StorageConfig  `json:"storage"  yaml:"storage"`
	Resolver ResolverConfig `json:"resolver" yaml:"resolver"`
	Cache    CacheConfig    `json:"cache"    yaml:"cache"`
	Log      LogConfig      `json:"log"      yaml:"log"`
	Metrics  MetricsConfig  `json:"metrics"  yaml:"metrics"`
}

// StorageConfig selects and configures the object store.
type StorageConfig struct {
	Backend       Backend `json:"backend"                   yaml:"backend"`
	Region        string  `json:"region,omitempty"          yaml:"region,omitempty"`
	Endpoint      string  `json:"endpoint,omitempty"        yaml:"endpoint,omitempty"`
	ProjectID     string  `json:"project_id,omitempty"      yaml:"project_id,omitempty"`
	PublicBaseURL string  `json:"public_base_url,omitempty" yaml:"public_base_url,omitempty"`
	AccessKey     string  `json:"access_key,omitempty"      yaml:"access_key,omitempty"`
	SecretKey     string  `json:"secret_key,omitempty"      yaml:"secret_key,omitempty"`
	UseSSL        bool    `json:"use_ssl,omitempty"         yaml:"use_ssl,omitempty"`
	PathStyle     bool    `json:"path_style,omitempty"      yaml:"path_style,omitempty"`
	Dir           string  `json:"dir,omitempty"             yaml:"dir,omitempty"`
	MirrorDir     string  `json:"mirror_dir,omitempty"      yaml:"mirror_dir,omitempty"`
}

// ResolverConfig holds the resolution and upload settings.
type ResolverConfig struct {
	BucketName          string        `json:"bucket_name"                     yaml:"bucket_name"`
	MaxObjectBytes      int64         `json:"max_object_bytes"                yaml:"max_object_bytes"`
	AllowedContentTypes []string      `json:"allowed_content_types,omitempty" yaml:"allowed_content_types,omitempty"`
	ContentType         string        `json:"content_type,omitempty"          yaml:"content_type,omitempty"`
	CacheControl        string        `json:"cache_control,omitempty"         yaml:"cache_control,omitempty"`
	ObjectExtension     string        `json:"object_extension,omitempty"      yaml:"object_extension,omitempty"`
	StorageHostMarker   string        `json:"storage_host_marker,omitempty"   yaml:"storage_host_marker,omitempty"`
	StepTimeout         time.Duration `json:"step_timeout,omitempty"          yaml:"step_timeout,omitempty"`
	ProbeTimeout        time.Duration `json:"probe_timeout,omitempty"         yaml:"probe_timeout,omitempty"`
}

// CacheConfig configures the resolution cache.
type CacheConfig struct {
	Size          int           `json:"size,omitempty"           yaml:"size,omitempty"`
	TTL           time.Duration `json:"ttl,omitempty"            yaml:"ttl,omitempty"`
	RedisAddr     string        `json:"redis_addr,omitempty"     yaml:"redis_addr,omitempty"`
	RedisDB       int           `json:"redis_db,omitempty"       yaml:"redis_db,omitempty"`
	RedisPassword string        `json:"redis_password,omitempty" yaml:"redis_password,omitempty"`
	RedisPrefix   string        `json:"redis_prefix,omitempty"   yaml:"redis_prefix,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `json:"level,omitempty"  yaml:"level,omitempty"`
	ToFile bool   `json:"to_file,omitempty" yaml:"to_file,omitempty"`
	File   string `json:"file,omitempty"   yaml:"file,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr      string `json:"addr,omitempty"      yaml:"addr,omitempty"`
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
}

// String renders the config with secrets masked.
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  Backend: %s\n", c.Storage.Backend))
	sb.WriteString(fmt.Sprintf("  Region: %s\n", c.Storage.Region))
	sb.WriteString(fmt.Sprintf("  Endpoint: %s\n", c.Storage.Endpoint))
	sb.WriteString(fmt.Sprintf("  PublicBaseURL: %s\n", c.Storage.PublicBaseURL))
	sb.WriteString(fmt.Sprintf("  AccessKey: %s\n", mask(c.Storage.AccessKey)))
	sb.WriteString(fmt.Sprintf("  SecretKey: %s\n", mask(c.Storage.SecretKey)))
	sb.WriteString(fmt.Sprintf("  Bucket: %s\n", c.Resolver.BucketName))
	sb.WriteString(fmt.Sprintf("  MaxObjectBytes: %d\n", c.Resolver.MaxObjectBytes))
	sb.WriteString(fmt.Sprintf("  CacheSize: %d\n", c.Cache.Size))
	sb.WriteString(fmt.Sprintf("  CacheTTL: %s\n", c.Cache.TTL))
	sb.WriteString(fmt.Sprintf("  RedisAddr: %s\n", c.Cache.RedisAddr))
	sb.WriteString(fmt.Sprintf("  RedisPassword: %s\n", mask(c.Cache.RedisPassword)))
	return sb.String()
}

func mask(secret string) string {
	if secret == "" {
		return "(empty)"
	}
	return "********"
}
