package resolver

import (
	"slices"
	"strings"
	"time"
)

const (
	// LocalBlobPrefix marks ephemeral, process-local handles.
	LocalBlobPrefix = "blob:"

	DefaultBucketName      = "product-models"
	DefaultMaxObjectBytes  = 50 * 1024 * 1024
	DefaultContentType     = "model/gltf-binary"
	DefaultCacheControl    = "max-age=3600"
	DefaultObjectExtension = ".glb"
	DefaultHostMarker      = "supabase.co"
	DefaultStepTimeout     = 30 * time.Second
	DefaultProbeTimeout    = 5 * time.Second
)

// Config holds the resolver settings. Zero fields take the defaults.
type Config struct {
	// BucketName is the bucket uploads go to.
	BucketName string
	// MaxObjectBytes is the largest accepted payload; exactly this size is allowed.
	MaxObjectBytes int64
	// AllowedContentTypes restricts the declared type of uploaded blobs.
	// Empty allows everything; blobs without a declared type are always allowed.
	AllowedContentTypes []string
	// ContentType and CacheControl are attached to every uploaded object.
	ContentType  string
	CacheControl string
	// ObjectExtension is appended to generated object names.
	ObjectExtension string
	// StorageHostMarker identifies URLs that already point into the store,
	// together with the "/<bucket>/" path segment.
	StorageHostMarker string
	// StepTimeout bounds each storage and blob operation.
	StepTimeout time.Duration
	// ProbeTimeout bounds the reachability probe.
	ProbeTimeout time.Duration
}

// DefaultConfig returns the default resolver configuration.
func DefaultConfig() Config {
	return Config{
		BucketName:      DefaultBucketName,
		MaxObjectBytes:  DefaultMaxObjectBytes,
		ContentType:     DefaultContentType,
		CacheControl:    DefaultCacheControl,
		ObjectExtension: DefaultObjectExtension,
		AllowedContentTypes: []string{
			"model/gltf-binary",
			"model/gltf+json",
			"application/octet-stream",
		},
		StorageHostMarker: DefaultHostMarker,
		StepTimeout:       DefaultStepTimeout,
		ProbeTimeout:      DefaultProbeTimeout,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BucketName == "" {
		c.BucketName = def.BucketName
	}
	if c.MaxObjectBytes <= 0 {
		c.MaxObjectBytes = def.MaxObjectBytes
	}
	if c.ContentType == "" {
		c.ContentType = def.ContentType
	}
	if c.CacheControl == "" {
		c.CacheControl = def.CacheControl
	}
	if c.ObjectExtension == "" {
		c.ObjectExtension = def.ObjectExtension
	}
	if c.StorageHostMarker == "" {
		c.StorageHostMarker = def.StorageHostMarker
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = def.StepTimeout
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = def.ProbeTimeout
	}
	c.AllowedContentTypes = slices.Clone(c.AllowedContentTypes)
	return c
}

func (c Config) allowsContentType(contentType string) bool {
	if contentType == "" || len(c.AllowedContentTypes) == 0 {
		return true
	}
	// Drop parameters such as "; charset=binary".
	mediaType, _, _ := strings.Cut(contentType, ";")
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	for _, allowed := range c.AllowedContentTypes {
		if strings.EqualFold(allowed, mediaType) {
			return true
		}
	}
	return false
}

// IsLocalBlob reports whether reference is an ephemeral local handle.
func IsLocalBlob(reference string) bool {
	return strings.HasPrefix(reference, LocalBlobPrefix)
}
