package storage

import (
	"context"
	"log/slog"

	"github.com/reillywatson/modelresolver/config"
	"github.com/reillywatson/modelresolver/storage/local"
	"github.com/reillywatson/modelresolver/storage/remote"
)

const memoryBaseURL = "memory://objects"

// New creates the object store models are uploaded to.
//
// Object store option:
// 1. local disk or process memory
// 2. Amazon S3, Google Cloud Storage or MinIO
// 3. any of the above, mirrored into a local directory
//
// A cloud backend that cannot be configured falls back to local disk.
func New(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) remote.Storage {
	if logger == nil {
		logger = slog.Default()
	}
	store := newPrimary(ctx, cfg, logger)
	if cfg.MirrorDir == "" {
		return store
	}
	return local.NewMirror(store, local.NewDisk(cfg.MirrorDir, "", logger), logger)
}

func newPrimary(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) remote.Storage {
	disk := func() remote.Storage {
		return local.NewDisk(cfg.Dir, cfg.PublicBaseURL, logger)
	}

	switch cfg.Backend {
	case config.BackendS3:
		s3Client, region, err := remote.NewAmazonS3Client(ctx, cfg.Region)
		if err != nil {
			logger.Warn("Amazon S3 configuration failed, using local disk", "error", err)
			return disk()
		}
		return remote.NewAmazonS3(s3Client, region, cfg.PublicBaseURL, logger)

	case config.BackendGCS:
		cloudStorageClient, err := remote.NewGoogleCloudStorageClient(ctx)
		if err != nil {
			logger.Warn("Google Cloud Storage configuration failed, using local disk", "error", err)
			return disk()
		}
		return remote.NewGoogleCloudStorage(cloudStorageClient, cfg.ProjectID, cfg.PublicBaseURL, logger)

	case config.BackendMinIO:
		minioClient, err := remote.NewMinIOClient(remote.MinIOConfig{
			Endpoint:  cfg.Endpoint,
			Region:    cfg.Region,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			PathStyle: cfg.PathStyle,
		})
		if err != nil {
			logger.Warn("MinIO configuration failed, using local disk", "error", err)
			return disk()
		}
		return remote.NewMinIO(minioClient, cfg.Region, cfg.PublicBaseURL, logger)

	case config.BackendMemory:
		baseURL := cfg.PublicBaseURL
		if baseURL == "" {
			baseURL = memoryBaseURL
		}
		return local.NewMemory(baseURL)

	default:
		return disk()
	}
}
