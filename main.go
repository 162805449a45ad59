package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/reillywatson/modelresolver/blob"
	"github.com/reillywatson/modelresolver/cache"
	"github.com/reillywatson/modelresolver/config"
	"github.com/reillywatson/modelresolver/logger"
	"github.com/reillywatson/modelresolver/metrics"
	"github.com/reillywatson/modelresolver/resolver"
	"github.com/reillywatson/modelresolver/server"
	"github.com/reillywatson/modelresolver/storage"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	configPath  = flag.String("config", "", "YAML config file, reloaded on change")
	backend     = flag.String("backend", "", "object store: s3, gcs, minio, disk or memory")
	bucket      = flag.String("bucket", "", "bucket models are uploaded to")
	storageDir  = flag.String("dir", "", "root directory of the disk object store")
	verbose     = flag.Bool("verbose", false, "print detail log")
	metricsAddr = flag.String("metrics-addr", "", "address to serve Prometheus metrics on")
)

const blobOrigin = "modelresolver://local"

func main() {
	flag.Parse()
	if err := run(); err != nil {
		slog.Error("modelresolver failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var current atomic.Pointer[resolver.Resolver]
	cfg := config.FromEnv()
	if *configPath != "" {
		w, err := config.NewWatcher(*configPath, func(next *config.Config, err error) {
			if err != nil {
				slog.Warn("config reload failed, keeping previous settings", "path", *configPath, "error", err)
				return
			}
			applyFlags(next)
			if res := current.Load(); res != nil {
				res.Reconfigure(resolverConfig(next.Resolver))
				slog.Info("resolver reconfigured", "bucket", next.Resolver.BucketName)
			}
		})
		if err != nil {
			return err
		}
		defer w.Close()
		cfg = w.Snapshot()
	}
	applyFlags(cfg)

	level := logger.ParseLevel(cfg.Log.Level)
	if *verbose {
		level = slog.LevelDebug
	}
	log := logger.New(logger.EnvironmentFromEnv(),
		logger.WithLevel(level),
		logger.WithLogToFile(cfg.Log.ToFile),
		logger.WithLogFile(cfg.Log.File),
	)
	slog.SetDefault(log)
	log.Debug("configuration loaded", "config", cfg.String())

	store := storage.New(ctx, cfg.Storage, log)
	resolutions, cacheCloser := cache.New(ctx, cacheConfig(cfg.Cache), log)
	defer cacheCloser.Close()

	opts := []resolver.Option{
		resolver.WithConfig(resolverConfig(cfg.Resolver)),
		resolver.WithCache(resolutions),
		resolver.WithLogger(log),
	}
	if cfg.Metrics.Addr != "" {
		observer, err := metrics.NewObserver(cfg.Metrics.Namespace, prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		opts = append(opts, resolver.WithObserver(observer))
		stop := serveMetrics(cfg.Metrics.Addr, log)
		defer stop()
	}

	blobs := blob.NewRegistry(blobOrigin)
	res := resolver.New(store, blobs, opts...)
	current.Store(res)

	process := server.NewProcess(res, blobs, store, log)
	if err := process.Run(ctx, os.Stdin, os.Stdout); err != nil {
		return err
	}

	if *verbose {
		fmt.Fprintln(os.Stderr, store.Summary())
		fmt.Fprintln(os.Stderr, res.Summary())
	}
	return nil
}

// applyFlags lets command line flags win over the file and environment.
func applyFlags(cfg *config.Config) {
	if *backend != "" {
		cfg.Storage.Backend = config.Backend(*backend)
	}
	if *bucket != "" {
		cfg.Resolver.BucketName = *bucket
	}
	if *storageDir != "" {
		cfg.Storage.Dir = *storageDir
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
}

func resolverConfig(c config.ResolverConfig) resolver.Config {
	return resolver.Config{
		BucketName:          c.BucketName,
		MaxObjectBytes:      c.MaxObjectBytes,
		AllowedContentTypes: c.AllowedContentTypes,
		ContentType:         c.ContentType,
		CacheControl:        c.CacheControl,
		ObjectExtension:     c.ObjectExtension,
		StorageHostMarker:   c.StorageHostMarker,
		StepTimeout:         c.StepTimeout,
		ProbeTimeout:        c.ProbeTimeout,
	}
}

func cacheConfig(c config.CacheConfig) cache.Config {
	return cache.Config{
		Size:          c.Size,
		TTL:           c.TTL,
		RedisAddr:     c.RedisAddr,
		RedisDB:       c.RedisDB,
		RedisPassword: c.RedisPassword,
		RedisPrefix:   c.RedisPrefix,
	}
}

func serveMetrics(addr string, log *slog.Logger) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(prometheus.DefaultGatherer))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	log.Info("serving metrics", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
