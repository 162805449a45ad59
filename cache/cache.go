package cache

import (
	"context"
	"io"
	"log/slog"
	"time"
)

const (
	DefaultSize        = 1024
	DefaultTTL         = 24 * time.Hour
	DefaultRedisPrefix = "modelresolver:"
)

// Config selects the resolution cache. Zero Size and TTL take the defaults.
type Config struct {
	Size          int
	TTL           time.Duration
	RedisAddr     string
	RedisDB       int
	RedisPassword string
	RedisPrefix   string
}

// New builds the resolution cache described by cfg: an LRU, backed by Redis
// when an address is configured. The returned closer releases the Redis
// connection and is never nil.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Store, io.Closer) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	lru := NewLRU(cfg.Size, cfg.TTL)
	if cfg.RedisAddr == "" {
		return lru, nopCloser{}
	}

	rdb := NewRedis(RedisConfig{
		Addr:     cfg.RedisAddr,
		DB:       cfg.RedisDB,
		Password: cfg.RedisPassword,
		Prefix:   cfg.RedisPrefix,
		TTL:      cfg.TTL,
	}, logger)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx); err != nil {
		logger.Warn("redis unavailable, continuing with shared cache degraded to misses", "addr", cfg.RedisAddr)
	}
	return NewTiered(lru, rdb), rdb
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
