package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the shared second-level cache.
type RedisConfig struct {
	Addr     string
	DB       int
	Password string
	Prefix   string
	TTL      time.Duration
}

// Redis is a resolution cache shared between processes. Redis failures are
// logged and behave like misses.
type Redis struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedis(cfg RedisConfig, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	})
	return &Redis{rdb: rdb, prefix: cfg.Prefix, ttl: cfg.TTL, logger: logger}
}

func (c *Redis) Ping(ctx context.Context) error {
	err := c.rdb.Ping(ctx).Err()
	if err != nil {
		c.logger.Warn("redis ping failed", "addr", c.rdb.Options().Addr, "error", err)
	}
	return err
}

func (c *Redis) Get(ctx context.Context, reference string) (string, bool) {
	url, err := c.rdb.Get(ctx, c.prefix+reference).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		c.logger.Warn("redis get failed", "reference", reference, "error", err)
		return "", false
	}
	return url, true
}

func (c *Redis) Set(ctx context.Context, reference, url string) {
	if err := c.rdb.Set(ctx, c.prefix+reference, url, c.ttl).Err(); err != nil {
		c.logger.Warn("redis set failed", "reference", reference, "error", err)
	}
}

func (c *Redis) Close() error {
	return c.rdb.Close()
}
