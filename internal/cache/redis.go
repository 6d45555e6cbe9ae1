package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/membank-io/membank/internal/logging"
)

// Redis is the shared-deployment cache. All operations honor the caller's
// context; connection problems degrade to cache misses rather than errors.
type Redis struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRedis connects to the given host and port and verifies the connection
// with a short ping.
func NewRedis(host string, port int, logger *slog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connect %s:%d: %w", host, port, err)
	}

	return &Redis{
		client: client,
		log:    logging.Component(logger, "cache"),
	}, nil
}

// NewRedisFromClient wraps an existing client. Used by tests with miniredis.
func NewRedisFromClient(client *redis.Client, logger *slog.Logger) *Redis {
	return &Redis{
		client: client,
		log:    logging.Component(logger, "cache"),
	}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		r.log.Debug("cache get failed", "key", key, "error", err)
		return nil, false
	}
	return val, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.log.Debug("cache set failed", "key", key, "error", err)
	}
}

// InvalidatePrefix walks matching keys with SCAN and deletes them. KEYS is
// avoided so large keyspaces do not block the server.
func (r *Redis) InvalidatePrefix(ctx context.Context, prefix string) {
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			r.log.Debug("cache invalidate failed", "key", iter.Val(), "error", err)
		}
	}
	if err := iter.Err(); err != nil {
		r.log.Debug("cache scan failed", "prefix", prefix, "error", err)
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
