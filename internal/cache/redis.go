package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zeteolabs/zeteo/internal/model"
	"github.com/zeteolabs/zeteo/internal/pkg/logger"
)

const redisOpTimeout = 5 * time.Second

// RedisEntries is a Cache[[]model.LogEntry] backed by Redis, so cached
// query results survive process restarts and can be shared between
// sessions. Values are stored as JSON with a server-side TTL; Redis
// does its own expiry, so CleanupExpired is a no-op here.
type RedisEntries struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
	log        *logger.Logger
}

// NewRedisEntries connects to Redis and verifies the connection.
func NewRedisEntries(url, prefix string, defaultTTL time.Duration, log *logger.Logger) (*RedisEntries, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	if prefix == "" {
		prefix = "zeteo:entries:"
	}

	return &RedisEntries{
		client:     client,
		prefix:     prefix,
		defaultTTL: defaultTTL,
		log:        log.WithComponent("cache"),
	}, nil
}

// Get returns the cached entries for key. Unreachable Redis and decode
// failures both read as a miss so searches degrade to the backend.
func (r *RedisEntries) Get(key string) ([]model.LogEntry, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		r.log.Warn("redis get failed", "error", err)
		return nil, false
	}

	var entries []model.LogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		r.log.Warn("discarding undecodable cache value", "key", key, "error", err)
		return nil, false
	}
	return entries, true
}

// Set stores entries under key with the default TTL.
func (r *RedisEntries) Set(key string, entries []model.LogEntry) {
	r.SetTTL(key, entries, r.defaultTTL)
}

// SetTTL stores entries under key with an explicit TTL.
func (r *RedisEntries) SetTTL(key string, entries []model.LogEntry, ttl time.Duration) {
	data, err := json.Marshal(entries)
	if err != nil {
		r.log.Warn("failed to encode cache value", "key", key, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := r.client.Set(ctx, r.prefix+key, data, ttl).Err(); err != nil {
		r.log.Warn("redis set failed", "error", err)
	}
}

// Invalidate removes key.
func (r *RedisEntries) Invalidate(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		r.log.Warn("redis del failed", "error", err)
	}
}

// Clear removes every key under the cache prefix.
func (r *RedisEntries) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			r.log.Warn("redis del failed", "error", err)
		}
	}
	if err := iter.Err(); err != nil {
		r.log.Warn("redis scan failed", "error", err)
	}
}

// CleanupExpired is a no-op; Redis expires keys server-side.
func (r *RedisEntries) CleanupExpired() int {
	return 0
}

// Len counts the keys under the cache prefix.
func (r *RedisEntries) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	n := 0
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n
}

// Close releases the Redis connection.
func (r *RedisEntries) Close() error {
	return r.client.Close()
}
