package cache

import (
	"strings"
	"time"

	"github.com/zeteolabs/zeteo/internal/config"
	"github.com/zeteolabs/zeteo/internal/model"
	"github.com/zeteolabs/zeteo/internal/pkg/errors"
	"github.com/zeteolabs/zeteo/internal/pkg/logger"
)

// Entries is the cache shape the explorer stores search results in.
type Entries = Cache[[]model.LogEntry]

// NewEntries creates the entry cache selected by the configuration tag.
func NewEntries(cfg config.CacheConfig, log *logger.Logger) (Entries, error) {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		return NewMemory[[]model.LogEntry](ttl), nil

	case "redis":
		if cfg.RedisURL == "" {
			return nil, errors.ConfigError("redis cache selected but redis_url not set")
		}
		c, err := NewRedisEntries(cfg.RedisURL, cfg.Prefix, ttl, log)
		if err != nil {
			return nil, errors.Wrap(errors.CodeConfig, "connecting to redis cache", err)
		}
		return c, nil

	default:
		return nil, errors.Newf(errors.CodeConfig, "unknown cache type: %s", cfg.Type)
	}
}
