package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"codeberg.org/snonux/doctrans/internal"
)

// Store is a key/value cache with per-entry expiry. A miss returns
// ok == false and a nil error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// Purger is implemented by stores that keep expired entries until they are
// explicitly purged.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

const keyPrefix = "file:processed:"

// Key derives the cache key of a document translated into lang.
func Key(content []byte, lang string) string {
	return keyPrefix + internal.ContentHash(content) + ":" + lang
}

// Config selects and configures a backend
type Config struct {
	Backend    string // "memory", "sqlite" or "redis"
	Path       string // sqlite database file
	RedisAddr  string
	TTL        time.Duration
	MaxEntries int
}

// DefaultConfig returns the in-memory configuration
func DefaultConfig() Config {
	return Config{
		Backend:    "memory",
		TTL:        2 * time.Hour,
		MaxEntries: 1000,
	}
}

// Open creates the configured backend
func Open(ctx context.Context, cfg Config, log *zap.Logger) (Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(cfg.MaxEntries, cfg.TTL), nil
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite cache requires a path")
		}
		store, err := NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		log.Info("sqlite cache opened", zap.String("path", cfg.Path))
		return store, nil
	case "redis":
		store, err := NewRedisStore(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		log.Info("redis cache connected", zap.String("addr", cfg.RedisAddr))
		return store, nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}
