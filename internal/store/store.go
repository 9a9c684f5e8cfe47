package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a key/value cache with per-entry expiry.
type Store interface {
	// Get returns ok=false for missing or expired keys.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// Open returns the store for a configured driver: memory, sqlite3, postgres
// or redis.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemory(5 * time.Minute), nil
	case "sqlite3", "postgres":
		return OpenSQL(ctx, driver, dsn)
	case "redis":
		opts, err := redis.ParseURL(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid redis dsn: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return NewRedis(rdb, "windviz:"), nil
	default:
		return nil, fmt.Errorf("unsupported cache driver %q", driver)
	}
}
