package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trailhound/trailhound/internal/models"
)

// RedisMirror keeps an external copy of the result cache in Redis. The
// contract matches the memory cache; Redis being down never fails a
// lookup, it only loses the mirror.
type RedisMirror struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisMirror connects to Redis and verifies connectivity. A failed
// ping is returned to the caller, which should fall back to memory-only.
func NewRedisMirror(ctx context.Context, addr string, db int) (*RedisMirror, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis addr missing")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	logger := slog.Default().With("component", "cache_mirror")
	logger.Info("redis mirror connected", "addr", addr)
	return &RedisMirror{client: client, logger: logger}, nil
}

func mirrorKey(key string) string {
	return "trailhound:results:" + key
}

// Get retrieves mirrored results. A miss is not an error.
func (m *RedisMirror) Get(ctx context.Context, key string) ([]models.RawResult, bool, error) {
	val, err := m.client.Get(ctx, mirrorKey(key)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("mirror get failed: %w", err)
	}
	var results []models.RawResult
	if err := json.Unmarshal([]byte(val), &results); err != nil {
		// A corrupt mirror entry is treated as a miss
		m.logger.Debug("discarding unreadable mirror entry", "key", key, "error", err)
		return nil, false, nil
	}
	return results, true, nil
}

// Set writes results to the mirror with the cache TTL
func (m *RedisMirror) Set(ctx context.Context, key string, results []models.RawResult, ttl time.Duration) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("mirror marshal failed: %w", err)
	}
	if err := m.client.Set(ctx, mirrorKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("mirror set failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (m *RedisMirror) Close() error {
	return m.client.Close()
}
