package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const cachePrefix = "cache:"

// CacheRepo is the shared query cache. Dashboard reads go through it and the
// auth/role services invalidate it, so a session or role change is always
// followed by a refetch.
type CacheRepo struct {
	client *goredis.Client
}

func NewCacheRepo(client *goredis.Client) *CacheRepo {
	return &CacheRepo{client: client}
}

// Get unmarshals the cached payload for key into dest. Reports false on a
// miss.
func (r *CacheRepo) Get(ctx context.Context, key string, dest any) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	raw, err := r.client.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("get cache entry: %w", err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode cache entry: %w", err)
	}
	return true, nil
}

func (r *CacheRepo) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	if err := r.client.Set(ctx, cacheKey(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("set cache entry: %w", err)
	}
	return nil
}

// Invalidate drops the named keys and every namespaced entry under them
// (key and key:*).
func (r *CacheRepo) Invalidate(ctx context.Context, keys ...string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	for _, key := range keys {
		if err := r.client.Del(ctx, cacheKey(key)).Err(); err != nil {
			return fmt.Errorf("invalidate cache key %q: %w", key, err)
		}
		if err := r.deletePattern(ctx, cacheKey(key)+":*"); err != nil {
			return err
		}
	}
	return nil
}

// InvalidateAll wipes the whole cache namespace.
func (r *CacheRepo) InvalidateAll(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	return r.deletePattern(ctx, cachePrefix+"*")
}

func (r *CacheRepo) deletePattern(ctx context.Context, pattern string) error {
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("invalidate cache pattern %q: %w", pattern, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cache pattern %q: %w", pattern, err)
	}
	return nil
}

func cacheKey(key string) string {
	return cachePrefix + key
}
