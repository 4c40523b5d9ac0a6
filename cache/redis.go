package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/redis/go-redis/v9"

	"github.com/goliatone/go-tenant/core"
)

// Redis backs the cache with a shared Redis instance so tenant lookups stay
// warm across processes. Values are stored as JSON. Backend unavailability
// degrades: Get becomes a miss, writes become no-ops; each degradation is
// logged and never surfaced to the caller.
type Redis struct {
	client    redis.UniversalClient
	namespace string
	logger    core.Logger
}

type RedisConfig struct {
	Client redis.UniversalClient
	// Namespace prefixes every key so Clear can scan this cache's keys
	// without touching tenants of the Redis instance it does not own.
	Namespace string
	Logger    core.Logger
}

func NewRedis(cfg RedisConfig) *Redis {
	logger := cfg.Logger
	if logger == nil {
		_, logger = glog.Resolve("tenant.cache", nil, nil)
	}
	namespace := strings.TrimSpace(cfg.Namespace)
	if namespace == "" {
		namespace = "go-tenant"
	}
	return &Redis{client: cfg.Client, namespace: namespace, logger: logger}
}

func (r *Redis) key(key string) string {
	return r.namespace + "::" + key
}

func (r *Redis) Get(ctx context.Context, key string) core.CacheEntry {
	if r == nil || r.client == nil {
		return core.CacheEntry{}
	}
	payload, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.degraded("get", key, err)
		}
		return core.CacheEntry{}
	}
	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		r.degraded("decode", key, err)
		return core.CacheEntry{}
	}
	return core.CacheEntry{Value: value, Found: true}
}

func (r *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if r == nil || r.client == nil || strings.TrimSpace(key) == "" {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		r.degraded("encode", key, err)
		return
	}
	if err := r.client.Set(ctx, r.key(key), payload, ttl).Err(); err != nil {
		r.degraded("set", key, err)
	}
}

func (r *Redis) Delete(ctx context.Context, key string) {
	if r == nil || r.client == nil {
		return
	}
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		r.degraded("delete", key, err)
	}
}

func (r *Redis) Clear(ctx context.Context) {
	r.invalidatePattern(ctx, r.key("*"))
}

func (r *Redis) InvalidateByPrefix(ctx context.Context, prefix string) {
	if strings.TrimSpace(prefix) == "" {
		return
	}
	r.invalidatePattern(ctx, r.key(prefix)+"*")
}

func (r *Redis) invalidatePattern(ctx context.Context, pattern string) {
	if r == nil || r.client == nil {
		return
	}
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				r.degraded("invalidate", pattern, err)
				return
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		r.degraded("scan", pattern, err)
		return
	}
	if len(keys) > 0 {
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			r.degraded("invalidate", pattern, err)
		}
	}
}

func (r *Redis) degraded(operation, key string, err error) {
	if r.logger == nil {
		return
	}
	r.logger.Warn("cache degraded to miss",
		"operation", operation,
		"key", key,
		"text_code", core.TenantErrorCacheUnavailable,
		"error", err)
}

var _ core.CacheService = (*Redis)(nil)
