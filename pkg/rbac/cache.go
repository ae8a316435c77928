package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/gatherhq/gather/pkg/observability"
	"github.com/gatherhq/gather/pkg/storage"
)

// Cache is the read-through accelerator in front of the durable store.
// Every method tolerates an unreachable Redis: reads report a miss,
// writes are dropped with a logged error and a metrics counter. Cache
// unavailability degrades latency, not correctness.
type Cache struct {
	client  *redis.Client
	ttls    map[string]time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewCache wires the cache layer. A nil client disables caching
// entirely; every read is then a miss.
func NewCache(client *redis.Client, config storage.Config, logger *observability.Logger, metrics *observability.Metrics) *Cache {
	if !config.CacheEnabled {
		client = nil
	}
	return &Cache{
		client:  client,
		ttls:    config.CacheTTL,
		logger:  logger,
		metrics: metrics,
	}
}

func roleIDKey(roleKey string) string {
	return "role:id:" + roleKey
}

func userRolesKey(userID string) string {
	return "roles:" + userID
}

func (c *Cache) ttl(kind string) time.Duration {
	if d, ok := c.ttls[kind]; ok {
		return d
	}
	return time.Hour
}

// GetRoleID reads a cached role id. The second return is false on miss
// or any cache error.
func (c *Cache) GetRoleID(ctx context.Context, roleKey string) (int64, bool) {
	if c.client == nil {
		return 0, false
	}

	val, err := c.client.Get(ctx, roleIDKey(roleKey)).Result()
	if err == redis.Nil {
		c.metrics.CacheMissesTotal.WithLabelValues(storage.CacheKindRoleID).Inc()
		return 0, false
	}
	if err != nil {
		c.readError(ctx, "get", roleIDKey(roleKey), err)
		return 0, false
	}

	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// Corrupt entry; drop it and fall back to the store.
		c.client.Del(ctx, roleIDKey(roleKey))
		c.metrics.CacheMissesTotal.WithLabelValues(storage.CacheKindRoleID).Inc()
		return 0, false
	}

	c.metrics.CacheHitsTotal.WithLabelValues(storage.CacheKindRoleID).Inc()
	return id, true
}

// SetRoleID populates the role-id lookup with the configured TTL.
func (c *Cache) SetRoleID(ctx context.Context, roleKey string, id int64) {
	c.SetRoleIDTTL(ctx, roleKey, id, c.ttl(storage.CacheKindRoleID))
}

// SetRoleIDTTL populates the role-id lookup with an explicit TTL, used
// by the startup warm-up pass.
func (c *Cache) SetRoleIDTTL(ctx context.Context, roleKey string, id int64, ttl time.Duration) {
	if c.client == nil {
		return
	}
	if err := c.client.Set(ctx, roleIDKey(roleKey), strconv.FormatInt(id, 10), ttl).Err(); err != nil {
		c.readError(ctx, "set", roleIDKey(roleKey), err)
	}
}

// GetRoleKeys reads a cached role-key set for a user.
func (c *Cache) GetRoleKeys(ctx context.Context, userID string) (RoleSet, bool) {
	if c.client == nil {
		return nil, false
	}

	val, err := c.client.Get(ctx, userRolesKey(userID)).Result()
	if err == redis.Nil {
		c.metrics.CacheMissesTotal.WithLabelValues(storage.CacheKindUserRole).Inc()
		return nil, false
	}
	if err != nil {
		c.readError(ctx, "get", userRolesKey(userID), err)
		return nil, false
	}

	var keys []string
	if err := json.Unmarshal([]byte(val), &keys); err != nil {
		c.client.Del(ctx, userRolesKey(userID))
		c.metrics.CacheMissesTotal.WithLabelValues(storage.CacheKindUserRole).Inc()
		return nil, false
	}

	c.metrics.CacheHitsTotal.WithLabelValues(storage.CacheKindUserRole).Inc()
	return NewRoleSet(keys...), true
}

// SetRoleKeys populates a user's role-key set.
func (c *Cache) SetRoleKeys(ctx context.Context, userID string, set RoleSet) {
	if c.client == nil {
		return
	}

	data, err := json.Marshal(set.Keys())
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, userRolesKey(userID), data, c.ttl(storage.CacheKindUserRole)).Err(); err != nil {
		c.readError(ctx, "set", userRolesKey(userID), err)
	}
}

// InvalidateRoleID drops the role-id entry after a durable write. A
// failure here is logged and counted, never propagated: the write
// already committed and the staleness window is bounded by the TTL.
func (c *Cache) InvalidateRoleID(ctx context.Context, roleKey string) {
	c.invalidate(ctx, roleIDKey(roleKey), storage.CacheKindRoleID)
}

// InvalidateRoleKeys drops a user's role-key set after a grant or
// revoke commits.
func (c *Cache) InvalidateRoleKeys(ctx context.Context, userID string) {
	c.invalidate(ctx, userRolesKey(userID), storage.CacheKindUserRole)
}

func (c *Cache) invalidate(ctx context.Context, key, kind string) {
	if c.client == nil {
		return
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.metrics.CacheInvalidationFailuresTotal.WithLabelValues(kind).Inc()
		c.logger.WithError(err).WithField("cache_key", key).
			Error("cache invalidation failed; stale window bounded by TTL")
		return
	}
	c.logger.WithField("cache_key", key).Debug("cache invalidated")
}

func (c *Cache) readError(ctx context.Context, op, key string, err error) {
	c.metrics.CacheErrorsTotal.WithLabelValues(op).Inc()
	c.logger.WithError(err).WithFields(map[string]interface{}{
		"operation": op,
		"cache_key": key,
	}).Warn(fmt.Sprintf("cache %s failed; falling back to store", op))
}
