package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gatherhq/gather/pkg/observability"
	"github.com/gatherhq/gather/pkg/storage"
)

func newTestCache(t *testing.T) (*Cache, *observability.Metrics, func()) {
	t.Helper()

	mr, client := NewTestRedis(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	cache := NewCache(client, testCacheConfig(), NewTestLogger(t), metrics)
	return cache, metrics, func() { mr.Close() }
}

func TestCache_RoleIDRoundTrip(t *testing.T) {
	cache, _, _ := newTestCache(t)
	ctx := context.Background()

	if _, ok := cache.GetRoleID(ctx, "global:admin"); ok {
		t.Fatal("expected miss on empty cache")
	}

	cache.SetRoleID(ctx, "global:admin", 17)

	id, ok := cache.GetRoleID(ctx, "global:admin")
	if !ok {
		t.Fatal("expected hit after set")
	}
	if id != 17 {
		t.Errorf("expected id 17, got %d", id)
	}
}

func TestCache_RoleKeysRoundTrip(t *testing.T) {
	cache, _, _ := newTestCache(t)
	ctx := context.Background()

	if _, ok := cache.GetRoleKeys(ctx, "user-1"); ok {
		t.Fatal("expected miss on empty cache")
	}

	cache.SetRoleKeys(ctx, "user-1", NewRoleSet("mentor:access", "channel:3:post"))

	set, ok := cache.GetRoleKeys(ctx, "user-1")
	if !ok {
		t.Fatal("expected hit after set")
	}
	if len(set) != 2 || !set.Has("mentor:access") || !set.Has("channel:3:post") {
		t.Errorf("unexpected set: %v", set.Keys())
	}
}

func TestCache_Invalidate(t *testing.T) {
	cache, _, _ := newTestCache(t)
	ctx := context.Background()

	cache.SetRoleID(ctx, "global:admin", 17)
	cache.InvalidateRoleID(ctx, "global:admin")
	if _, ok := cache.GetRoleID(ctx, "global:admin"); ok {
		t.Error("expected miss after invalidation")
	}

	cache.SetRoleKeys(ctx, "user-1", NewRoleSet("mentor:access"))
	cache.InvalidateRoleKeys(ctx, "user-1")
	if _, ok := cache.GetRoleKeys(ctx, "user-1"); ok {
		t.Error("expected miss after invalidation")
	}
}

func TestCache_CorruptEntryTreatedAsMiss(t *testing.T) {
	mr, client := NewTestRedis(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	cache := NewCache(client, testCacheConfig(), NewTestLogger(t), metrics)
	ctx := context.Background()

	mr.Set("role:id:global:admin", "not-a-number")
	if _, ok := cache.GetRoleID(ctx, "global:admin"); ok {
		t.Error("corrupt id entry must be a miss")
	}

	mr.Set("roles:user-1", "{broken json")
	if _, ok := cache.GetRoleKeys(ctx, "user-1"); ok {
		t.Error("corrupt set entry must be a miss")
	}
}

func TestCache_DisabledIsAlwaysMiss(t *testing.T) {
	cfg := storage.DefaultConfig()
	cfg.CacheEnabled = false

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	cache := NewCache(nil, cfg, NewTestLogger(t), metrics)
	ctx := context.Background()

	cache.SetRoleID(ctx, "global:admin", 17)
	if _, ok := cache.GetRoleID(ctx, "global:admin"); ok {
		t.Error("disabled cache must always miss")
	}

	// Invalidation on a disabled cache must be a silent no-op.
	cache.InvalidateRoleID(ctx, "global:admin")
	cache.InvalidateRoleKeys(ctx, "user-1")
}

func TestCache_InvalidationFailureIsCounted(t *testing.T) {
	cache, metrics, closeRedis := newTestCache(t)
	ctx := context.Background()

	cache.SetRoleID(ctx, "global:admin", 17)
	closeRedis()

	cache.InvalidateRoleID(ctx, "global:admin")

	failures := testutil.ToFloat64(
		metrics.CacheInvalidationFailuresTotal.WithLabelValues(storage.CacheKindRoleID),
	)
	if failures != 1 {
		t.Errorf("expected 1 counted invalidation failure, got %v", failures)
	}
}

func TestCache_TTLApplied(t *testing.T) {
	mr, client := NewTestRedis(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	cache := NewCache(client, testCacheConfig(), NewTestLogger(t), metrics)
	ctx := context.Background()

	cache.SetRoleIDTTL(ctx, "global:admin", 17, 12*time.Hour)

	ttl := mr.TTL("role:id:global:admin")
	if ttl != 12*time.Hour {
		t.Errorf("expected 12h TTL, got %v", ttl)
	}

	// Expiry behaves like a miss, forcing the store fallback.
	mr.FastForward(13 * time.Hour)
	if _, ok := cache.GetRoleID(ctx, "global:admin"); ok {
		t.Error("expected miss after TTL expiry")
	}
}
