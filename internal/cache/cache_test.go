package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/opensource-finance/heron/internal/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	scope := "workspace-001"

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, scope, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, scope, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, scope, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, scope, "key2", []byte("value2"), time.Minute)

		if err := cache.Delete(ctx, scope, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, scope, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		clock := newClock()
		c := NewLRUCache(10)
		c.now = clock.Now

		_ = c.Set(ctx, scope, "expiring", []byte("temp"), 10*time.Second)
		if val, _ := c.Get(ctx, scope, "expiring"); val == nil {
			t.Error("expected value before expiration")
		}

		clock.Advance(11 * time.Second)
		if val, _ := c.Get(ctx, scope, "expiring"); val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("NoExpiry", func(t *testing.T) {
		clock := newClock()
		c := NewLRUCache(10)
		c.now = clock.Now

		_ = c.Set(ctx, scope, "forever", []byte("v"), 0)
		clock.Advance(24 * time.Hour)
		if val, _ := c.Get(ctx, scope, "forever"); val == nil {
			t.Error("expected entry without ttl to survive")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		smallCache := NewLRUCache(3)

		_ = smallCache.Set(ctx, scope, "a", []byte("1"), time.Minute)
		_ = smallCache.Set(ctx, scope, "b", []byte("2"), time.Minute)
		_ = smallCache.Set(ctx, scope, "c", []byte("3"), time.Minute)

		// Access 'a' to make it recently used
		_, _ = smallCache.Get(ctx, scope, "a")

		_ = smallCache.Set(ctx, scope, "d", []byte("4"), time.Minute)

		if val, _ := smallCache.Get(ctx, scope, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		if val, _ := smallCache.Get(ctx, scope, "a"); val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("ScopeIsolation", func(t *testing.T) {
		_ = cache.Set(ctx, "ws-1", "shared-key", []byte("one"), time.Minute)
		_ = cache.Set(ctx, "ws-2", "shared-key", []byte("two"), time.Minute)

		val1, _ := cache.Get(ctx, "ws-1", "shared-key")
		val2, _ := cache.Get(ctx, "ws-2", "shared-key")

		if string(val1) != "one" {
			t.Errorf("expected 'one', got '%s'", string(val1))
		}
		if string(val2) != "two" {
			t.Errorf("expected 'two', got '%s'", string(val2))
		}
	})

	t.Run("RequiresScope", func(t *testing.T) {
		if err := cache.Set(ctx, "", "key", []byte("value"), time.Minute); err == nil {
			t.Error("expected error for empty scope")
		}
		if _, err := cache.Get(ctx, "", "key"); err == nil {
			t.Error("expected error for empty scope")
		}
	})

	t.Run("Stats", func(t *testing.T) {
		statsCache := NewLRUCache(50)
		_ = statsCache.Set(ctx, scope, "k1", []byte("v1"), time.Minute)
		_ = statsCache.Set(ctx, scope, "k2", []byte("v2"), time.Minute)

		size, capacity := statsCache.Stats()
		if size != 2 {
			t.Errorf("expected size 2, got %d", size)
		}
		if capacity != 50 {
			t.Errorf("expected capacity 50, got %d", capacity)
		}
	})

	t.Run("Close", func(t *testing.T) {
		testCache := NewLRUCache(10)
		_ = testCache.Set(ctx, scope, "k", []byte("v"), time.Minute)

		if err := testCache.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
		if val, _ := testCache.Get(ctx, scope, "k"); val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := NewRedisCache(mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("NewRedisCache failed: %v", err)
	}
	defer c.Close()

	t.Run("SetAndGet", func(t *testing.T) {
		if err := c.Set(ctx, "ws", "collection:RAID Log", []byte(`{"value":[]}`), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if !mr.Exists("heron:ws:collection:RAID Log") {
			t.Error("expected prefixed key in redis")
		}
		val, err := c.Get(ctx, "ws", "collection:RAID Log")
		if err != nil || string(val) != `{"value":[]}` {
			t.Errorf("unexpected value %q (%v)", val, err)
		}
	})

	t.Run("Expiry", func(t *testing.T) {
		_ = c.Set(ctx, "ws", "short", []byte("x"), time.Second)
		mr.FastForward(2 * time.Second)
		if val, _ := c.Get(ctx, "ws", "short"); val != nil {
			t.Error("expected expired key to be gone")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = c.Set(ctx, "ws", "gone", []byte("x"), 0)
		if err := c.Delete(ctx, "ws", "gone"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := c.Get(ctx, "ws", "gone"); val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := c.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestTwoPhaseCache(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := NewTwoPhaseCache(domain.CacheConfig{RedisAddr: mr.Addr(), LocalMaxSize: 10})
	if err != nil {
		t.Fatalf("NewTwoPhaseCache failed: %v", err)
	}
	defer c.Close()

	t.Run("WritesBothTiers", func(t *testing.T) {
		_ = c.Set(ctx, "ws", "k", []byte("v"), time.Minute)
		if !mr.Exists("heron:ws:k") {
			t.Error("expected L2 write")
		}
		if size, _ := c.Stats(); size != 1 {
			t.Errorf("expected L1 size 1, got %d", size)
		}
	})

	t.Run("PopulatesL1FromL2", func(t *testing.T) {
		if err := mr.Set("heron:ws:remote-only", "r"); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
		val, err := c.Get(ctx, "ws", "remote-only")
		if err != nil || string(val) != "r" {
			t.Fatalf("unexpected value %q (%v)", val, err)
		}
		if local, _ := c.local.Get(ctx, "ws", "remote-only"); string(local) != "r" {
			t.Error("expected L1 to be populated")
		}
	})

	t.Run("DeleteBothTiers", func(t *testing.T) {
		_ = c.Delete(ctx, "ws", "k")
		if mr.Exists("heron:ws:k") {
			t.Error("expected L2 delete")
		}
		if local, _ := c.local.Get(ctx, "ws", "k"); local != nil {
			t.Error("expected L1 delete")
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cache, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		if _, ok := cache.(*LRUCache); !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("NoneType", func(t *testing.T) {
		cache, err := New(domain.CacheConfig{Type: "none"})
		if err != nil || cache != nil {
			t.Errorf("expected nil cache, got %v (%v)", cache, err)
		}
	})

	t.Run("RedisType", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cache, err := New(domain.CacheConfig{Type: "redis", RedisAddr: mr.Addr()})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()
		if _, ok := cache.(*RedisCache); !ok {
			t.Error("expected RedisCache for redis type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
