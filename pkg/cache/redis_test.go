package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

// setupRedisCacheTest starts a miniredis instance and returns the cache
// and a cleanup function.
func setupRedisCacheTest(t *testing.T) (*RedisCache, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCacheFromClient(client)

	cleanup := func() {
		c.Close()
		mr.Close()
	}
	return c, mr, cleanup
}

func TestRedisCache_GetSet(t *testing.T) {
	c, _, cleanup := setupRedisCacheTest(t)
	defer cleanup()

	ctx := context.Background()
	tenant := int64(7)

	_, gen, err := c.Get(ctx, 1, &tenant)
	if err != ErrCacheMiss {
		t.Fatalf("Expected cache miss, got %v", err)
	}

	if err := c.Set(ctx, testEntry(1, &tenant, time.Minute), gen); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	entry, _, err := c.Get(ctx, 1, &tenant)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(entry.Granted) != 1 || entry.Granted[0] != "profiles.read.tenant" {
		t.Fatalf("Unexpected entry granted set: %v", entry.Granted)
	}
}

func TestRedisCache_InvalidationWinsOverRacingPopulate(t *testing.T) {
	c, _, cleanup := setupRedisCacheTest(t)
	defer cleanup()

	ctx := context.Background()
	tenant := int64(7)

	_, staleGen, err := c.Get(ctx, 1, &tenant)
	if err != ErrCacheMiss {
		t.Fatalf("Expected cache miss, got %v", err)
	}

	if err := c.Invalidate(ctx, 1, &tenant); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	// The late populate carries the pre-invalidation generation and must
	// be discarded by the compare-and-set script.
	if err := c.Set(ctx, testEntry(1, &tenant, time.Minute), staleGen); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	_, freshGen, err := c.Get(ctx, 1, &tenant)
	if err != ErrCacheMiss {
		t.Fatalf("Expected stale populate to be discarded, got %v", err)
	}
	if freshGen == staleGen {
		t.Fatalf("Expected generation bump, still %d", freshGen)
	}

	if err := c.Set(ctx, testEntry(1, &tenant, time.Minute), freshGen); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, _, err := c.Get(ctx, 1, &tenant); err != nil {
		t.Fatalf("Expected fresh populate to be served, got %v", err)
	}
}

func TestRedisCache_InvalidateDropsEntry(t *testing.T) {
	c, _, cleanup := setupRedisCacheTest(t)
	defer cleanup()

	ctx := context.Background()
	tenant := int64(7)

	_, gen, _ := c.Get(ctx, 1, &tenant)
	if err := c.Set(ctx, testEntry(1, &tenant, time.Minute), gen); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Invalidate(ctx, 1, &tenant); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, _, err := c.Get(ctx, 1, &tenant); err != ErrCacheMiss {
		t.Fatalf("Expected cache miss after invalidation, got %v", err)
	}
}

func TestRedisCache_InvalidatePattern(t *testing.T) {
	c, _, cleanup := setupRedisCacheTest(t)
	defer cleanup()

	ctx := context.Background()
	t7, t9 := int64(7), int64(9)

	for _, pair := range []struct {
		user   int64
		tenant *int64
	}{{1, &t7}, {2, &t7}, {3, &t9}} {
		_, gen, _ := c.Get(ctx, pair.user, pair.tenant)
		if err := c.Set(ctx, testEntry(pair.user, pair.tenant, time.Minute), gen); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	if err := c.InvalidatePattern(ctx, KeyPattern(&t7)); err != nil {
		t.Fatalf("InvalidatePattern failed: %v", err)
	}

	if _, _, err := c.Get(ctx, 1, &t7); err != ErrCacheMiss {
		t.Fatalf("Expected tenant 7 pair dropped, got %v", err)
	}
	if _, _, err := c.Get(ctx, 3, &t9); err != nil {
		t.Fatalf("Expected tenant 9 pair retained, got %v", err)
	}
}

func TestRedisCache_CorruptEntryTreatedAsMiss(t *testing.T) {
	c, mr, cleanup := setupRedisCacheTest(t)
	defer cleanup()

	ctx := context.Background()
	tenant := int64(7)
	mr.Set(Key(1, &tenant), "{not json")

	if _, _, err := c.Get(ctx, 1, &tenant); err != ErrCacheMiss {
		t.Fatalf("Expected corrupt entry to read as miss, got %v", err)
	}
}

func TestRedisCache_DownstreamFailureSurfacesAsError(t *testing.T) {
	c, mr, cleanup := setupRedisCacheTest(t)
	defer cleanup()

	mr.Close()

	ctx := context.Background()
	tenant := int64(7)
	_, _, err := c.Get(ctx, 1, &tenant)
	if err == nil || err == ErrCacheMiss {
		t.Fatalf("Expected transport error, got %v", err)
	}
}
