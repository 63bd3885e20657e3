package cache

import (
	"context"
	"path"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryCache is the in-process L1 tier: an expirable LRU plus a
// per-key generation map. Generations outlive eviction so a populate
// racing an invalidation is still discarded after the entry is gone.
type MemoryCache struct {
	mu    sync.Mutex
	lru   *lru.LRU[string, *Entry]
	gens  map[string]Generation
	hits  int64
	miss  int64
	clock func() time.Time
}

// NewMemoryCache creates a memory cache holding at most maxEntries live
// entries, each expiring after ttl.
func NewMemoryCache(maxEntries int, ttl time.Duration) *MemoryCache {
	if maxEntries < 16 {
		maxEntries = 16
	}
	return &MemoryCache{
		lru:   lru.NewLRU[string, *Entry](maxEntries, nil, ttl),
		gens:  make(map[string]Generation),
		clock: time.Now,
	}
}

// Get returns the live entry for the pair or ErrCacheMiss with the
// pair's current generation.
func (c *MemoryCache) Get(ctx context.Context, userID int64, tenantID *int64) (*Entry, Generation, error) {
	key := Key(userID, tenantID)

	c.mu.Lock()
	defer c.mu.Unlock()

	gen := c.gens[key]
	entry, ok := c.lru.Get(key)
	if !ok || entry.Expired(c.clock()) {
		if ok {
			c.lru.Remove(key)
		}
		c.miss++
		return nil, gen, ErrCacheMiss
	}

	c.hits++
	return entry, gen, nil
}

// Set stores an entry unless the pair was invalidated after gen was
// observed.
func (c *MemoryCache) Set(ctx context.Context, entry *Entry, gen Generation) error {
	key := Key(entry.UserID, entry.TenantID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gens[key] != gen {
		// Superseded by an invalidation; drop the write.
		return nil
	}
	c.lru.Add(key, entry)
	return nil
}

// Invalidate drops the pair's entry and bumps its generation.
func (c *MemoryCache) Invalidate(ctx context.Context, userID int64, tenantID *int64) error {
	key := Key(userID, tenantID)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[key]++
	c.lru.Remove(key)
	return nil
}

// InvalidatePattern drops every entry whose key matches the glob.
func (c *MemoryCache) InvalidatePattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Bump every known generation matching the glob, not just the live
	// entries, so in-flight populates for evicted keys are discarded too.
	for _, key := range c.lru.Keys() {
		if _, seen := c.gens[key]; !seen {
			c.gens[key] = 0
		}
	}
	for key := range c.gens {
		ok, err := path.Match(pattern, key)
		if err != nil {
			return err
		}
		if ok {
			c.gens[key]++
			c.lru.Remove(key)
		}
	}
	return nil
}

// Stats returns hit and miss counts since creation.
func (c *MemoryCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.miss
}

// Close purges all entries.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	return nil
}
