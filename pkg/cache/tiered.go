package cache

import (
	"context"
	"errors"

	"github.com/itellico/mono-access/pkg/observability"
)

// TieredCache layers a process-local L1 over a shared L2. Reads prefer
// L1 and repopulate it from L2 hits; writes go to L2 and drop the L1
// entry so the local tier can never outlive a shared invalidation.
type TieredCache struct {
	l1      Cache
	l2      Cache
	metrics *observability.Metrics
}

// NewTieredCache composes an L1 and an L2 tier.
func NewTieredCache(l1, l2 Cache) *TieredCache {
	return &TieredCache{l1: l1, l2: l2}
}

// WithMetrics enables per-tier hit/miss counters.
func (c *TieredCache) WithMetrics(m *observability.Metrics) *TieredCache {
	c.metrics = m
	return c
}

// Get returns the entry from the first tier holding it. The returned
// generation is the L2 generation, which is what a read-through populate
// must present to Set.
func (c *TieredCache) Get(ctx context.Context, userID int64, tenantID *int64) (*Entry, Generation, error) {
	entry, l1Gen, err := c.l1.Get(ctx, userID, tenantID)
	if err == nil {
		c.metrics.ObserveCache("l1", true)
		return entry, 0, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		return nil, 0, err
	}
	c.metrics.ObserveCache("l1", false)

	entry, l2Gen, err := c.l2.Get(ctx, userID, tenantID)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			c.metrics.ObserveCache("l2", false)
		}
		return nil, l2Gen, err
	}
	c.metrics.ObserveCache("l2", true)

	// Warm L1 under the generation observed on its miss; a racing L1
	// invalidation discards this write.
	_ = c.l1.Set(ctx, entry, l1Gen)
	return entry, l2Gen, nil
}

// Set writes through to L2 under the observed generation and drops the
// L1 entry, which repopulates from L2 on the next read.
func (c *TieredCache) Set(ctx context.Context, entry *Entry, gen Generation) error {
	if err := c.l2.Set(ctx, entry, gen); err != nil {
		return err
	}
	return c.l1.Invalidate(ctx, entry.UserID, entry.TenantID)
}

// Invalidate drops the pair from both tiers, shared tier first.
func (c *TieredCache) Invalidate(ctx context.Context, userID int64, tenantID *int64) error {
	l2Err := c.l2.Invalidate(ctx, userID, tenantID)
	l1Err := c.l1.Invalidate(ctx, userID, tenantID)
	if l2Err != nil {
		return l2Err
	}
	return l1Err
}

// InvalidatePattern drops matching pairs from both tiers.
func (c *TieredCache) InvalidatePattern(ctx context.Context, pattern string) error {
	l2Err := c.l2.InvalidatePattern(ctx, pattern)
	l1Err := c.l1.InvalidatePattern(ctx, pattern)
	if l2Err != nil {
		return l2Err
	}
	return l1Err
}

// Close closes both tiers.
func (c *TieredCache) Close() error {
	l1Err := c.l1.Close()
	l2Err := c.l2.Close()
	if l1Err != nil {
		return l1Err
	}
	return l2Err
}
