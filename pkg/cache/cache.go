package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCacheMiss indicates the pair has no live entry. Callers fall
// through to the authoritative store.
var ErrCacheMiss = errors.New("cache miss")

// Generation is an opaque per-pair counter. A populate must present the
// generation observed at miss time; writes carrying an older generation
// than the pair's current one are discarded, so invalidations are never
// overwritten by stale data.
type Generation uint64

// Entry is the cached resolved permission set for a (user, tenant)
// pair. Granted is the effective allow set (direct plus role-derived);
// Direct and FromRoles preserve the provenance split; Denied holds
// explicit deny patterns; Roles holds raw role codes as stored. An
// entry past ExpiresAt is never served.
type Entry struct {
	UserID    int64     `json:"user_id"`
	TenantID  *int64    `json:"tenant_id,omitempty"`
	Roles     []string  `json:"roles"`
	Granted   []string  `json:"granted"`
	Direct    []string  `json:"direct,omitempty"`
	FromRoles []string  `json:"from_roles,omitempty"`
	Denied    []string  `json:"denied,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry's TTL has elapsed at the given
// instant.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// Cache is the swappable permission cache abstraction. Implementations
// must be safe for concurrent use.
type Cache interface {
	// Get returns the live entry for the pair, or ErrCacheMiss together
	// with the pair's current generation for a subsequent Set.
	Get(ctx context.Context, userID int64, tenantID *int64) (*Entry, Generation, error)

	// Set stores an entry populated under the given generation. If the
	// pair has been invalidated since, the write is discarded.
	Set(ctx context.Context, entry *Entry, gen Generation) error

	// Invalidate drops the pair's entry and bumps its generation.
	Invalidate(ctx context.Context, userID int64, tenantID *int64) error

	// InvalidatePattern drops every entry whose key matches the glob
	// pattern, for bulk invalidation after a platform-wide permission
	// definition change. Patterns use Key-shaped globs, e.g. "perm:*"
	// or KeyPattern output.
	InvalidatePattern(ctx context.Context, pattern string) error

	// Close releases underlying resources.
	Close() error
}

const keyPrefix = "perm"

// Key builds the cache key for a (user, tenant) pair. A nil tenant is
// keyed with "-" so platform-level users do not collide with tenant 0.
func Key(userID int64, tenantID *int64) string {
	if tenantID == nil {
		return fmt.Sprintf("%s:%d:-", keyPrefix, userID)
	}
	return fmt.Sprintf("%s:%d:%d", keyPrefix, userID, *tenantID)
}

// UserKeyPattern builds a glob matching every pair key for a user. A
// tenant-less grant applies under every tenant, so its invalidation has
// to reach all of the user's pairs, not just the nil-tenant one.
func UserKeyPattern(userID int64) string {
	return fmt.Sprintf("%s:%d:*", keyPrefix, userID)
}

// KeyPattern builds a glob matching every pair key for a tenant, or all
// pair keys when tenantID is nil.
func KeyPattern(tenantID *int64) string {
	if tenantID == nil {
		return keyPrefix + ":*"
	}
	return fmt.Sprintf("%s:*:%d", keyPrefix, *tenantID)
}
