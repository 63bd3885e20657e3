package permissions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/itellico/mono-access/pkg/access"
	"github.com/itellico/mono-access/pkg/cache"
	"github.com/itellico/mono-access/pkg/observability"
	"github.com/itellico/mono-access/pkg/registry"
	"github.com/itellico/mono-access/pkg/store"
)

// DefaultTTL bounds how long a resolved permission set may be served
// from cache before a fresh read-through.
const DefaultTTL = 5 * time.Minute

// Service resolves user permission sets from the store, caching results
// per (user, tenant) pair. The cache is optional; without one every
// resolution hits the store directly.
type Service struct {
	store  store.Store
	cache  cache.Cache
	ttl    time.Duration
	logger *observability.Logger
	now    func() time.Time
}

// NewService creates a permission resolution service. A nil cache
// disables caching; a zero ttl falls back to DefaultTTL.
func NewService(st store.Store, c cache.Cache, ttl time.Duration, logger *observability.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Service{
		store:  st,
		cache:  c,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// GetUserPermissions returns the resolved permission set for the pair.
// Cache hits are served as-is; on a miss the set is loaded from the
// store and written back under the generation observed at miss time, so
// an invalidation racing the load wins and the stale write is dropped.
// A user without an account row yields access.ErrPermissionsNotFound,
// which is distinct from an existing user with no grants.
func (s *Service) GetUserPermissions(ctx context.Context, userID int64, tenantID *int64) (*UserPermissions, error) {
	if s.cache == nil {
		return s.resolve(ctx, userID, tenantID)
	}

	entry, gen, err := s.cache.Get(ctx, userID, tenantID)
	switch {
	case err == nil:
		return s.fromEntry(entry), nil
	case errors.Is(err, cache.ErrCacheMiss):
		// fall through to read-through population
	default:
		// Cache failure degrades to a direct store read; the decision
		// still fails closed if the store read fails too.
		s.logger.WithError(err).WithField("user_id", userID).Warn("permission cache unavailable, reading store")
		return s.resolve(ctx, userID, tenantID)
	}

	perms, err := s.resolve(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, s.toEntry(perms), gen); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("permission cache populate failed")
	}
	return perms, nil
}

// HasPermission reports whether the user holds a grant covering the
// requested pattern under deny-wins semantics, along with the grant
// that matched.
func (s *Service) HasPermission(ctx context.Context, userID int64, requested access.Pattern, tenantID *int64) (access.Pattern, bool, error) {
	perms, err := s.GetUserPermissions(ctx, userID, tenantID)
	if err != nil {
		return access.Pattern{}, false, err
	}
	matched, ok := perms.Allows(requested)
	return matched, ok, nil
}

// resolve loads and merges the permission set from the store.
func (s *Service) resolve(ctx context.Context, userID int64, tenantID *int64) (*UserPermissions, error) {
	if _, err := s.store.GetAccount(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("resolve permissions for user %d: %w", userID, access.ErrPermissionsNotFound)
		}
		return nil, fmt.Errorf("load account %d: %w", userID, err)
	}

	assignments, err := s.store.GetRoleAssignments(ctx, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load role assignments for user %d: %w", userID, err)
	}
	codes := make([]string, 0, len(assignments))
	for _, a := range assignments {
		codes = append(codes, a.RoleCode)
	}
	valid, dropped := registry.ValidateAll(codes)
	if len(dropped) > 0 {
		s.logger.WithFields(map[string]interface{}{
			"user_id":       userID,
			"dropped_roles": dropped,
		}).Warn("dropping role codes not present in the fixed registry")
	}
	validCodes := make([]string, 0, len(valid))
	for _, r := range valid {
		validCodes = append(validCodes, string(r.Code))
	}

	direct, err := s.store.GetUserPermissions(ctx, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load direct grants for user %d: %w", userID, err)
	}
	roleGrants, err := s.store.GetRolePermissions(ctx, validCodes)
	if err != nil {
		return nil, fmt.Errorf("load role grants for user %d: %w", userID, err)
	}

	perms := &UserPermissions{
		UserID:   userID,
		TenantID: tenantID,
		Roles:    codes,
	}
	var denied []access.Pattern
	perms.Direct, denied = s.partition(userID, direct)
	perms.Denied = append(perms.Denied, denied...)
	perms.FromRoles, denied = s.partition(userID, roleGrants)
	perms.Denied = append(perms.Denied, denied...)
	perms.Effective = dedup(append(append([]access.Pattern{}, perms.Direct...), perms.FromRoles...))
	perms.Denied = dedup(perms.Denied)
	return perms, nil
}

// partition splits grant rows into allow and deny pattern lists,
// skipping rows whose stored pattern no longer parses.
func (s *Service) partition(userID int64, grants []store.PermissionGrant) (allows, denies []access.Pattern) {
	for _, g := range grants {
		p, err := access.ParsePattern(g.Pattern)
		if err != nil {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"user_id":  userID,
				"grant_id": g.ID,
				"pattern":  g.Pattern,
			}).Warn("skipping malformed stored permission pattern")
			continue
		}
		if g.Granted {
			allows = append(allows, p)
		} else {
			denies = append(denies, p)
		}
	}
	return allows, denies
}

func (s *Service) toEntry(perms *UserPermissions) *cache.Entry {
	return &cache.Entry{
		UserID:    perms.UserID,
		TenantID:  perms.TenantID,
		Roles:     perms.Roles,
		Granted:   patternStrings(perms.Effective),
		Direct:    patternStrings(perms.Direct),
		FromRoles: patternStrings(perms.FromRoles),
		Denied:    patternStrings(perms.Denied),
		ExpiresAt: s.now().Add(s.ttl),
	}
}

func (s *Service) fromEntry(entry *cache.Entry) *UserPermissions {
	return &UserPermissions{
		UserID:    entry.UserID,
		TenantID:  entry.TenantID,
		Roles:     entry.Roles,
		Direct:    s.parseAll(entry.UserID, entry.Direct),
		FromRoles: s.parseAll(entry.UserID, entry.FromRoles),
		Effective: s.parseAll(entry.UserID, entry.Granted),
		Denied:    s.parseAll(entry.UserID, entry.Denied),
	}
}

func (s *Service) parseAll(userID int64, raw []string) []access.Pattern {
	out := make([]access.Pattern, 0, len(raw))
	for _, r := range raw {
		p, err := access.ParsePattern(r)
		if err != nil {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"user_id": userID,
				"pattern": r,
			}).Warn("skipping malformed cached permission pattern")
			continue
		}
		out = append(out, p)
	}
	return out
}

func patternStrings(patterns []access.Pattern) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, p.String())
	}
	return out
}

func dedup(patterns []access.Pattern) []access.Pattern {
	seen := make(map[string]struct{}, len(patterns))
	out := make([]access.Pattern, 0, len(patterns))
	for _, p := range patterns {
		k := p.String()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
