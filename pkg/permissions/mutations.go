package permissions

import (
	"context"
	"fmt"
	"time"

	"github.com/itellico/mono-access/pkg/access"
	"github.com/itellico/mono-access/pkg/cache"
	"github.com/itellico/mono-access/pkg/registry"
	"github.com/itellico/mono-access/pkg/store"
)

// AssignRole persists a role assignment and invalidates the user's
// cached permission set. Role codes outside the fixed registry are
// rejected before any write.
func (s *Service) AssignRole(ctx context.Context, assignment *store.RoleAssignment) error {
	if _, err := registry.ValidateRoleImmutability(assignment.RoleCode); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	if err := s.store.AssignRole(ctx, assignment); err != nil {
		return fmt.Errorf("assign role %q to user %d: %w", assignment.RoleCode, assignment.UserID, err)
	}
	s.invalidateUser(ctx, assignment.UserID, assignment.TenantID)
	return nil
}

// RevokeRole removes a role assignment. The user and tenant of the
// assignment must be supplied so the right cache pair is dropped.
func (s *Service) RevokeRole(ctx context.Context, assignmentID, userID int64, tenantID *int64) error {
	if err := s.store.RevokeRole(ctx, assignmentID); err != nil {
		return fmt.Errorf("revoke role assignment %d: %w", assignmentID, err)
	}
	s.invalidateUser(ctx, userID, tenantID)
	return nil
}

// GrantPermission persists an allow or deny grant. The stored pattern
// must parse; unparseable grants never reach the store. A user-level
// grant invalidates that user's pair; a role-level grant can affect
// every holder of the role, so the whole tenant's entries are dropped.
func (s *Service) GrantPermission(ctx context.Context, grant *store.PermissionGrant) error {
	if _, err := access.ParsePattern(grant.Pattern); err != nil {
		return fmt.Errorf("grant permission: %w", err)
	}
	if grant.RoleCode != nil {
		if _, err := registry.ValidateRoleImmutability(*grant.RoleCode); err != nil {
			return fmt.Errorf("grant permission: %w", err)
		}
	}
	if err := s.store.GrantPermission(ctx, grant); err != nil {
		return fmt.Errorf("grant permission %q: %w", grant.Pattern, err)
	}
	if grant.UserID != nil {
		s.invalidateUser(ctx, *grant.UserID, grant.TenantID)
	} else {
		s.invalidateTenant(ctx, grant.TenantID)
	}
	return nil
}

// RevokePermission deletes a grant row. userID selects single-pair
// invalidation for user-level grants; nil means a role-level grant and
// drops the tenant's entries.
func (s *Service) RevokePermission(ctx context.Context, grantID int64, userID *int64, tenantID *int64) error {
	if err := s.store.RevokePermission(ctx, grantID); err != nil {
		return fmt.Errorf("revoke permission grant %d: %w", grantID, err)
	}
	if userID != nil {
		s.invalidateUser(ctx, *userID, tenantID)
	} else {
		s.invalidateTenant(ctx, tenantID)
	}
	return nil
}

// SetEmergencyAccess opens or closes the user's emergency access
// window. Passing a nil until closes the window. Emergency state lives
// on the account row, not in the cached permission set, so no
// invalidation is needed.
func (s *Service) SetEmergencyAccess(ctx context.Context, userID int64, until *time.Time) error {
	if err := s.store.SetEmergencyAccess(ctx, userID, until); err != nil {
		return fmt.Errorf("set emergency access for user %d: %w", userID, err)
	}
	return nil
}

// Invalidate drops the user's cached permission sets. With a tenant it
// drops that one (user, tenant) pair; with a nil tenant the mutation
// applies under every tenant, so every pair for the user is dropped.
func (s *Service) Invalidate(ctx context.Context, userID int64, tenantID *int64) error {
	if s.cache == nil {
		return nil
	}
	if tenantID == nil {
		return s.cache.InvalidatePattern(ctx, cache.UserKeyPattern(userID))
	}
	return s.cache.Invalidate(ctx, userID, tenantID)
}

// InvalidateTenant drops every cached permission set for a tenant, or
// all entries when tenantID is nil.
func (s *Service) InvalidateTenant(ctx context.Context, tenantID *int64) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidatePattern(ctx, cache.KeyPattern(tenantID))
}

func (s *Service) invalidateUser(ctx context.Context, userID int64, tenantID *int64) {
	if err := s.Invalidate(ctx, userID, tenantID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("cache invalidation failed after mutation")
	}
}

func (s *Service) invalidateTenant(ctx context.Context, tenantID *int64) {
	if err := s.InvalidateTenant(ctx, tenantID); err != nil {
		s.logger.WithError(err).Warn("tenant cache invalidation failed after mutation")
	}
}
