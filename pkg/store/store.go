package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the authoritative role/permission persistence abstraction.
// All reads honor the context deadline; a timeout is a store failure
// and callers fail closed.
type Store interface {
	// GetAccount returns the account row for a user, or ErrNotFound.
	GetAccount(ctx context.Context, userID int64) (*Account, error)

	// GetRoleAssignments returns the user's currently valid role
	// assignments, scoped to the tenant (assignments without a tenant
	// apply everywhere).
	GetRoleAssignments(ctx context.Context, userID int64, tenantID *int64) ([]RoleAssignment, error)

	// GetRolePermissions returns the grants attached to the given role
	// codes.
	GetRolePermissions(ctx context.Context, roleCodes []string) ([]PermissionGrant, error)

	// GetUserPermissions returns the grants attached directly to the
	// user, scoped to the tenant.
	GetUserPermissions(ctx context.Context, userID int64, tenantID *int64) ([]PermissionGrant, error)

	// AssignRole attaches a registry role to a user.
	AssignRole(ctx context.Context, assignment *RoleAssignment) error

	// RevokeRole removes a role assignment.
	RevokeRole(ctx context.Context, assignmentID int64) error

	// GrantPermission attaches a direct grant (or explicit deny) to a
	// user or role.
	GrantPermission(ctx context.Context, grant *PermissionGrant) error

	// RevokePermission removes a grant.
	RevokePermission(ctx context.Context, grantID int64) error

	// SetEmergencyAccess opens (or, with a nil until, closes) a user's
	// emergency-access window.
	SetEmergencyAccess(ctx context.Context, userID int64, until *time.Time) error

	// Ping checks connectivity to the backing database.
	Ping(ctx context.Context) error

	// Close releases the connection pool.
	Close() error
}
