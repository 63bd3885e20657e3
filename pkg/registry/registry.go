// Package registry holds the fixed, compile-time role registry. Role
// codes stored in the database are joined against this enumeration;
// any row whose code does not resolve here is a data anomaly and is
// excluded from authorization decisions. This guards against privilege
// escalation through a tampered role table: the set of valid roles can
// only change with a new build.
package registry

import (
	"errors"
	"fmt"
)

// RoleCode identifies a role in the fixed registry.
type RoleCode string

const (
	RoleSuperAdmin       RoleCode = "super_admin"
	RoleTenantAdmin      RoleCode = "tenant_admin"
	RoleTenantManager    RoleCode = "tenant_manager"
	RoleContentModerator RoleCode = "content_moderator"
	RoleAccountAdmin     RoleCode = "account_admin"
	RoleAccountManager   RoleCode = "account_manager"
	RoleUser             RoleCode = "user"
)

// ErrUnknownRole indicates a role code absent from the registry.
var ErrUnknownRole = errors.New("role code not in registry")

// FixedRole is a registry entry: the immutable code plus its display
// metadata and administrative classification.
type FixedRole struct {
	Code        RoleCode `json:"code"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	IsAdmin     bool     `json:"is_admin"`
}

// fixedRoles is the complete enumeration. Order is stable and matches
// descending privilege; it is exposed read-only through Roles.
var fixedRoles = []FixedRole{
	{Code: RoleSuperAdmin, Name: "Super Admin", Description: "Unrestricted platform access", IsAdmin: true},
	{Code: RoleTenantAdmin, Name: "Tenant Admin", Description: "Full access within one tenant", IsAdmin: true},
	{Code: RoleTenantManager, Name: "Tenant Manager", Description: "Manages tenant content and accounts", IsAdmin: true},
	{Code: RoleContentModerator, Name: "Content Moderator", Description: "Reviews and moderates tenant content", IsAdmin: true},
	{Code: RoleAccountAdmin, Name: "Account Admin", Description: "Administers a single account", IsAdmin: false},
	{Code: RoleAccountManager, Name: "Account Manager", Description: "Manages account members and profiles", IsAdmin: false},
	{Code: RoleUser, Name: "User", Description: "Standard user access", IsAdmin: false},
}

var rolesByCode = func() map[RoleCode]FixedRole {
	m := make(map[RoleCode]FixedRole, len(fixedRoles))
	for _, r := range fixedRoles {
		m[r.Code] = r
	}
	return m
}()

// Roles returns a copy of the full registry enumeration.
func Roles() []FixedRole {
	out := make([]FixedRole, len(fixedRoles))
	copy(out, fixedRoles)
	return out
}

// ValidateRoleImmutability resolves a stored role code against the
// compiled enumeration. Pure and total: no I/O, and every input yields
// either a registry entry or ErrUnknownRole, regardless of what the
// persistence layer claims about the code.
func ValidateRoleImmutability(code string) (FixedRole, error) {
	role, ok := rolesByCode[RoleCode(code)]
	if !ok {
		return FixedRole{}, fmt.Errorf("%w: %q", ErrUnknownRole, code)
	}
	return role, nil
}

// IsAdminRole reports whether the code resolves to a role classified as
// administrative. Unknown codes are never administrative.
func IsAdminRole(code string) bool {
	role, ok := rolesByCode[RoleCode(code)]
	return ok && role.IsAdmin
}

// IsSuperAdmin reports whether the code is the super-admin role.
func IsSuperAdmin(code string) bool {
	return RoleCode(code) == RoleSuperAdmin
}

// ValidateAll partitions held role codes into registry-valid roles and
// dropped codes. Dropped codes never count toward a decision; callers
// log them as integrity anomalies and continue with the reduced set.
func ValidateAll(codes []string) (valid []FixedRole, dropped []string) {
	for _, code := range codes {
		role, err := ValidateRoleImmutability(code)
		if err != nil {
			dropped = append(dropped, code)
			continue
		}
		valid = append(valid, role)
	}
	return valid, dropped
}
