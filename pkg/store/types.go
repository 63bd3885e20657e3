package store

import (
	"time"
)

// Account is a principal row in the permission store. EmergencyUntil,
// when set, is a time-boxed incident-response window.
type Account struct {
	ID             int64      `json:"id"`
	TenantID       *int64     `json:"tenant_id,omitempty"`
	Email          string     `json:"email"`
	EmergencyUntil *time.Time `json:"emergency_until,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RoleAssignment joins a user to a registry role code within an
// optional tenant and validity window.
type RoleAssignment struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	RoleCode   string     `json:"role_code"`
	TenantID   *int64     `json:"tenant_id,omitempty"`
	GrantedBy  *int64     `json:"granted_by,omitempty"`
	GrantedAt  time.Time  `json:"granted_at"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// PermissionGrant is a stored permission pattern attached either
// directly to a user or to a role. Granted false is an explicit deny.
type PermissionGrant struct {
	ID         int64      `json:"id"`
	UserID     *int64     `json:"user_id,omitempty"`
	RoleCode   *string    `json:"role_code,omitempty"`
	TenantID   *int64     `json:"tenant_id,omitempty"`
	Pattern    string     `json:"pattern"`
	Granted    bool       `json:"granted"`
	GrantedBy  *int64     `json:"granted_by,omitempty"`
	GrantedAt  time.Time  `json:"granted_at"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// ActiveAt reports whether the grant's validity window contains the
// given instant. A missing bound is open-ended.
func (g PermissionGrant) ActiveAt(now time.Time) bool {
	if g.ValidFrom != nil && g.ValidFrom.After(now) {
		return false
	}
	if g.ValidUntil != nil && !g.ValidUntil.After(now) {
		return false
	}
	return true
}

// ActiveAt reports whether the assignment's validity window contains
// the given instant.
func (a RoleAssignment) ActiveAt(now time.Time) bool {
	if a.ValidFrom != nil && a.ValidFrom.After(now) {
		return false
	}
	if a.ValidUntil != nil && !a.ValidUntil.After(now) {
		return false
	}
	return true
}
