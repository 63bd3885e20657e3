package access

import (
	"time"
)

// Context carries everything the engine needs to decide a single
// request. It is created per inbound request and never persisted; the
// Metadata map is passed through to the audit trail and must never be
// used for control flow.
type Context struct {
	Action        string                 `json:"action"`
	Resource      string                 `json:"resource"`
	ResourceID    string                 `json:"resource_id,omitempty"`
	TenantID      *int64                 `json:"tenant_id,omitempty"`
	AllowReadOnly bool                   `json:"allow_read_only,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// Principal is the authenticated caller, resolved by the identity layer.
// EmergencyUntil, when set and in the future, marks a time-boxed
// emergency-access window granting full access for incident response.
type Principal struct {
	ID             int64      `json:"id"`
	TenantID       *int64     `json:"tenant_id,omitempty"`
	EmergencyUntil *time.Time `json:"emergency_until,omitempty"`
}

// HasEmergencyAccess reports whether the principal's emergency window is
// open at the given instant.
func (p Principal) HasEmergencyAccess(now time.Time) bool {
	return p.EmergencyUntil != nil && p.EmergencyUntil.After(now)
}

// Result is the engine's decision. Immutable once constructed; consumed
// by the route wrapper and the audit sink.
type Result struct {
	Allowed            bool      `json:"allowed"`
	UserID             int64     `json:"user_id,omitempty"`
	TenantID           *int64    `json:"tenant_id,omitempty"`
	Roles              []string  `json:"roles,omitempty"`
	Reason             string    `json:"reason"`
	IsSuperAdminBypass bool      `json:"is_super_admin_bypass,omitempty"`
	IsReadOnly         bool      `json:"is_read_only,omitempty"`
	CheckedAt          time.Time `json:"checked_at"`
}
