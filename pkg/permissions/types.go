package permissions

import (
	"github.com/itellico/mono-access/pkg/access"
)

// UserPermissions is the fully resolved permission set of a user within
// a tenant. Effective is the deduplicated union of Direct and FromRoles
// allow grants; Denied holds explicit deny patterns from either source.
// Roles carries the raw assigned role codes, including codes that fail
// registry validation so callers can report them.
type UserPermissions struct {
	UserID    int64            `json:"user_id"`
	TenantID  *int64           `json:"tenant_id,omitempty"`
	Roles     []string         `json:"roles"`
	Direct    []access.Pattern `json:"direct"`
	FromRoles []access.Pattern `json:"from_roles"`
	Effective []access.Pattern `json:"effective"`
	Denied    []access.Pattern `json:"denied"`
}

// Allows reports whether any effective grant covers the requested
// pattern, unless an explicit deny in the same pattern family blocks
// it. Denies win over any grant, including broader wildcard grants.
func (p *UserPermissions) Allows(requested access.Pattern) (access.Pattern, bool) {
	if _, blocked := p.DenyFor(requested); blocked {
		return access.Pattern{}, false
	}
	for _, g := range p.Effective {
		if g.Matches(requested) {
			return g, true
		}
	}
	return access.Pattern{}, false
}

// DenyFor returns the explicit deny blocking the requested pattern, if
// any. A deny blocks every pattern overlapping its family so a wildcard
// request cannot route around a concrete deny.
func (p *UserPermissions) DenyFor(requested access.Pattern) (access.Pattern, bool) {
	for _, d := range p.Denied {
		if d.SameFamily(requested) {
			return d, true
		}
	}
	return access.Pattern{}, false
}
