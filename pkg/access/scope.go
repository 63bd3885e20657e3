package access

import "strconv"

// resourceScopeDefaults maps resources whose default scope is not
// tenant. The original rules were inline conditionals scattered through
// the route layer; keeping them in one table makes the mapping
// reviewable and keeps additions explicit.
var resourceScopeDefaults = map[string]Scope{
	"tenants":     ScopeGlobal,
	"roles":       ScopeGlobal,
	"permissions": ScopeGlobal,
}

// adminResources are the platform-administration resources whose
// candidate patterns include the platform-level wildcard.
var adminResources = map[string]bool{
	"tenants":     true,
	"roles":       true,
	"permissions": true,
	"admin":       true,
}

// IsAdminResource reports whether candidate patterns for the resource
// include the platform wildcard.
func IsAdminResource(resource string) bool {
	return adminResources[resource]
}

// DeriveScope computes the scope of a request from its context and the
// caller. Precedence: own-resource checks win over the resource default
// table, except for "tenants" without a tenant id, which is always a
// platform-level (global) operation.
func DeriveScope(ctx Context, principalID int64) Scope {
	if ctx.Resource == "tenants" && ctx.TenantID == nil {
		return ScopeGlobal
	}

	if ctx.Action == "own" {
		return ScopeOwn
	}
	if ctx.ResourceID != "" && ctx.ResourceID == strconv.FormatInt(principalID, 10) {
		return ScopeOwn
	}

	if s, ok := resourceScopeDefaults[ctx.Resource]; ok {
		return s
	}
	return ScopeTenant
}
