package access

import "errors"

// Failure taxonomy. Every kind resolves to a denial at the engine
// boundary; none propagate to the route layer as errors.
var (
	// ErrInvalidPattern indicates a malformed permission pattern string.
	ErrInvalidPattern = errors.New("invalid permission pattern")

	// ErrAuthenticationRequired indicates no valid session or principal.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrPermissionsNotFound indicates the principal exists but has no
	// resolvable permission record at all. Distinct from "found but
	// empty", which is an ordinary denial.
	ErrPermissionsNotFound = errors.New("user permissions not found")

	// ErrTenantIsolation indicates the requested tenant differs from the
	// principal's tenant. Never recoverable within the request.
	ErrTenantIsolation = errors.New("tenant isolation violation")
)

// Denial reason strings surfaced in Result.Reason. The route layer maps
// these to generic 401/403 responses; the detailed reason is retained
// only in the audit trail.
const (
	ReasonAuthenticationRequired = "Authentication required"
	ReasonPermissionsNotFound    = "User permissions not found"
	ReasonEmergencyAccess        = "Emergency access window active"
	ReasonSuperAdmin             = "Super admin bypass"
	ReasonTenantIsolation        = "Tenant isolation violation"
	ReasonAdminFallback          = "Administrative role fallback"
	ReasonInternalFailure        = "Permission check failed"
)
