package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/itellico/mono-access/pkg/access"
	"github.com/itellico/mono-access/pkg/audit"
	"github.com/itellico/mono-access/pkg/contextkeys"
	"github.com/itellico/mono-access/pkg/observability"
	"github.com/itellico/mono-access/pkg/permissions"
	"github.com/itellico/mono-access/pkg/registry"
)

// PermissionSource resolves the effective permission set for a (user,
// tenant) pair. Satisfied by *permissions.Service.
type PermissionSource interface {
	GetUserPermissions(ctx context.Context, userID int64, tenantID *int64) (*permissions.UserPermissions, error)
}

// Terminal step labels recorded in metrics and logs.
const (
	stepAuthenticate    = "authenticate"
	stepLoadPermissions = "load_permissions"
	stepEmergency       = "emergency"
	stepSuperAdmin      = "super_admin"
	stepTenantIsolation = "tenant_isolation"
	stepPattern         = "pattern"
	stepReadOnly        = "read_only"
	stepAdminFallback   = "admin_fallback"
	stepMissing         = "missing"
	stepInternal        = "internal"
)

// Engine evaluates access decisions. Safe for concurrent use; it holds
// no per-request state.
type Engine struct {
	perms   PermissionSource
	audit   audit.Logger
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// New creates a decision engine. The audit logger may be nil to disable
// the audit trail; metrics may be nil.
func New(perms PermissionSource, auditLogger audit.Logger, logger *observability.Logger, metrics *observability.Metrics) *Engine {
	if auditLogger == nil {
		auditLogger = audit.NewNoopLogger()
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Engine{
		perms:   perms,
		audit:   auditLogger,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// decision carries the terminal outcome of one evaluation, with the
// pattern that matched on allow or was missing on deny.
type decision struct {
	result  access.Result
	scope   access.Scope
	pattern string
	step    string
}

// CanAccessAPI decides whether the principal may perform the request
// described by actx. A nil principal is an unauthenticated caller. The
// evaluation is strictly ordered and terminal at the first matching
// rule; any internal error or panic converts to a denial, and every
// decision is recorded to the audit sink with its duration.
func (e *Engine) CanAccessAPI(ctx context.Context, principal *access.Principal, actx access.Context) access.Result {
	start := e.now()

	var d decision
	var evalErr error

	func() {
		defer func() {
			if r := recover(); r != nil {
				evalErr = fmt.Errorf("panic during evaluation: %v", r)
			}
		}()
		d, evalErr = e.evaluate(ctx, principal, actx)
	}()

	if evalErr != nil {
		e.logger.WithError(evalErr).WithFields(map[string]interface{}{
			"resource": actx.Resource,
			"action":   actx.Action,
		}).Error("permission check failed")
		d = decision{
			result: e.deny(principal, nil, access.ReasonInternalFailure),
			step:   stepInternal,
		}
	}

	duration := e.now().Sub(start)
	outcome := "denied"
	if d.result.Allowed {
		outcome = "allowed"
	}
	if evalErr != nil {
		outcome = "error"
	}
	e.metrics.ObserveDecision(outcome, d.step, duration)

	event := audit.DecisionEvent(actx, d.result, d.scope, d.pattern, duration, evalErr)
	event.RequestID = contextkeys.RequestID(ctx)
	event.IPAddress = contextkeys.ClientIP(ctx)
	if err := e.audit.Log(ctx, event); err != nil {
		e.logger.WithError(err).Warn("audit sink rejected decision event")
	}

	return d.result
}

// evaluate runs the ordered rules. It may return an error only for
// internal failures; every business outcome is a Result.
func (e *Engine) evaluate(ctx context.Context, principal *access.Principal, actx access.Context) (decision, error) {
	// Authentication. Without a principal nothing else is consulted.
	if principal == nil {
		return decision{
			result: access.Result{
				Allowed:   false,
				Reason:    access.ReasonAuthenticationRequired,
				CheckedAt: e.now(),
			},
			step: stepAuthenticate,
		}, nil
	}

	// Load the resolved permission set. A user without any permission
	// record is a data integrity problem, distinct from an empty set.
	perms, err := e.perms.GetUserPermissions(ctx, principal.ID, principal.TenantID)
	if err != nil {
		if errors.Is(err, access.ErrPermissionsNotFound) {
			e.logger.WithField("user_id", principal.ID).Error("no permission record for authenticated user")
			return decision{
				result: e.deny(principal, nil, access.ReasonPermissionsNotFound),
				step:   stepLoadPermissions,
			}, nil
		}
		return decision{}, err
	}

	// Drop roles the registry does not know. They never count toward a
	// decision, but the request continues with the reduced set.
	valid, dropped := registry.ValidateAll(perms.Roles)
	if len(dropped) > 0 {
		e.metrics.ObserveRoleAnomalies(len(dropped))
		e.logger.WithFields(map[string]interface{}{
			"user_id":       principal.ID,
			"dropped_roles": dropped,
		}).Warn("role codes failed registry validation")
	}
	roles := make([]string, 0, len(valid))
	for _, r := range valid {
		roles = append(roles, string(r.Code))
	}

	// Emergency access window.
	if principal.HasEmergencyAccess(e.now()) {
		return decision{
			result: e.allow(principal, roles, access.ReasonEmergencyAccess, func(r *access.Result) {
				r.IsSuperAdminBypass = true
			}),
			step: stepEmergency,
		}, nil
	}

	// Super admin bypass.
	for _, code := range roles {
		if registry.IsSuperAdmin(code) {
			return decision{
				result: e.allow(principal, roles, access.ReasonSuperAdmin, func(r *access.Result) {
					r.IsSuperAdminBypass = true
				}),
				step: stepSuperAdmin,
			}, nil
		}
	}

	// Tenant isolation, before any permission is consulted. A caller
	// without a tenant of their own never crosses into one.
	if actx.TenantID != nil {
		if principal.TenantID == nil || *principal.TenantID != *actx.TenantID {
			return decision{
				result: e.deny(principal, roles, access.ReasonTenantIsolation),
				step:   stepTenantIsolation,
			}, nil
		}
	}

	scope := access.DeriveScope(actx, principal.ID)

	// Candidate patterns in priority order, most specific first.
	var candidates []access.Pattern
	if access.IsAdminResource(actx.Resource) {
		candidates = access.PlatformCandidates(actx.Resource, actx.Action, scope)
	} else {
		candidates = access.Candidates(actx.Resource, actx.Action, scope)
	}
	for _, candidate := range candidates {
		if matched, ok := perms.Allows(candidate); ok {
			return decision{
				result:  e.allow(principal, roles, matched.String(), nil),
				scope:   scope,
				pattern: matched.String(),
				step:    stepPattern,
			}, nil
		}
	}

	// Read-only fallback for write actions when the route permits it.
	if actx.AllowReadOnly && actx.Action != "read" {
		readRequest := access.NewPattern(actx.Resource, "read", scope)
		if matched, ok := perms.Allows(readRequest); ok {
			return decision{
				result: e.allow(principal, roles, matched.String(), func(r *access.Result) {
					r.IsReadOnly = true
				}),
				scope:   scope,
				pattern: matched.String(),
				step:    stepReadOnly,
			}, nil
		}
	}

	// Administrative fallback for admin surfaces and view actions.
	if actx.Resource == "admin" || actx.Action == "view" {
		for _, code := range roles {
			if registry.IsAdminRole(code) {
				return decision{
					result: e.allow(principal, roles, access.ReasonAdminFallback, nil),
					scope:  scope,
					step:   stepAdminFallback,
				}, nil
			}
		}
	}

	missing := access.NewPattern(actx.Resource, actx.Action, scope)
	return decision{
		result:  e.deny(principal, roles, fmt.Sprintf("Missing required permission: %s", missing)),
		scope:   scope,
		pattern: missing.String(),
		step:    stepMissing,
	}, nil
}

func (e *Engine) allow(principal *access.Principal, roles []string, reason string, mutate func(*access.Result)) access.Result {
	r := access.Result{
		Allowed:   true,
		UserID:    principal.ID,
		TenantID:  principal.TenantID,
		Roles:     roles,
		Reason:    reason,
		CheckedAt: e.now(),
	}
	if mutate != nil {
		mutate(&r)
	}
	return r
}

func (e *Engine) deny(principal *access.Principal, roles []string, reason string) access.Result {
	r := access.Result{
		Allowed:   false,
		Reason:    reason,
		CheckedAt: e.now(),
	}
	if principal != nil {
		r.UserID = principal.ID
		r.TenantID = principal.TenantID
		r.Roles = roles
	}
	return r
}
