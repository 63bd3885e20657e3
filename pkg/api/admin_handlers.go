package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/itellico/mono-access/pkg/access"
	"github.com/itellico/mono-access/pkg/audit"
	"github.com/itellico/mono-access/pkg/contextkeys"
	"github.com/itellico/mono-access/pkg/httputil"
	"github.com/itellico/mono-access/pkg/middleware"
	"github.com/itellico/mono-access/pkg/registry"
	"github.com/itellico/mono-access/pkg/store"
)

// AssignRoleRequest is the body of POST /api/v1/admin/role-assignments
type AssignRoleRequest struct {
	UserID     int64      `json:"user_id"`
	RoleCode   string     `json:"role_code"`
	TenantID   *int64     `json:"tenant_id,omitempty"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// GrantPermissionRequest is the body of POST /api/v1/admin/permission-grants.
// Exactly one of UserID and RoleCode selects the grant target.
type GrantPermissionRequest struct {
	UserID     *int64     `json:"user_id,omitempty"`
	RoleCode   *string    `json:"role_code,omitempty"`
	TenantID   *int64     `json:"tenant_id,omitempty"`
	Pattern    string     `json:"pattern"`
	Granted    bool       `json:"granted"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// EmergencyAccessRequest is the body of POST /api/v1/admin/users/{id}/emergency-access
type EmergencyAccessRequest struct {
	Until time.Time `json:"until"`
}

// InvalidateCacheRequest is the body of POST /api/v1/admin/cache/invalidations.
// A user ID drops one (user, tenant) pair; without it the whole tenant's
// entries are dropped, and a nil tenant drops everything.
type InvalidateCacheRequest struct {
	UserID   *int64 `json:"user_id,omitempty"`
	TenantID *int64 `json:"tenant_id,omitempty"`
}

func (s *Server) assignRole(w http.ResponseWriter, r *http.Request) {
	var req AssignRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequirePositive(w, req.UserID, "user_id") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.RoleCode, "role_code") {
		return
	}

	assignment := &store.RoleAssignment{
		UserID:     req.UserID,
		RoleCode:   req.RoleCode,
		TenantID:   req.TenantID,
		GrantedBy:  s.actorRef(r),
		ValidFrom:  req.ValidFrom,
		ValidUntil: req.ValidUntil,
	}
	if err := s.perms.AssignRole(r.Context(), assignment); err != nil {
		s.writeMutationError(w, err)
		return
	}

	s.recordMutation(r, audit.EventTypeRoleAssign, req.TenantID, "",
		fmt.Sprintf("assigned role %q to user %d", req.RoleCode, req.UserID))
	httputil.WriteCreated(w, assignment)
}

func (s *Server) revokeRole(w http.ResponseWriter, r *http.Request) {
	assignmentID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	userID, err := httputil.ParseQueryInt64(r, "user_id", 0)
	if err != nil || userID <= 0 {
		httputil.WriteBadRequest(w, "user_id query parameter is required")
		return
	}
	tenantID, ok := parseTenantID(w, r)
	if !ok {
		return
	}

	if err := s.perms.RevokeRole(r.Context(), assignmentID, userID, tenantID); err != nil {
		s.writeMutationError(w, err)
		return
	}

	s.recordMutation(r, audit.EventTypeRoleRevoke, tenantID, "",
		fmt.Sprintf("revoked role assignment %d from user %d", assignmentID, userID))
	httputil.WriteNoContent(w)
}

func (s *Server) grantPermission(w http.ResponseWriter, r *http.Request) {
	var req GrantPermissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Pattern, "pattern") {
		return
	}
	if (req.UserID == nil) == (req.RoleCode == nil) {
		httputil.WriteBadRequest(w, "exactly one of user_id and role_code must be set")
		return
	}

	grant := &store.PermissionGrant{
		UserID:     req.UserID,
		RoleCode:   req.RoleCode,
		TenantID:   req.TenantID,
		Pattern:    req.Pattern,
		Granted:    req.Granted,
		GrantedBy:  s.actorRef(r),
		ValidFrom:  req.ValidFrom,
		ValidUntil: req.ValidUntil,
	}
	if err := s.perms.GrantPermission(r.Context(), grant); err != nil {
		s.writeMutationError(w, err)
		return
	}

	verb := "granted"
	if !req.Granted {
		verb = "denied"
	}
	s.recordMutation(r, audit.EventTypePermissionGrant, req.TenantID, req.Pattern,
		fmt.Sprintf("%s permission %q", verb, req.Pattern))
	httputil.WriteCreated(w, grant)
}

func (s *Server) revokePermission(w http.ResponseWriter, r *http.Request) {
	grantID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	tenantID, ok := parseTenantID(w, r)
	if !ok {
		return
	}
	var userID *int64
	if id, err := httputil.ParseQueryInt64(r, "user_id", 0); err != nil {
		httputil.WriteBadRequest(w, "user_id must be an integer")
		return
	} else if id > 0 {
		userID = &id
	}

	if err := s.perms.RevokePermission(r.Context(), grantID, userID, tenantID); err != nil {
		s.writeMutationError(w, err)
		return
	}

	s.recordMutation(r, audit.EventTypePermissionRevoke, tenantID, "",
		fmt.Sprintf("revoked permission grant %d", grantID))
	httputil.WriteNoContent(w)
}

func (s *Server) openEmergencyAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req EmergencyAccessRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Until.IsZero() || !req.Until.After(time.Now()) {
		httputil.WriteBadRequest(w, "until must be a future timestamp")
		return
	}

	if err := s.perms.SetEmergencyAccess(r.Context(), userID, &req.Until); err != nil {
		s.writeMutationError(w, err)
		return
	}

	s.recordMutation(r, audit.EventTypeEmergencyOpen, nil, "",
		fmt.Sprintf("opened emergency access for user %d until %s", userID, req.Until.Format(time.RFC3339)))
	httputil.WriteCreated(w, map[string]interface{}{
		"user_id": userID,
		"until":   req.Until,
	})
}

func (s *Server) closeEmergencyAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.perms.SetEmergencyAccess(r.Context(), userID, nil); err != nil {
		s.writeMutationError(w, err)
		return
	}
	// Emergency windows widen what the cached set allows, so closing one
	// must also drop the user's cached entries.
	if err := s.perms.Invalidate(r.Context(), userID, nil); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("cache invalidation failed after emergency close")
	}

	s.recordMutation(r, audit.EventTypeEmergencyClose, nil, "",
		fmt.Sprintf("closed emergency access for user %d", userID))
	httputil.WriteNoContent(w)
}

func (s *Server) invalidateCache(w http.ResponseWriter, r *http.Request) {
	var req InvalidateCacheRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	var err error
	var message string
	if req.UserID != nil {
		err = s.perms.Invalidate(r.Context(), *req.UserID, req.TenantID)
		message = fmt.Sprintf("invalidated cached permissions for user %d", *req.UserID)
	} else {
		err = s.perms.InvalidateTenant(r.Context(), req.TenantID)
		if req.TenantID != nil {
			message = fmt.Sprintf("invalidated cached permissions for tenant %d", *req.TenantID)
		} else {
			message = "invalidated all cached permissions"
		}
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	s.recordMutation(r, audit.EventTypeCacheInvalidate, req.TenantID, "", message)
	httputil.WriteNoContent(w)
}

// actorRef returns the caller's user ID as a nullable reference for
// granted_by columns and audit actor fields.
func (s *Server) actorRef(r *http.Request) *int64 {
	id := middleware.Caller(r)
	if id == 0 {
		return nil
	}
	return &id
}

// recordMutation writes the audit trail entry for an admin mutation.
// Audit failures are logged but never fail the mutation itself, which
// has already been committed.
func (s *Server) recordMutation(r *http.Request, eventType audit.EventType, tenantID *int64, pattern, message string) {
	ctx := r.Context()
	event := audit.MutationEvent(eventType, s.actorRef(r), tenantID, pattern, message)
	event.RequestID = contextkeys.RequestID(ctx)
	event.IPAddress = contextkeys.ClientIP(ctx)
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.WithError(err).WithField("event_type", string(eventType)).Warn("audit write failed for admin mutation")
	}
}

// writeMutationError maps store and validation errors onto HTTP status
// codes. Unknown role codes and malformed patterns are caller mistakes;
// missing rows are 404s; everything else is a server fault.
func (s *Server) writeMutationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrUnknownRole), errors.Is(err, access.ErrInvalidPattern):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, store.ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}
