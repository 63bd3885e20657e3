package api

import (
	"errors"
	"net/http"

	"github.com/itellico/mono-access/pkg/access"
	"github.com/itellico/mono-access/pkg/httputil"
	"github.com/itellico/mono-access/pkg/permissions"
	"github.com/itellico/mono-access/pkg/registry"
)

// UserPermissionsResponse is the wire form of a resolved permission set
type UserPermissionsResponse struct {
	UserID    int64    `json:"user_id"`
	TenantID  *int64   `json:"tenant_id,omitempty"`
	Roles     []string `json:"roles"`
	Direct    []string `json:"direct"`
	FromRoles []string `json:"from_roles"`
	Effective []string `json:"effective"`
	Denied    []string `json:"denied"`
}

func toPermissionsResponse(p *permissions.UserPermissions) UserPermissionsResponse {
	return UserPermissionsResponse{
		UserID:    p.UserID,
		TenantID:  p.TenantID,
		Roles:     p.Roles,
		Direct:    patternStrings(p.Direct),
		FromRoles: patternStrings(p.FromRoles),
		Effective: patternStrings(p.Effective),
		Denied:    patternStrings(p.Denied),
	}
}

func patternStrings(patterns []access.Pattern) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, p.String())
	}
	return out
}

// getUserPermissions handles GET /api/v1/users/{id}/permissions
func (s *Server) getUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	tenantID, ok := parseTenantID(w, r)
	if !ok {
		return
	}

	perms, err := s.perms.GetUserPermissions(r.Context(), userID, tenantID)
	if err != nil {
		if errors.Is(err, access.ErrPermissionsNotFound) {
			httputil.WriteNotFoundError(w, "user permissions not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, toPermissionsResponse(perms))
}

// hasPermission handles GET /api/v1/users/{id}/permissions/has
func (s *Server) hasPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	tenantID, ok := parseTenantID(w, r)
	if !ok {
		return
	}

	raw := httputil.ParseQueryString(r, "pattern", "")
	if !httputil.RequireNonEmpty(w, raw, "pattern") {
		return
	}
	requested, err := access.ParsePattern(raw)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	matched, allowed, err := s.perms.HasPermission(r.Context(), userID, requested, tenantID)
	if err != nil {
		if errors.Is(err, access.ErrPermissionsNotFound) {
			httputil.WriteNotFoundError(w, "user permissions not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	resp := map[string]interface{}{
		"allowed": allowed,
		"pattern": raw,
	}
	if allowed {
		resp["matched"] = matched.String()
	}
	httputil.WriteSuccess(w, resp)
}

// listRoles handles GET /api/v1/roles
func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]interface{}{
		"roles": registry.Roles(),
	})
}

// parseTenantID reads the optional tenant_id query parameter
func parseTenantID(w http.ResponseWriter, r *http.Request) (*int64, bool) {
	raw := r.URL.Query().Get("tenant_id")
	if raw == "" {
		return nil, true
	}
	id, err := httputil.ParseQueryInt64(r, "tenant_id", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return nil, false
	}
	return &id, true
}
