package api

import (
	"net/http"

	"github.com/itellico/mono-access/pkg/access"
	"github.com/itellico/mono-access/pkg/httputil"
	"github.com/itellico/mono-access/pkg/middleware"
)

// CheckRequest is the body of POST /api/v1/access/check
type CheckRequest struct {
	Action        string                 `json:"action"`
	Resource      string                 `json:"resource"`
	ResourceID    string                 `json:"resource_id,omitempty"`
	TenantID      *int64                 `json:"tenant_id,omitempty"`
	AllowReadOnly bool                   `json:"allow_read_only,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// checkAccess evaluates an access request for the authenticated caller
// and returns the decision. The decision itself is always a 200; denial
// is data, not a transport error, so policy evaluation points can act
// on the full result.
func (s *Server) checkAccess(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Resource, "resource") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Action, "action") {
		return
	}

	principal, err := s.resolveCaller(r)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	result := s.engine.CanAccessAPI(r.Context(), principal, access.Context{
		Action:        req.Action,
		Resource:      req.Resource,
		ResourceID:    req.ResourceID,
		TenantID:      req.TenantID,
		AllowReadOnly: req.AllowReadOnly,
		Metadata:      req.Metadata,
	})

	httputil.WriteSuccess(w, result)
}

// requireAccess guards a route group with the engine. Unauthenticated
// callers get 401, everyone else denied gets 403, and the denial reason
// is returned without the missing pattern to avoid leaking the
// permission model to probing callers.
func (s *Server) requireAccess(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := s.resolveCaller(r)
			if err != nil {
				httputil.WriteInternalError(w, err)
				return
			}

			result := s.engine.CanAccessAPI(r.Context(), principal, access.Context{
				Action:   action,
				Resource: resource,
			})
			if !result.Allowed {
				if result.Reason == access.ReasonAuthenticationRequired {
					httputil.WriteUnauthorized(w, result.Reason)
					return
				}
				httputil.WriteForbidden(w, "Access denied")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// resolveCaller loads the principal for the request's caller ID. An
// absent caller yields a nil principal, which the engine treats as
// unauthenticated; an unknown caller ID does the same.
func (s *Server) resolveCaller(r *http.Request) (*access.Principal, error) {
	userID := middleware.Caller(r)
	if userID == 0 {
		return nil, nil
	}
	return s.identity.Resolve(r.Context(), userID)
}
