package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/itellico/mono-access/pkg/audit"
	"github.com/itellico/mono-access/pkg/engine"
	"github.com/itellico/mono-access/pkg/middleware"
	"github.com/itellico/mono-access/pkg/observability"
	"github.com/itellico/mono-access/pkg/permissions"
)

// Server represents the access API server
type Server struct {
	router   *mux.Router
	engine   *engine.Engine
	identity engine.Identity
	perms    *permissions.Service
	audit    audit.Logger
	logger   *observability.Logger
}

// Options carries the server's dependencies. AuditStore and RateLimit
// are optional; everything else is required.
type Options struct {
	Engine     *engine.Engine
	Identity   engine.Identity
	Perms      *permissions.Service
	AuditLog   audit.Logger
	AuditStore audit.Store
	Logger     *observability.Logger
	RateLimit  func(http.Handler) http.Handler
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		engine:   opts.Engine,
		identity: opts.Identity,
		perms:    opts.Perms,
		audit:    opts.AuditLog,
		logger:   opts.Logger,
	}
	if s.audit == nil {
		s.audit = audit.NewNoopLogger()
	}
	if s.logger == nil {
		s.logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	s.setupRoutes(opts)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(opts Options) {
	s.router.Use(mux.MiddlewareFunc(middleware.RequestIDMiddleware))
	s.router.Use(mux.MiddlewareFunc(middleware.LoggingMiddleware(s.logger)))
	s.router.Use(mux.MiddlewareFunc(middleware.RecoveryMiddleware(s.logger)))
	s.router.Use(mux.MiddlewareFunc(middleware.CallerMiddleware))
	if opts.RateLimit != nil {
		s.router.Use(mux.MiddlewareFunc(opts.RateLimit))
	}

	// Decision endpoint
	s.router.HandleFunc("/api/v1/access/check", s.checkAccess).Methods("POST")

	// Resolution endpoints
	s.router.HandleFunc("/api/v1/users/{id}/permissions", s.getUserPermissions).Methods("GET")
	s.router.HandleFunc("/api/v1/users/{id}/permissions/has", s.hasPermission).Methods("GET")
	s.router.HandleFunc("/api/v1/roles", s.listRoles).Methods("GET")

	// Administration endpoints, guarded by the engine itself
	admin := s.router.PathPrefix("/api/v1/admin").Subrouter()
	admin.Use(s.requireAccess("admin", "manage"))

	admin.HandleFunc("/role-assignments", s.assignRole).Methods("POST")
	admin.HandleFunc("/role-assignments/{id}", s.revokeRole).Methods("DELETE")
	admin.HandleFunc("/permission-grants", s.grantPermission).Methods("POST")
	admin.HandleFunc("/permission-grants/{id}", s.revokePermission).Methods("DELETE")
	admin.HandleFunc("/users/{id}/emergency-access", s.openEmergencyAccess).Methods("POST")
	admin.HandleFunc("/users/{id}/emergency-access", s.closeEmergencyAccess).Methods("DELETE")
	admin.HandleFunc("/cache/invalidations", s.invalidateCache).Methods("POST")

	if opts.AuditStore != nil {
		auditHandlers := audit.NewHandlers(opts.AuditStore)
		auditRouter := s.router.PathPrefix("/api/v1/admin").Subrouter()
		auditRouter.Use(s.requireAccess("audit", "read"))
		auditHandlers.RegisterRoutes(auditRouter)
	}
}

// Router returns the configured HTTP handler
func (s *Server) Router() http.Handler {
	return s.router
}
