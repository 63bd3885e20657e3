package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itellico/mono-access/pkg/audit"
	"github.com/itellico/mono-access/pkg/engine"
	"github.com/itellico/mono-access/pkg/middleware"
	"github.com/itellico/mono-access/pkg/observability"
	"github.com/itellico/mono-access/pkg/permissions"
	"github.com/itellico/mono-access/pkg/store"
)

// fakeStore is an in-memory store.Store for exercising the full
// handler, engine, and resolution stack without a database.
type fakeStore struct {
	mu          sync.Mutex
	accounts    map[int64]*store.Account
	assignments []store.RoleAssignment
	grants      []store.PermissionGrant
	nextID      int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{accounts: make(map[int64]*store.Account), nextID: 1000}
}

func (f *fakeStore) GetAccount(ctx context.Context, userID int64) (*store.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (f *fakeStore) GetRoleAssignments(ctx context.Context, userID int64, tenantID *int64) ([]store.RoleAssignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.RoleAssignment
	for _, a := range f.assignments {
		if a.UserID == userID && tenantMatches(a.TenantID, tenantID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) GetRolePermissions(ctx context.Context, roleCodes []string) ([]store.PermissionGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.PermissionGrant
	for _, g := range f.grants {
		if g.RoleCode == nil {
			continue
		}
		for _, code := range roleCodes {
			if *g.RoleCode == code {
				out = append(out, g)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) GetUserPermissions(ctx context.Context, userID int64, tenantID *int64) ([]store.PermissionGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.PermissionGrant
	for _, g := range f.grants {
		if g.UserID != nil && *g.UserID == userID && tenantMatches(g.TenantID, tenantID) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeStore) AssignRole(ctx context.Context, assignment *store.RoleAssignment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	assignment.ID = f.nextID
	f.assignments = append(f.assignments, *assignment)
	return nil
}

func (f *fakeStore) RevokeRole(ctx context.Context, assignmentID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, a := range f.assignments {
		if a.ID == assignmentID {
			f.assignments = append(f.assignments[:i], f.assignments[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) GrantPermission(ctx context.Context, grant *store.PermissionGrant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	grant.ID = f.nextID
	f.grants = append(f.grants, *grant)
	return nil
}

func (f *fakeStore) RevokePermission(ctx context.Context, grantID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, g := range f.grants {
		if g.ID == grantID {
			f.grants = append(f.grants[:i], f.grants[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) SetEmergencyAccess(ctx context.Context, userID int64, until *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[userID]
	if !ok {
		return store.ErrNotFound
	}
	a.EmergencyUntil = until
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                   { return nil }

func tenantMatches(rowTenant, queryTenant *int64) bool {
	if rowTenant == nil {
		return true
	}
	return queryTenant != nil && *rowTenant == *queryTenant
}

// captureLogger records audit events for assertions.
type captureLogger struct {
	mu     sync.Mutex
	events []*audit.AuditEvent
}

func (c *captureLogger) Log(ctx context.Context, event *audit.AuditEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureLogger) Close() error { return nil }

func (c *captureLogger) lastOfType(eventType audit.EventType) *audit.AuditEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].EventType == eventType {
			return c.events[i]
		}
	}
	return nil
}

type testEnv struct {
	store *fakeStore
	audit *captureLogger
	srv   *Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fs := newFakeStore()
	cl := &captureLogger{}
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	svc := permissions.NewService(fs, nil, time.Minute, logger)
	eng := engine.New(svc, cl, logger, nil)
	srv := NewServer(Options{
		Engine:   eng,
		Identity: engine.NewStoreIdentity(fs),
		Perms:    svc,
		AuditLog: cl,
		Logger:   logger,
	})
	return &testEnv{store: fs, audit: cl, srv: srv}
}

func i64(v int64) *int64   { return &v }
func str(v string) *string { return &v }

// seedSuperAdmin creates user 1 with the super_admin role.
func (e *testEnv) seedSuperAdmin() {
	e.store.accounts[1] = &store.Account{ID: 1, Email: "root@example.com"}
	e.store.assignments = append(e.store.assignments, store.RoleAssignment{
		ID: 1, UserID: 1, RoleCode: "super_admin",
	})
}

// seedMember creates user 2 in tenant 10 with the user role and a
// direct grant on profiles.read.tenant.
func (e *testEnv) seedMember() {
	e.store.accounts[2] = &store.Account{ID: 2, TenantID: i64(10), Email: "member@example.com"}
	e.store.assignments = append(e.store.assignments, store.RoleAssignment{
		ID: 2, UserID: 2, RoleCode: "user", TenantID: i64(10),
	})
	e.store.grants = append(e.store.grants, store.PermissionGrant{
		ID: 3, UserID: i64(2), TenantID: i64(10), Pattern: "profiles.read.tenant", Granted: true,
	})
}

func (e *testEnv) do(t *testing.T, method, path string, userID int64, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != 0 {
		req.Header.Set(middleware.CallerIDHeader, strconv.FormatInt(userID, 10))
	}
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCheckAccess_Allowed(t *testing.T) {
	env := newTestEnv(t)
	env.seedMember()

	rec := env.do(t, "POST", "/api/v1/access/check", 2, CheckRequest{
		Resource: "profiles", Action: "read", TenantID: i64(10),
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["allowed"])
	assert.Equal(t, "profiles.read.tenant", body["reason"])
	assert.Equal(t, float64(2), body["user_id"])
}

func TestCheckAccess_DeniedIsStillOK(t *testing.T) {
	env := newTestEnv(t)
	env.seedMember()

	rec := env.do(t, "POST", "/api/v1/access/check", 2, CheckRequest{
		Resource: "profiles", Action: "delete",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["allowed"])
	assert.Equal(t, "Missing required permission: profiles.delete.tenant", body["reason"])
}

func TestCheckAccess_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/v1/access/check", 0, CheckRequest{
		Resource: "profiles", Action: "read",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["allowed"])
	assert.Equal(t, "Authentication required", body["reason"])
}

func TestCheckAccess_SuperAdminBypass(t *testing.T) {
	env := newTestEnv(t)
	env.seedSuperAdmin()

	rec := env.do(t, "POST", "/api/v1/access/check", 1, CheckRequest{
		Resource: "billing", Action: "manage",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["allowed"])
	assert.Equal(t, true, body["is_super_admin_bypass"])
}

func TestCheckAccess_TenantIsolation(t *testing.T) {
	env := newTestEnv(t)
	env.seedMember()

	rec := env.do(t, "POST", "/api/v1/access/check", 2, CheckRequest{
		Resource: "profiles", Action: "read", TenantID: i64(99),
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["allowed"])
}

func TestCheckAccess_Validation(t *testing.T) {
	env := newTestEnv(t)
	env.seedMember()

	rec := env.do(t, "POST", "/api/v1/access/check", 2, CheckRequest{Action: "read"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "POST", "/api/v1/access/check", 2, CheckRequest{Resource: "profiles"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckAccess_MalformedCallerHeader(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("POST", "/api/v1/access/check", bytes.NewReader([]byte(`{"resource":"profiles","action":"read"}`)))
	req.Header.Set(middleware.CallerIDHeader, "not-a-number")
	rec := httptest.NewRecorder()
	env.srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckAccess_RecordsAuditContext(t *testing.T) {
	env := newTestEnv(t)
	env.seedMember()

	req := httptest.NewRequest("POST", "/api/v1/access/check", bytes.NewReader([]byte(`{"resource":"profiles","action":"read"}`)))
	req.Header.Set(middleware.CallerIDHeader, "2")
	req.Header.Set(middleware.RequestIDHeader, "req-abc")
	rec := httptest.NewRecorder()
	env.srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	event := env.audit.lastOfType(audit.EventTypeAccessCheck)
	require.NotNil(t, event)
	assert.Equal(t, "req-abc", event.RequestID)
	assert.NotEmpty(t, event.IPAddress)
}

func TestGetUserPermissions(t *testing.T) {
	env := newTestEnv(t)
	env.seedMember()

	rec := env.do(t, "GET", "/api/v1/users/2/permissions?tenant_id=10", 2, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp UserPermissionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(2), resp.UserID)
	assert.Contains(t, resp.Roles, "user")
	assert.Contains(t, resp.Direct, "profiles.read.tenant")
	assert.Contains(t, resp.Effective, "profiles.read.tenant")
}

func TestGetUserPermissions_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "GET", "/api/v1/users/999/permissions", 0, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHasPermission(t *testing.T) {
	env := newTestEnv(t)
	env.seedMember()

	rec := env.do(t, "GET", "/api/v1/users/2/permissions/has?tenant_id=10&pattern=profiles.read.tenant", 2, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["allowed"])
	assert.Equal(t, "profiles.read.tenant", body["matched"])

	rec = env.do(t, "GET", "/api/v1/users/2/permissions/has?tenant_id=10&pattern=profiles.delete.tenant", 2, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, false, body["allowed"])
	assert.NotContains(t, body, "matched")
}

func TestHasPermission_MalformedPattern(t *testing.T) {
	env := newTestEnv(t)
	env.seedMember()

	rec := env.do(t, "GET", "/api/v1/users/2/permissions/has?pattern=bad", 2, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRoles(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "GET", "/api/v1/roles", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "super_admin")
	assert.Contains(t, rec.Body.String(), "tenant_admin")
}

func TestAdmin_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/v1/admin/role-assignments", 0, AssignRoleRequest{UserID: 2, RoleCode: "user"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdmin_ForbiddenHidesReason(t *testing.T) {
	env := newTestEnv(t)
	env.seedMember()

	rec := env.do(t, "POST", "/api/v1/admin/role-assignments", 2, AssignRoleRequest{UserID: 2, RoleCode: "user"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Access denied", body["error"])
	assert.NotContains(t, rec.Body.String(), "Missing required permission")
}

func TestAdmin_AssignRole(t *testing.T) {
	env := newTestEnv(t)
	env.seedSuperAdmin()
	env.store.accounts[2] = &store.Account{ID: 2, TenantID: i64(10)}

	rec := env.do(t, "POST", "/api/v1/admin/role-assignments", 1, AssignRoleRequest{
		UserID: 2, RoleCode: "tenant_admin", TenantID: i64(10),
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	var created store.RoleAssignment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)
	require.NotNil(t, created.GrantedBy)
	assert.Equal(t, int64(1), *created.GrantedBy)

	event := env.audit.lastOfType(audit.EventTypeRoleAssign)
	require.NotNil(t, event)
	require.NotNil(t, event.UserID)
	assert.Equal(t, int64(1), *event.UserID)
}

func TestAdmin_AssignRole_UnknownRole(t *testing.T) {
	env := newTestEnv(t)
	env.seedSuperAdmin()

	rec := env.do(t, "POST", "/api/v1/admin/role-assignments", 1, AssignRoleRequest{
		UserID: 2, RoleCode: "warlord",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_RevokeRole(t *testing.T) {
	env := newTestEnv(t)
	env.seedSuperAdmin()
	env.seedMember()

	rec := env.do(t, "DELETE", "/api/v1/admin/role-assignments/2?user_id=2&tenant_id=10", 1, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotNil(t, env.audit.lastOfType(audit.EventTypeRoleRevoke))

	rec = env.do(t, "DELETE", "/api/v1/admin/role-assignments/2?user_id=2", 1, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, "DELETE", "/api/v1/admin/role-assignments/5", 1, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_GrantPermission(t *testing.T) {
	env := newTestEnv(t)
	env.seedSuperAdmin()
	env.store.accounts[2] = &store.Account{ID: 2, TenantID: i64(10)}

	rec := env.do(t, "POST", "/api/v1/admin/permission-grants", 1, GrantPermissionRequest{
		UserID: i64(2), TenantID: i64(10), Pattern: "jobs.create.tenant", Granted: true,
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	var created store.PermissionGrant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)

	event := env.audit.lastOfType(audit.EventTypePermissionGrant)
	require.NotNil(t, event)
	assert.Equal(t, "jobs.create.tenant", event.Pattern)
}

func TestAdmin_GrantPermission_Validation(t *testing.T) {
	env := newTestEnv(t)
	env.seedSuperAdmin()

	cases := []struct {
		name string
		req  GrantPermissionRequest
	}{
		{"malformed pattern", GrantPermissionRequest{UserID: i64(2), Pattern: "not a pattern"}},
		{"no target", GrantPermissionRequest{Pattern: "jobs.create.tenant"}},
		{"both targets", GrantPermissionRequest{UserID: i64(2), RoleCode: str("user"), Pattern: "jobs.create.tenant"}},
		{"unknown role target", GrantPermissionRequest{RoleCode: str("warlord"), Pattern: "jobs.create.tenant"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, "POST", "/api/v1/admin/permission-grants", 1, tc.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestAdmin_RevokePermission(t *testing.T) {
	env := newTestEnv(t)
	env.seedSuperAdmin()
	env.seedMember()

	rec := env.do(t, "DELETE", "/api/v1/admin/permission-grants/3?user_id=2&tenant_id=10", 1, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotNil(t, env.audit.lastOfType(audit.EventTypePermissionRevoke))

	rec = env.do(t, "DELETE", "/api/v1/admin/permission-grants/3", 1, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdmin_EmergencyAccess(t *testing.T) {
	env := newTestEnv(t)
	env.seedSuperAdmin()
	env.seedMember()

	until := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	rec := env.do(t, "POST", "/api/v1/admin/users/2/emergency-access", 1, EmergencyAccessRequest{Until: until})
	require.Equal(t, http.StatusCreated, rec.Code)

	account, err := env.store.GetAccount(context.Background(), 2)
	require.NoError(t, err)
	require.NotNil(t, account.EmergencyUntil)
	assert.True(t, account.EmergencyUntil.Equal(until))
	assert.NotNil(t, env.audit.lastOfType(audit.EventTypeEmergencyOpen))

	rec = env.do(t, "DELETE", "/api/v1/admin/users/2/emergency-access", 1, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	account, err = env.store.GetAccount(context.Background(), 2)
	require.NoError(t, err)
	assert.Nil(t, account.EmergencyUntil)
	assert.NotNil(t, env.audit.lastOfType(audit.EventTypeEmergencyClose))
}

func TestAdmin_EmergencyAccess_Validation(t *testing.T) {
	env := newTestEnv(t)
	env.seedSuperAdmin()
	env.seedMember()

	rec := env.do(t, "POST", "/api/v1/admin/users/2/emergency-access", 1, EmergencyAccessRequest{
		Until: time.Now().Add(-time.Hour),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "POST", "/api/v1/admin/users/999/emergency-access", 1, EmergencyAccessRequest{
		Until: time.Now().Add(time.Hour),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdmin_InvalidateCache(t *testing.T) {
	env := newTestEnv(t)
	env.seedSuperAdmin()

	rec := env.do(t, "POST", "/api/v1/admin/cache/invalidations", 1, InvalidateCacheRequest{
		UserID: i64(2), TenantID: i64(10),
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotNil(t, env.audit.lastOfType(audit.EventTypeCacheInvalidate))

	rec = env.do(t, "POST", "/api/v1/admin/cache/invalidations", 1, InvalidateCacheRequest{})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// fakeAuditStore satisfies audit.Store with canned responses.
type fakeAuditStore struct{}

func (fakeAuditStore) Search(ctx context.Context, filter audit.SearchFilter) ([]*audit.AuditEvent, error) {
	return nil, nil
}
func (fakeAuditStore) Get(ctx context.Context, id int64) (*audit.AuditEvent, error) {
	return nil, nil
}
func (fakeAuditStore) GetStats(ctx context.Context, startTime, endTime *time.Time) (*audit.AuditStats, error) {
	return &audit.AuditStats{}, nil
}
func (fakeAuditStore) Export(ctx context.Context, filter audit.SearchFilter, format audit.ExportFormat) ([]byte, error) {
	return nil, nil
}
func (fakeAuditStore) Cleanup(ctx context.Context, policy audit.RetentionPolicy) (int64, error) {
	return 0, nil
}

func TestAuditEndpointsGuarded(t *testing.T) {
	env := newTestEnv(t)
	env.seedSuperAdmin()
	env.seedMember()

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	svc := permissions.NewService(env.store, nil, time.Minute, logger)
	eng := engine.New(svc, audit.NewNoopLogger(), logger, nil)
	srv := NewServer(Options{
		Engine:     eng,
		Identity:   engine.NewStoreIdentity(env.store),
		Perms:      svc,
		AuditStore: fakeAuditStore{},
		Logger:     logger,
	})

	req := httptest.NewRequest("GET", "/api/v1/admin/audit/events", nil)
	req.Header.Set(middleware.CallerIDHeader, "2")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest("GET", "/api/v1/admin/audit/events", nil)
	req.Header.Set(middleware.CallerIDHeader, "1")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
