package permissions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itellico/mono-access/pkg/access"
	"github.com/itellico/mono-access/pkg/cache"
	"github.com/itellico/mono-access/pkg/store"
)

// fakeStore is an in-memory store.Store with injectable failures.
type fakeStore struct {
	accounts    map[int64]*store.Account
	assignments []store.RoleAssignment
	grants      []store.PermissionGrant

	accountErr error
	grantsErr  error

	accountCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{accounts: make(map[int64]*store.Account)}
}

func (f *fakeStore) GetAccount(ctx context.Context, userID int64) (*store.Account, error) {
	f.accountCalls++
	if f.accountErr != nil {
		return nil, f.accountErr
	}
	a, ok := f.accounts[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) GetRoleAssignments(ctx context.Context, userID int64, tenantID *int64) ([]store.RoleAssignment, error) {
	var out []store.RoleAssignment
	for _, a := range f.assignments {
		if a.UserID == userID && tenantMatches(a.TenantID, tenantID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) GetRolePermissions(ctx context.Context, roleCodes []string) ([]store.PermissionGrant, error) {
	if f.grantsErr != nil {
		return nil, f.grantsErr
	}
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
	if f.grantsErr != nil {
		return nil, f.grantsErr
	}
	var out []store.PermissionGrant
	for _, g := range f.grants {
		if g.UserID != nil && *g.UserID == userID && tenantMatches(g.TenantID, tenantID) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeStore) AssignRole(ctx context.Context, assignment *store.RoleAssignment) error {
	f.assignments = append(f.assignments, *assignment)
	return nil
}

func (f *fakeStore) RevokeRole(ctx context.Context, assignmentID int64) error {
	for i, a := range f.assignments {
		if a.ID == assignmentID {
			f.assignments = append(f.assignments[:i], f.assignments[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) GrantPermission(ctx context.Context, grant *store.PermissionGrant) error {
	f.grants = append(f.grants, *grant)
	return nil
}

func (f *fakeStore) RevokePermission(ctx context.Context, grantID int64) error {
	for i, g := range f.grants {
		if g.ID == grantID {
			f.grants = append(f.grants[:i], f.grants[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) SetEmergencyAccess(ctx context.Context, userID int64, until *time.Time) error {
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

func i64(v int64) *int64   { return &v }
func str(v string) *string { return &v }

func seedUser(fs *fakeStore, userID int64, tenantID *int64, roles ...string) {
	fs.accounts[userID] = &store.Account{ID: userID, TenantID: tenantID, Email: "u@example.com"}
	for i, code := range roles {
		fs.assignments = append(fs.assignments, store.RoleAssignment{
			ID:       int64(100*userID) + int64(i),
			UserID:   userID,
			RoleCode: code,
			TenantID: tenantID,
		})
	}
}

func TestGetUserPermissionsMergesSources(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, 1, i64(7), "account_manager")
	fs.grants = []store.PermissionGrant{
		{ID: 1, UserID: i64(1), TenantID: i64(7), Pattern: "profiles.read.own", Granted: true},
		{ID: 2, RoleCode: str("account_manager"), TenantID: i64(7), Pattern: "profiles.*.tenant", Granted: true},
		{ID: 3, UserID: i64(1), TenantID: i64(7), Pattern: "profiles.delete.tenant", Granted: false},
	}
	svc := NewService(fs, nil, 0, nil)

	perms, err := svc.GetUserPermissions(context.Background(), 1, i64(7))
	require.NoError(t, err)
	assert.Equal(t, []string{"account_manager"}, perms.Roles)
	assert.Equal(t, []access.Pattern{access.MustParsePattern("profiles.read.own")}, perms.Direct)
	assert.Equal(t, []access.Pattern{access.MustParsePattern("profiles.*.tenant")}, perms.FromRoles)
	assert.Len(t, perms.Effective, 2)
	assert.Equal(t, []access.Pattern{access.MustParsePattern("profiles.delete.tenant")}, perms.Denied)
}

func TestGetUserPermissionsUnknownUser(t *testing.T) {
	svc := NewService(newFakeStore(), nil, 0, nil)

	_, err := svc.GetUserPermissions(context.Background(), 99, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, access.ErrPermissionsNotFound))
}

func TestGetUserPermissionsEmptyIsNotMissing(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, 2, i64(7))
	svc := NewService(fs, nil, 0, nil)

	perms, err := svc.GetUserPermissions(context.Background(), 2, i64(7))
	require.NoError(t, err)
	assert.Empty(t, perms.Effective)
	assert.Empty(t, perms.Denied)
}

func TestGetUserPermissionsDropsUnknownRoles(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, 3, i64(7), "fake_admin", "user")
	fs.grants = []store.PermissionGrant{
		{ID: 1, RoleCode: str("fake_admin"), Pattern: "tenants.*.global", Granted: true},
		{ID: 2, RoleCode: str("user"), Pattern: "profiles.read.own", Granted: true},
	}
	svc := NewService(fs, nil, 0, nil)

	perms, err := svc.GetUserPermissions(context.Background(), 3, i64(7))
	require.NoError(t, err)
	// The raw code list is preserved for reporting, but the unknown
	// role contributes no grants.
	assert.Equal(t, []string{"fake_admin", "user"}, perms.Roles)
	assert.Equal(t, []access.Pattern{access.MustParsePattern("profiles.read.own")}, perms.Effective)
}

func TestGetUserPermissionsSkipsMalformedPatterns(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, 4, nil)
	fs.grants = []store.PermissionGrant{
		{ID: 1, UserID: i64(4), Pattern: "not a pattern", Granted: true},
		{ID: 2, UserID: i64(4), Pattern: "jobs.read.tenant", Granted: true},
	}
	svc := NewService(fs, nil, 0, nil)

	perms, err := svc.GetUserPermissions(context.Background(), 4, nil)
	require.NoError(t, err)
	assert.Equal(t, []access.Pattern{access.MustParsePattern("jobs.read.tenant")}, perms.Effective)
}

func TestGetUserPermissionsCacheHit(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, 5, i64(7), "user")
	fs.grants = []store.PermissionGrant{
		{ID: 1, UserID: i64(5), TenantID: i64(7), Pattern: "profiles.read.own", Granted: true},
	}
	mc := cache.NewMemoryCache(16, time.Minute)
	svc := NewService(fs, mc, time.Minute, nil)

	first, err := svc.GetUserPermissions(context.Background(), 5, i64(7))
	require.NoError(t, err)
	second, err := svc.GetUserPermissions(context.Background(), 5, i64(7))
	require.NoError(t, err)

	assert.Equal(t, first.Effective, second.Effective)
	assert.Equal(t, 1, fs.accountCalls, "second read should be served from cache")
}

func TestGetUserPermissionsInvalidateForcesReload(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, 6, i64(7), "user")
	mc := cache.NewMemoryCache(16, time.Minute)
	svc := NewService(fs, mc, time.Minute, nil)
	ctx := context.Background()

	perms, err := svc.GetUserPermissions(ctx, 6, i64(7))
	require.NoError(t, err)
	assert.Empty(t, perms.Effective)

	require.NoError(t, svc.GrantPermission(ctx, &store.PermissionGrant{
		ID: 10, UserID: i64(6), TenantID: i64(7), Pattern: "jobs.create.tenant", Granted: true,
	}))

	perms, err = svc.GetUserPermissions(ctx, 6, i64(7))
	require.NoError(t, err)
	assert.Equal(t, []access.Pattern{access.MustParsePattern("jobs.create.tenant")}, perms.Effective)
	assert.Equal(t, 2, fs.accountCalls)
}

func TestGetUserPermissionsTenantlessGrantReachesAllPairs(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, 8, i64(7), "user")
	mc := cache.NewMemoryCache(16, time.Minute)
	svc := NewService(fs, mc, time.Minute, nil)
	ctx := context.Background()

	perms, err := svc.GetUserPermissions(ctx, 8, i64(7))
	require.NoError(t, err)
	assert.Empty(t, perms.Effective)

	// A grant without a tenant applies under every tenant, so the
	// warmed (8, 7) pair must not keep serving the pre-grant set.
	require.NoError(t, svc.GrantPermission(ctx, &store.PermissionGrant{
		ID: 11, UserID: i64(8), Pattern: "profiles.read.tenant", Granted: true,
	}))

	perms, err = svc.GetUserPermissions(ctx, 8, i64(7))
	require.NoError(t, err)
	assert.Equal(t, []access.Pattern{access.MustParsePattern("profiles.read.tenant")}, perms.Effective)
}

func TestGetUserPermissionsStoreFailureFailsClosed(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, 7, nil)
	fs.grantsErr = errors.New("connection reset")
	svc := NewService(fs, nil, 0, nil)

	_, err := svc.GetUserPermissions(context.Background(), 7, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, access.ErrPermissionsNotFound)
}

func TestHasPermissionDenyWins(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, 8, i64(7), "account_manager")
	fs.grants = []store.PermissionGrant{
		{ID: 1, RoleCode: str("account_manager"), Pattern: "profiles.*.tenant", Granted: true},
		{ID: 2, UserID: i64(8), TenantID: i64(7), Pattern: "profiles.delete.tenant", Granted: false},
	}
	svc := NewService(fs, nil, 0, nil)
	ctx := context.Background()

	_, ok, err := svc.HasPermission(ctx, 8, access.MustParsePattern("profiles.delete.tenant"), i64(7))
	require.NoError(t, err)
	assert.False(t, ok, "explicit deny beats the wildcard grant")

	// The wildcard form of the same request must not route around the
	// deny either.
	_, ok, err = svc.HasPermission(ctx, 8, access.MustParsePattern("profiles.*.tenant"), i64(7))
	require.NoError(t, err)
	assert.False(t, ok)

	matched, ok, err := svc.HasPermission(ctx, 8, access.MustParsePattern("profiles.read.tenant"), i64(7))
	require.NoError(t, err)
	assert.True(t, ok, "unrelated actions stay granted")
	assert.Equal(t, "profiles.*.tenant", matched.String())
}

func TestHasPermissionScopeIsExact(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, 9, i64(7))
	fs.grants = []store.PermissionGrant{
		{ID: 1, UserID: i64(9), TenantID: i64(7), Pattern: "profiles.edit.own", Granted: true},
	}
	svc := NewService(fs, nil, 0, nil)
	ctx := context.Background()

	_, ok, err := svc.HasPermission(ctx, 9, access.MustParsePattern("profiles.edit.tenant"), i64(7))
	require.NoError(t, err)
	assert.False(t, ok, "own-scope grant never satisfies a tenant-scope check")

	_, ok, err = svc.HasPermission(ctx, 9, access.MustParsePattern("profiles.edit.own"), i64(7))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMutationValidation(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, 10, nil)
	svc := NewService(fs, nil, 0, nil)
	ctx := context.Background()

	err := svc.AssignRole(ctx, &store.RoleAssignment{UserID: 10, RoleCode: "fake_admin"})
	require.Error(t, err)
	assert.Empty(t, fs.assignments, "rejected assignment must not be stored")

	err = svc.GrantPermission(ctx, &store.PermissionGrant{UserID: i64(10), Pattern: "bad pattern", Granted: true})
	require.Error(t, err)
	assert.Empty(t, fs.grants)

	err = svc.GrantPermission(ctx, &store.PermissionGrant{RoleCode: str("nope"), Pattern: "jobs.read.tenant", Granted: true})
	require.Error(t, err)
	assert.Empty(t, fs.grants)
}
