package access

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeriveScope(t *testing.T) {
	tenant := int64(7)

	tests := []struct {
		name string
		ctx  Context
		want Scope
	}{
		{
			name: "tenants without tenant id is global",
			ctx:  Context{Resource: "tenants", Action: "list"},
			want: ScopeGlobal,
		},
		{
			name: "tenants with tenant id falls back to tenant",
			ctx:  Context{Resource: "tenants", Action: "read", TenantID: &tenant},
			want: ScopeTenant,
		},
		{
			name: "own action",
			ctx:  Context{Resource: "profiles", Action: "own", TenantID: &tenant},
			want: ScopeOwn,
		},
		{
			name: "resource id equals caller",
			ctx:  Context{Resource: "profiles", Action: "update", ResourceID: "42", TenantID: &tenant},
			want: ScopeOwn,
		},
		{
			name: "resource id differs from caller",
			ctx:  Context{Resource: "profiles", Action: "update", ResourceID: "43", TenantID: &tenant},
			want: ScopeTenant,
		},
		{
			name: "roles default to global",
			ctx:  Context{Resource: "roles", Action: "update"},
			want: ScopeGlobal,
		},
		{
			name: "permissions default to global",
			ctx:  Context{Resource: "permissions", Action: "read"},
			want: ScopeGlobal,
		},
		{
			name: "ordinary resource defaults to tenant",
			ctx:  Context{Resource: "categories", Action: "read", TenantID: &tenant},
			want: ScopeTenant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveScope(tt.ctx, 42))
		})
	}
}

func TestIsAdminResource(t *testing.T) {
	assert.True(t, IsAdminResource("roles"))
	assert.True(t, IsAdminResource("admin"))
	assert.False(t, IsAdminResource("profiles"))
}

func TestPrincipalHasEmergencyAccess(t *testing.T) {
	now := time.Now()

	future := now.Add(10 * time.Minute)
	past := now.Add(-10 * time.Minute)

	assert.True(t, Principal{ID: 1, EmergencyUntil: &future}.HasEmergencyAccess(now))
	assert.False(t, Principal{ID: 1, EmergencyUntil: &past}.HasEmergencyAccess(now))
	assert.False(t, Principal{ID: 1}.HasEmergencyAccess(now))
}
