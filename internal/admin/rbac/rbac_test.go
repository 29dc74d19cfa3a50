package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasCapabilityMatrix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		roles      []string
		capability Capability
		want       bool
	}{
		{name: "admin holds defined capability", roles: []string{"admin"}, capability: CapSessionDetail, want: true},
		{name: "admin denied undefined capability", roles: []string{"admin"}, capability: Capability("made.up"), want: false},
		{name: "viewer sees dashboard", roles: []string{"viewer"}, capability: CapDashboardView, want: true},
		{name: "viewer cannot inspect session", roles: []string{"viewer"}, capability: CapSessionDetail, want: false},
		{name: "ops role is case and space insensitive", roles: []string{" OPS "}, capability: CapSessionDetail, want: true},
		{name: "unknown role grants nothing", roles: []string{"unknown"}, capability: CapDashboardView, want: false},
		{name: "no roles grant nothing", roles: nil, capability: CapRolesView, want: false},
		{name: "empty capability is unguarded", roles: nil, capability: "", want: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, HasCapability(tc.roles, tc.capability))
		})
	}
}

func TestGrantMergesRoles(t *testing.T) {
	t.Parallel()

	require.Equal(t, []Capability{CapDashboardView}, Grant([]string{"viewer"}).List())
	require.Equal(t, []Capability{CapDashboardView, CapRolesView, CapSessionDetail}, Grant([]string{"viewer", "ops"}).List())
	require.Len(t, Grant([]string{"unknown", "admin"}), len(defined))
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	role, ok := ParseRole(" Admin")
	require.True(t, ok)
	require.Equal(t, RoleAdmin, role)

	_, ok = ParseRole("root")
	require.False(t, ok)
}
