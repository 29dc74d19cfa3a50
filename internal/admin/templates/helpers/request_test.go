package helpers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"finitefield.org/admin-console/internal/admin/httpserver/middleware"
	"finitefield.org/admin-console/internal/admin/rbac"
)

func TestJoinBase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		base string
		path string
		want string
	}{
		{base: "/admin", path: "/logout", want: "/admin/logout"},
		{base: "admin/", path: "logout", want: "/admin/logout"},
		{base: "/admin", path: "/", want: "/admin"},
		{base: "", path: "/logout", want: "/logout"},
	}

	for _, tc := range tests {
		ctx := contextWithBase(t, tc.base)
		require.Equal(t, tc.want, JoinBase(ctx, tc.path), "base %q path %q", tc.base, tc.path)
	}
}

func TestCapabilities(t *testing.T) {
	t.Parallel()

	require.False(t, Can(context.Background(), rbac.CapDashboardView))

	ctx := middleware.ContextWithUser(context.Background(), &middleware.User{Roles: []string{"viewer"}})
	require.True(t, Can(ctx, rbac.CapDashboardView))
	require.False(t, Can(ctx, rbac.CapSessionDetail))
	require.Equal(t, []rbac.Capability{rbac.CapDashboardView}, Capabilities(ctx).List())
}

func contextWithBase(t *testing.T, base string) context.Context {
	t.Helper()

	var ctx context.Context
	handler := middleware.RequestInfoMiddleware(base, "")(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ctx = r.Context()
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotNil(t, ctx)
	return ctx
}
