package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestInfoMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		base, env       string
		wantBase, label string
	}{
		{base: "admin/", env: "prod", wantBase: "/admin", label: "Production"},
		{base: "//admin//", env: "STG", wantBase: "/admin", label: "Staging"},
		{base: "", env: "", wantBase: "/", label: "Development"},
		{base: "/", env: "qa", wantBase: "/", label: "qa"},
	}

	for _, tc := range tests {
		var info RequestInfo
		handler := RequestInfoMiddleware(tc.base, tc.env)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			info, _ = RequestInfoFromContext(r.Context())
			require.Equal(t, tc.wantBase, BasePathFromContext(r.Context()))
			require.Equal(t, tc.label, EnvironmentFromContext(r.Context()))
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "http://console.example.com/admin/login", nil))
		require.Equal(t, "console.example.com", info.Host)
	}
}

func TestRequestInfoDefaultsWithoutMiddleware(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/", BasePathFromContext(context.Background()))
	require.Equal(t, "Development", EnvironmentFromContext(context.Background()))
}
