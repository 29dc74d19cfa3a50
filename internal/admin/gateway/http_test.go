package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"finitefield.org/admin-console/internal/admin/gateway"
	"finitefield.org/admin-console/internal/admin/login"
)

func TestHTTPAuthenticatorSuccess(t *testing.T) {
	t.Parallel()

	var payload map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/login", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		defer r.Body.Close()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"subject": "staff-1",
			"email":   "ops@example.com",
			"roles":   []string{"ops"},
			"token":   "bearer-1",
		})
	}))
	t.Cleanup(ts.Close)

	auth, err := gateway.NewHTTPAuthenticator(ts.URL+"/api/", "auth/login", ts.Client())
	require.NoError(t, err)

	identity, err := auth.Authenticate(context.Background(), login.Credentials{Username: "ops", Password: "s3cret!"})
	require.NoError(t, err)
	require.Equal(t, "ops", payload["username"])
	require.Equal(t, "s3cret!", payload["password"])
	require.Equal(t, "staff-1", identity.Subject)
	require.Equal(t, "ops", identity.Username)
	require.Equal(t, []string{"ops"}, identity.Roles)
	require.Equal(t, "bearer-1", identity.Token)
}

func TestHTTPAuthenticatorErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		want   error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, want: gateway.ErrInvalidCredentials},
		{name: "bad request", status: http.StatusBadRequest, want: gateway.ErrInvalidCredentials},
		{name: "server error", status: http.StatusInternalServerError, want: gateway.ErrUnavailable},
		{name: "bad gateway", status: http.StatusBadGateway, want: gateway.ErrUnavailable},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"code":"login_failed","message":"nope"}`))
			}))
			t.Cleanup(ts.Close)

			auth, err := gateway.NewHTTPAuthenticator(ts.URL, "", ts.Client())
			require.NoError(t, err)

			_, err = auth.Authenticate(context.Background(), login.Credentials{Username: "ops", Password: "s3cret!"})
			require.ErrorIs(t, err, tc.want)
			require.ErrorContains(t, err, "nope")
		})
	}
}

func TestHTTPAuthenticatorUnreachable(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	auth, err := gateway.NewHTTPAuthenticator(url, "", nil)
	require.NoError(t, err)

	_, err = auth.Authenticate(context.Background(), login.Credentials{Username: "ops", Password: "s3cret!"})
	require.ErrorIs(t, err, gateway.ErrUnavailable)
}

func TestNewHTTPAuthenticatorRequiresBaseURL(t *testing.T) {
	t.Parallel()

	_, err := gateway.NewHTTPAuthenticator("  ", "", nil)
	require.Error(t, err)
}
