package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"finitefield.org/admin-console/internal/admin/authtoken"
	appsession "finitefield.org/admin-console/internal/admin/session"
)

type stubAuthenticator struct {
	token string
	user  *User
	err   error
}

func (s stubAuthenticator) Authenticate(_ *http.Request, token string) (*User, error) {
	if token != s.token {
		return nil, ErrUnauthorized
	}
	return s.user, s.err
}

func guarded(t *testing.T, auth Authenticator) http.Handler {
	t.Helper()
	return HTMX()(Auth(auth, "/admin/login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := UserFromContext(r.Context())
		require.True(t, ok, "user in context")
		w.WriteHeader(http.StatusOK)
	})))
}

func TestAuthRedirectsAnonymousToLogin(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	guarded(t, stubAuthenticator{token: "valid"}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/reports?tab=daily", nil))

	require.Equal(t, http.StatusFound, rr.Code)
	location, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/admin/login", location.Path)
	require.Equal(t, "/admin/reports", location.Query().Get(RedirectQueryKey))
	require.Equal(t, "daily", location.Query().Get("tab"))
}

func TestAuthHTMXReturnsToCurrentPage(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/admin/fragments/table", nil)
	req.Header.Set("HX-Request", "true")
	req.Header.Set("HX-Current-URL", "http://example.com/admin/reports?tab=weekly")
	rr := httptest.NewRecorder()
	guarded(t, stubAuthenticator{token: "valid"}).ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "/admin/login?redirect=%2Fadmin%2Freports&tab=weekly", rr.Header().Get("HX-Redirect"))
}

func TestAuthBearerCredentials(t *testing.T) {
	t.Parallel()

	auth := stubAuthenticator{token: "valid", user: &User{UID: "user-1"}}
	tests := []struct {
		name    string
		prepare func(*http.Request)
	}{
		{name: "authorization header", prepare: func(r *http.Request) { r.Header.Set("Authorization", "Bearer valid") }},
		{name: "session cookie", prepare: func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "__session", Value: "valid"}) }},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			tc.prepare(req)
			rr := httptest.NewRecorder()
			guarded(t, auth).ServeHTTP(rr, req)
			require.Equal(t, http.StatusOK, rr.Code)
		})
	}
}

func TestAuthExpiredTokenRefreshesHTMX(t *testing.T) {
	t.Parallel()

	auth := stubAuthenticator{token: "valid", user: &User{UID: "user-1"}, err: NewAuthError(ReasonTokenExpired, errors.New("expired"))}
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer valid")
	req.Header.Set("HX-Request", "true")
	rr := httptest.NewRecorder()
	guarded(t, auth).ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "true", rr.Header().Get("HX-Refresh"))
}

func TestAuthWithoutAuthenticatorIgnoresBearer(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rr := httptest.NewRecorder()
	guarded(t, nil).ServeHTTP(rr, req)
	require.Equal(t, http.StatusFound, rr.Code)
}

func TestAuthAcceptsSessionUser(t *testing.T) {
	t.Parallel()

	store := newSessionStoreForTest(t, &sessionTestClock{now: time.Now()})
	var seen *User
	handler := Session(store)(Auth(nil, "/admin/login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
	})))

	sess := store.New()
	sess.SetUser(&appsession.User{UID: "uid-1", Username: "admin", Roles: []string{"admin"}})
	sess.SetAccessToken("token-1")
	rec := httptest.NewRecorder()
	require.NoError(t, store.Save(rec, sess))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(findCookie(rec.Result().Cookies(), "test_session"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, seen)
	require.Equal(t, "admin", seen.Username)
	require.Equal(t, "token-1", seen.Token)
}

func TestTokenAuthenticator(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	issuer, err := authtoken.NewIssuer([]byte("middleware-secret"), authtoken.WithTTL(time.Hour), authtoken.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	token, err := issuer.Issue("ops-user", []string{"ops"})
	require.NoError(t, err)

	auth := NewTokenAuthenticator(issuer)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	user, err := auth.Authenticate(req, token)
	require.NoError(t, err)
	require.Equal(t, "ops-user", user.UID)
	require.Equal(t, []string{"ops"}, user.Roles)

	var authErr *AuthError
	_, err = auth.Authenticate(req, token+"x")
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, ReasonTokenInvalid, authErr.Reason)

	now = now.Add(2 * time.Hour)
	_, err = auth.Authenticate(req, token)
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, ReasonTokenExpired, authErr.Reason)
}

func TestLoginRedirectURLReplacesRedirect(t *testing.T) {
	t.Parallel()

	got := LoginRedirectURL("/admin/login", "/admin/users", url.Values{"redirect": {"/evil"}, "page": {"2"}})
	require.Equal(t, "/admin/login?page=2&redirect=%2Fadmin%2Fusers", got)
}
