package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/require"
)

type stubFirebaseVerifier struct {
	token *firebaseauth.Token
	err   error
	seen  string
}

func (s *stubFirebaseVerifier) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	s.seen = idToken
	return s.token, s.err
}

func TestFirebaseAuthenticatorMapsClaims(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		claims       map[string]any
		wantUsername string
		wantRoles    []string
	}{
		{
			name:         "display name wins",
			claims:       map[string]any{"name": "Ops Lead", "email": "ops@example.com", "role": []any{"ops"}},
			wantUsername: "Ops Lead",
			wantRoles:    []string{"ops"},
		},
		{
			name:         "email fallback",
			claims:       map[string]any{"email": "admin@example.com", "role": []any{"admin", "ops"}, "roles": "admin"},
			wantUsername: "admin@example.com",
			wantRoles:    []string{"admin", "ops"},
		},
		{
			name:         "uid fallback",
			claims:       map[string]any{"roles": map[string]any{"viewer": true, "admin": false}},
			wantUsername: "user-123",
			wantRoles:    []string{"viewer"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			verifier := &stubFirebaseVerifier{token: &firebaseauth.Token{UID: "user-123", Claims: tc.claims}}
			user, err := NewFirebaseAuthenticator(verifier).Authenticate(httptest.NewRequest(http.MethodGet, "/", nil), "good-token")
			require.NoError(t, err)
			require.Equal(t, "user-123", user.UID)
			require.Equal(t, tc.wantUsername, user.Username)
			require.Equal(t, tc.wantRoles, user.Roles)
			require.Equal(t, "good-token", user.Token)
			require.Equal(t, "good-token", verifier.seen)
		})
	}
}

func TestFirebaseAuthenticatorErrorReasons(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		token  string
		err    error
		reason string
	}{
		{name: "expired", token: "expired", err: ErrIDTokenExpired, reason: ReasonTokenExpired},
		{name: "invalid", token: "forged", err: errors.New("signature mismatch"), reason: ReasonTokenInvalid},
		{name: "missing", token: "  ", reason: ReasonMissingToken},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			auth := NewFirebaseAuthenticator(&stubFirebaseVerifier{err: tc.err})
			_, err := auth.Authenticate(httptest.NewRequest(http.MethodGet, "/", nil), tc.token)
			var authErr *AuthError
			require.ErrorAs(t, err, &authErr)
			require.Equal(t, tc.reason, authErr.Reason)
		})
	}
}

func TestFirebaseAuthenticatorBehindAuthMiddleware(t *testing.T) {
	t.Parallel()

	verifier := &stubFirebaseVerifier{token: &firebaseauth.Token{
		UID:    "user-9",
		Claims: map[string]any{"email": "viewer@example.com", "role": "viewer"},
	}}

	var got *User
	handler := Auth(NewFirebaseAuthenticator(verifier), "/admin/login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: "__session", Value: "cookie-token"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, got)
	require.Equal(t, "viewer@example.com", got.Username)
	require.Equal(t, "cookie-token", verifier.seen)
}

func TestNewFirebaseAuthenticatorRequiresVerifier(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() { NewFirebaseAuthenticator(nil) })
}
