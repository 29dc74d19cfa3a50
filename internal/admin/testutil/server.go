package testutil

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"finitefield.org/admin-console/internal/admin/gateway"
	"finitefield.org/admin-console/internal/admin/httpserver"
	"finitefield.org/admin-console/internal/admin/httpserver/middleware"
	"finitefield.org/admin-console/internal/admin/inflight"
	"finitefield.org/admin-console/internal/admin/login"
	appsession "finitefield.org/admin-console/internal/admin/session"
)

// Test accounts accepted by StaticGateway.
const (
	AdminUsername  = "admin"
	AdminPassword  = "admin-pass"
	ViewerUsername = "viewer"
	ViewerPassword = "viewer-pass"
)

// ServerOption customises the HTTP server configuration for tests.
type ServerOption func(*httpserver.Config)

// WithAuthenticator enables bearer-token access with auth.
func WithAuthenticator(auth middleware.Authenticator) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.BearerAuthenticator = auth
	}
}

// WithBasePath sets a custom base path for the admin routes.
func WithBasePath(path string) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.BasePath = path
	}
}

// WithGateway replaces the credential backend.
func WithGateway(auth gateway.Authenticator) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Gateway = auth
	}
}

// WithGuard replaces the submission guard.
func WithGuard(guard inflight.Guard) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Guard = guard
	}
}

// WithAutofill registers per-hostname form defaults.
func WithAutofill(autofill login.Autofill) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Autofill = autofill
	}
}

// WithMetricsHandler exposes handler at /metrics.
func WithMetricsHandler(handler http.Handler) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.MetricsHandler = handler
	}
}

// StaticGateway accepts the fixed test accounts.
func StaticGateway() gateway.Authenticator {
	return gateway.AuthenticatorFunc(func(ctx context.Context, creds login.Credentials) (*gateway.Identity, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch {
		case creds.Username == AdminUsername && creds.Password == AdminPassword:
			return &gateway.Identity{Subject: "u-admin", Username: AdminUsername, Email: "admin@example.com", Roles: []string{"admin"}, Token: "admin-token"}, nil
		case creds.Username == ViewerUsername && creds.Password == ViewerPassword:
			return &gateway.Identity{Subject: "u-viewer", Username: ViewerUsername, Roles: []string{"viewer"}}, nil
		default:
			return nil, gateway.ErrInvalidCredentials
		}
	})
}

// NewServer constructs an httptest server running the admin HTTP stack with sensible defaults.
func NewServer(t testing.TB, opts ...ServerOption) *httptest.Server {
	t.Helper()

	sessions, err := appsession.NewManager(appsession.Config{
		HashKey: []byte("0123456789abcdef0123456789abcdef"),
	})
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}

	cfg := httpserver.Config{
		Address:        ":0",
		BasePath:       "/admin",
		Environment:    "local",
		SessionStore:   sessions,
		Gateway:        StaticGateway(),
		CSRFHeaderName: "X-CSRF-Token",
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	handler, err := httpserver.NewHandler(cfg)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

// NewClient returns a client with a cookie jar that does not follow redirects.
func NewClient(t testing.TB) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
