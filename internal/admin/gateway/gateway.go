// Package gateway verifies console credentials against an identity backend and
// establishes the browser session on success.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"finitefield.org/admin-console/internal/admin/claims"
	"finitefield.org/admin-console/internal/admin/login"
	appsession "finitefield.org/admin-console/internal/admin/session"
)

var (
	// ErrInvalidCredentials is returned when the backend rejects the username/password pair.
	ErrInvalidCredentials = errors.New("gateway: invalid credentials")
	// ErrUnavailable is returned when the backend cannot be reached or answers unexpectedly.
	ErrUnavailable = errors.New("gateway: backend unavailable")
)

// Identity describes the authenticated staff member returned by a backend.
type Identity struct {
	Subject  string
	Username string
	Email    string
	Roles    []string
	Token    string
}

// Authenticator verifies credentials against a backend.
type Authenticator interface {
	Authenticate(ctx context.Context, creds login.Credentials) (*Identity, error)
}

// AuthenticatorFunc adapts ordinary functions to Authenticator.
type AuthenticatorFunc func(context.Context, login.Credentials) (*Identity, error)

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, creds login.Credentials) (*Identity, error) {
	return f(ctx, creds)
}

// SessionGateway adapts an Authenticator to the login form's gateway contract,
// storing the resulting identity and token in the browser session.
type SessionGateway struct {
	auth    Authenticator
	session *appsession.Session
}

// NewSessionGateway binds auth to the session of the current request.
func NewSessionGateway(auth Authenticator, sess *appsession.Session) *SessionGateway {
	if auth == nil {
		panic("gateway: authenticator is required")
	}
	return &SessionGateway{auth: auth, session: sess}
}

// Login implements login.SessionGateway.
func (g *SessionGateway) Login(ctx context.Context, creds login.Credentials) error {
	identity, err := g.auth.Authenticate(ctx, creds)
	if err != nil {
		return err
	}
	if identity == nil {
		return fmt.Errorf("%w: empty identity", ErrUnavailable)
	}
	if g.session == nil {
		return nil
	}

	username := claims.First(identity.Username, creds.Username)
	subject := claims.First(identity.Subject, username)
	g.session.SetUser(&appsession.User{
		UID:      subject,
		Username: username,
		Email:    identity.Email,
		Roles:    append([]string(nil), identity.Roles...),
	})
	g.session.SetAccessToken(identity.Token)
	return nil
}
