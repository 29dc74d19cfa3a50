package gateway_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"finitefield.org/admin-console/internal/admin/gateway"
	"finitefield.org/admin-console/internal/admin/login"
	appsession "finitefield.org/admin-console/internal/admin/session"
)

func newSession(t *testing.T) *appsession.Session {
	t.Helper()
	mgr, err := appsession.NewManager(appsession.Config{
		HashKey: []byte("12345678901234567890123456789012"),
	})
	require.NoError(t, err)
	return mgr.New()
}

func TestSessionGatewayStoresIdentity(t *testing.T) {
	t.Parallel()

	sess := newSession(t)
	auth := gateway.AuthenticatorFunc(func(_ context.Context, creds login.Credentials) (*gateway.Identity, error) {
		require.Equal(t, "admin", creds.Username)
		return &gateway.Identity{
			Subject: "uid-1",
			Email:   "admin@example.com",
			Roles:   []string{"admin"},
			Token:   "token-1",
		}, nil
	})

	gw := gateway.NewSessionGateway(auth, sess)
	require.NoError(t, gw.Login(context.Background(), login.Credentials{Username: "admin", Password: "secret1"}))

	user := sess.User()
	require.NotNil(t, user)
	require.Equal(t, "uid-1", user.UID)
	require.Equal(t, "admin", user.Username)
	require.Equal(t, "admin@example.com", user.Email)
	require.Equal(t, []string{"admin"}, user.Roles)
	require.Equal(t, "token-1", sess.AccessToken())
}

func TestSessionGatewayFailureLeavesSessionAnonymous(t *testing.T) {
	t.Parallel()

	sess := newSession(t)
	auth := gateway.AuthenticatorFunc(func(context.Context, login.Credentials) (*gateway.Identity, error) {
		return nil, gateway.ErrInvalidCredentials
	})

	err := gateway.NewSessionGateway(auth, sess).Login(context.Background(), login.Credentials{Username: "admin", Password: "wrong-pass"})
	require.ErrorIs(t, err, gateway.ErrInvalidCredentials)
	require.Nil(t, sess.User())
	require.Empty(t, sess.AccessToken())
}

func TestSessionGatewayRejectsEmptyIdentity(t *testing.T) {
	t.Parallel()

	auth := gateway.AuthenticatorFunc(func(context.Context, login.Credentials) (*gateway.Identity, error) {
		return nil, nil
	})

	err := gateway.NewSessionGateway(auth, newSession(t)).Login(context.Background(), login.Credentials{})
	require.True(t, errors.Is(err, gateway.ErrUnavailable))
}

func TestNewSessionGatewayPanicsWithoutAuthenticator(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() {
		gateway.NewSessionGateway(nil, nil)
	})
}
