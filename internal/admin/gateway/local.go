package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"finitefield.org/admin-console/internal/admin/authtoken"
	"finitefield.org/admin-console/internal/admin/login"
)

// LocalUser is a console account defined in configuration.
type LocalUser struct {
	Username     string
	PasswordHash string
	Email        string
	Roles        []string
}

// LocalAuthenticator checks credentials against bcrypt hashes held in memory and
// issues a signed bearer token on success.
type LocalAuthenticator struct {
	users  map[string]LocalUser
	issuer *authtoken.Issuer
	// dummyHash is compared for unknown users so both paths cost a bcrypt round.
	dummyHash []byte
}

// NewLocalAuthenticator constructs an authenticator over users. Usernames are
// matched case-insensitively.
func NewLocalAuthenticator(users []LocalUser, issuer *authtoken.Issuer) (*LocalAuthenticator, error) {
	if issuer == nil {
		return nil, errors.New("gateway: token issuer is required")
	}
	index := make(map[string]LocalUser, len(users))
	for _, u := range users {
		key := strings.ToLower(strings.TrimSpace(u.Username))
		if key == "" {
			return nil, errors.New("gateway: local user without username")
		}
		if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
			return nil, fmt.Errorf("gateway: local user %q: invalid password hash: %w", u.Username, err)
		}
		if _, dup := index[key]; dup {
			return nil, fmt.Errorf("gateway: duplicate local user %q", u.Username)
		}
		index[key] = u
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("gateway: prepare dummy hash: %w", err)
	}
	return &LocalAuthenticator{users: index, issuer: issuer, dummyHash: dummy}, nil
}

// Authenticate implements Authenticator.
func (a *LocalAuthenticator) Authenticate(ctx context.Context, creds login.Credentials) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	user, ok := a.users[strings.ToLower(strings.TrimSpace(creds.Username))]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(a.dummyHash, []byte(creds.Password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := a.issuer.Issue(user.Username, user.Roles)
	if err != nil {
		return nil, err
	}
	return &Identity{
		Subject:  user.Username,
		Username: user.Username,
		Email:    user.Email,
		Roles:    append([]string(nil), user.Roles...),
		Token:    token,
	}, nil
}
