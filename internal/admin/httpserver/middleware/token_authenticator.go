package middleware

import (
	"errors"
	"net/http"
	"strings"

	"finitefield.org/admin-console/internal/admin/authtoken"
)

// TokenAuthenticator accepts the HS256 bearer tokens issued at local sign-in.
type TokenAuthenticator struct {
	issuer *authtoken.Issuer
}

// NewTokenAuthenticator constructs an Authenticator backed by issuer.
func NewTokenAuthenticator(issuer *authtoken.Issuer) *TokenAuthenticator {
	if issuer == nil {
		panic("token issuer is required")
	}
	return &TokenAuthenticator{issuer: issuer}
}

// Authenticate implements Authenticator.
func (a *TokenAuthenticator) Authenticate(_ *http.Request, token string) (*User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, NewAuthError(ReasonMissingToken, ErrUnauthorized)
	}
	claims, err := a.issuer.Parse(token)
	if err != nil {
		if errors.Is(err, authtoken.ErrExpiredToken) {
			return nil, NewAuthError(ReasonTokenExpired, err)
		}
		return nil, NewAuthError(ReasonTokenInvalid, err)
	}
	return &User{
		UID:      claims.Subject,
		Username: claims.Subject,
		Roles:    append([]string(nil), claims.Roles...),
		Token:    token,
	}, nil
}
