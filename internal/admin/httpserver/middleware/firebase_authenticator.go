package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"

	"finitefield.org/admin-console/internal/admin/claims"
)

// ErrIDTokenExpired lets fake verifiers report expiry without the SDK's
// internal error codes.
var ErrIDTokenExpired = errors.New("id token expired")

// IDTokenVerifier is the slice of *firebaseauth.Client used for bearer tokens.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// FirebaseAuthenticator accepts Firebase ID tokens as bearer credentials.
type FirebaseAuthenticator struct {
	verifier IDTokenVerifier
}

// NewFirebaseAuthenticator panics on a nil verifier.
func NewFirebaseAuthenticator(verifier IDTokenVerifier) *FirebaseAuthenticator {
	if verifier == nil {
		panic("middleware: nil id token verifier")
	}
	return &FirebaseAuthenticator{verifier: verifier}
}

func (f *FirebaseAuthenticator) Authenticate(r *http.Request, token string) (*User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, NewAuthError(ReasonMissingToken, ErrUnauthorized)
	}
	verified, err := f.verifier.VerifyIDToken(r.Context(), token)
	if err != nil {
		return nil, NewAuthError(verifyFailure(err), err)
	}
	return staffFromToken(verified, token), nil
}

func verifyFailure(err error) string {
	if errors.Is(err, ErrIDTokenExpired) || firebaseauth.IsIDTokenExpired(err) {
		return ReasonTokenExpired
	}
	return ReasonTokenInvalid
}

// staffFromToken names the user by display name, then email, then UID.
func staffFromToken(tok *firebaseauth.Token, raw string) *User {
	c := tok.Claims
	email := claims.String(c["email"])
	return &User{
		UID:      tok.UID,
		Username: claims.First(claims.String(c["name"]), email, tok.UID),
		Email:    email,
		Roles:    claims.Strings(c["role"], c["roles"]),
		Token:    raw,
	}
}
