package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"

	"finitefield.org/admin-console/internal/admin/claims"
	"finitefield.org/admin-console/internal/admin/login"
)

const defaultIdentityToolkitURL = "https://identitytoolkit.googleapis.com"

// FirebaseTokenVerifier abstracts the Firebase Admin SDK client for testability.
type FirebaseTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// FirebaseAuthenticator signs in with email/password through the Identity
// Toolkit REST API and verifies the returned ID token with the Admin SDK.
type FirebaseAuthenticator struct {
	endpoint *url.URL
	apiKey   string
	client   HTTPClient
	verifier FirebaseTokenVerifier
}

// NewFirebaseAuthenticator constructs the authenticator. An empty endpoint
// uses the public Identity Toolkit host; the emulator can be targeted instead.
func NewFirebaseAuthenticator(endpoint, apiKey string, client HTTPClient, verifier FirebaseTokenVerifier) (*FirebaseAuthenticator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gateway: firebase API key is required")
	}
	if verifier == nil {
		return nil, errors.New("gateway: firebase token verifier is required")
	}
	if strings.TrimSpace(endpoint) == "" {
		endpoint = defaultIdentityToolkitURL
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("gateway: parse identity toolkit URL: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &FirebaseAuthenticator{
		endpoint: parsed,
		apiKey:   apiKey,
		client:   client,
		verifier: verifier,
	}, nil
}

type signInRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type signInResponse struct {
	LocalID string `json:"localId"`
	Email   string `json:"email"`
	IDToken string `json:"idToken"`
}

type signInError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Authenticate implements Authenticator. The username is the account email.
func (f *FirebaseAuthenticator) Authenticate(ctx context.Context, creds login.Credentials) (*Identity, error) {
	body, err := json.Marshal(signInRequest{
		Email:             strings.TrimSpace(creds.Username),
		Password:          creds.Password,
		ReturnSecureToken: true,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: encode sign-in request: %w", err)
	}

	endpoint := f.endpoint.ResolveReference(&url.URL{Path: "/v1/accounts:signInWithPassword"})
	q := endpoint.Query()
	q.Set("key", f.apiKey)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gateway: build sign-in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var payload signInError
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		if resp.StatusCode == http.StatusBadRequest && isCredentialFailure(payload.Error.Message) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, payload.Error.Message)
		}
		return nil, fmt.Errorf("%w: identity toolkit status %d: %s", ErrUnavailable, resp.StatusCode, payload.Error.Message)
	}

	var payload signInResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode sign-in response: %v", ErrUnavailable, err)
	}

	verified, err := f.verifier.VerifyIDToken(ctx, payload.IDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: verify id token: %v", ErrInvalidCredentials, err)
	}

	email := claims.First(claims.String(verified.Claims["email"]), payload.Email, creds.Username)
	return &Identity{
		Subject:  claims.First(verified.UID, payload.LocalID),
		Username: email,
		Email:    email,
		Roles:    claims.Strings(verified.Claims["role"], verified.Claims["roles"]),
		Token:    payload.IDToken,
	}, nil
}

func isCredentialFailure(message string) bool {
	code := strings.ToUpper(strings.TrimSpace(message))
	if idx := strings.Index(code, " "); idx > 0 {
		code = code[:idx]
	}
	switch code {
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED", "INVALID_EMAIL", "MISSING_PASSWORD":
		return true
	default:
		return false
	}
}
