package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"finitefield.org/admin-console/internal/admin/claims"
	"finitefield.org/admin-console/internal/admin/login"
)

const defaultHTTPLoginPath = "/auth/login"

// HTTPClient matches the subset of http.Client used by the REST backends.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// HTTPAuthenticator posts credentials to an upstream REST login endpoint.
type HTTPAuthenticator struct {
	base      *url.URL
	loginPath string
	client    HTTPClient
}

type httpLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type httpLoginResponse struct {
	Subject  string   `json:"subject"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
	Token    string   `json:"token"`
}

// NewHTTPAuthenticator constructs an authenticator for the backend at baseURL.
// An empty loginPath defaults to /auth/login.
func NewHTTPAuthenticator(baseURL, loginPath string, client HTTPClient) (*HTTPAuthenticator, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("gateway: base URL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("gateway: parse base URL: %w", err)
	}
	if strings.TrimSpace(loginPath) == "" {
		loginPath = defaultHTTPLoginPath
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPAuthenticator{
		base:      parsed,
		loginPath: loginPath,
		client:    client,
	}, nil
}

// Authenticate implements Authenticator.
func (a *HTTPAuthenticator) Authenticate(ctx context.Context, creds login.Credentials) (*Identity, error) {
	req, err := a.newJSONRequest(ctx, a.loginPath, httpLoginRequest{
		Username: creds.Username,
		Password: creds.Password,
	})
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, errorFromResponse(resp))
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, errorFromResponse(resp))
	}

	var payload httpLoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode login response: %v", ErrUnavailable, err)
	}
	return &Identity{
		Subject:  payload.Subject,
		Username: claims.First(payload.Username, creds.Username),
		Email:    payload.Email,
		Roles:    payload.Roles,
		Token:    payload.Token,
	}, nil
}

func (a *HTTPAuthenticator) newJSONRequest(ctx context.Context, endpoint string, payload any) (*http.Request, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("gateway: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.resolve(endpoint), &buf)
	if err != nil {
		return nil, fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (a *HTTPAuthenticator) resolve(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	ref := &url.URL{Path: strings.TrimPrefix(endpoint, "/")}
	return a.base.ResolveReference(ref).String()
}

func errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	type errorPayload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	var payload errorPayload
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
			return fmt.Errorf("backend error (%s): %s", strings.TrimSpace(payload.Code), payload.Message)
		}
		return fmt.Errorf("backend error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return fmt.Errorf("backend error (%d): %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}
