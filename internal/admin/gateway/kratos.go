package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	client "github.com/ory/kratos-client-go"

	"finitefield.org/admin-console/internal/admin/claims"
	"finitefield.org/admin-console/internal/admin/login"
)

// KratosAuthenticator runs the Ory Kratos native login flow with the password
// method.
type KratosAuthenticator struct {
	api          *client.APIClient
	defaultRoles []string
}

// NewKratosAuthenticator constructs an authenticator for the Kratos public API
// at publicURL. defaultRoles apply when the identity traits carry none.
func NewKratosAuthenticator(publicURL string, httpClient *http.Client, defaultRoles []string) (*KratosAuthenticator, error) {
	if strings.TrimSpace(publicURL) == "" {
		return nil, errors.New("gateway: kratos public URL is required")
	}
	cfg := client.NewConfiguration()
	cfg.Servers = client.ServerConfigurations{
		{URL: strings.TrimRight(publicURL, "/")},
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &KratosAuthenticator{
		api:          client.NewAPIClient(cfg),
		defaultRoles: append([]string(nil), defaultRoles...),
	}, nil
}

// Authenticate implements Authenticator.
func (k *KratosAuthenticator) Authenticate(ctx context.Context, creds login.Credentials) (*Identity, error) {
	flow, resp, err := k.api.FrontendAPI.CreateNativeLoginFlow(ctx).Execute()
	if err != nil {
		return nil, fmt.Errorf("%w: create login flow: %v", ErrUnavailable, describeKratosError(err, resp))
	}

	body := client.UpdateLoginFlowBody{
		UpdateLoginFlowWithPasswordMethod: &client.UpdateLoginFlowWithPasswordMethod{
			Method:     "password",
			Identifier: creds.Username,
			Password:   creds.Password,
		},
	}
	result, resp, err := k.api.FrontendAPI.UpdateLoginFlow(ctx).
		Flow(flow.Id).
		UpdateLoginFlowBody(body).
		Execute()
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
				return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, describeKratosError(err, resp))
			}
		}
		return nil, fmt.Errorf("%w: submit login: %v", ErrUnavailable, describeKratosError(err, resp))
	}
	if result == nil || result.Session.Identity == nil {
		return nil, fmt.Errorf("%w: login succeeded without identity", ErrUnavailable)
	}

	identity := result.Session.Identity
	traits, _ := identity.Traits.(map[string]any)
	username := claims.First(claims.String(traits["username"]), claims.String(traits["email"]), creds.Username)
	roles := claims.Strings(traits["roles"], traits["role"])
	if len(roles) == 0 {
		roles = append([]string(nil), k.defaultRoles...)
	}

	token := ""
	if result.SessionToken != nil {
		token = *result.SessionToken
	}
	return &Identity{
		Subject:  identity.Id,
		Username: username,
		Email:    claims.String(traits["email"]),
		Roles:    roles,
		Token:    token,
	}, nil
}

func describeKratosError(err error, resp *http.Response) error {
	var apiErr *client.GenericOpenAPIError
	if errors.As(err, &apiErr) && len(apiErr.Body()) > 0 {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return fmt.Errorf("kratos status %d: %s", status, strings.TrimSpace(string(apiErr.Body())))
	}
	return err
}
