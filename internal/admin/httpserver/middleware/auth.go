package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"finitefield.org/admin-console/internal/admin/observability"
	appsession "finitefield.org/admin-console/internal/admin/session"
)

type userContextKey struct{}

// RedirectQueryKey carries the page to return to after signing in.
const RedirectQueryKey = "redirect"

// ReasonQueryKey tells the login page why the user was sent there.
const ReasonQueryKey = "reason"

// User is the authenticated staff member.
type User struct {
	UID      string
	Username string
	Email    string
	Roles    []string
	Token    string
}

// Authenticator resolves a bearer token into a User.
type Authenticator interface {
	Authenticate(r *http.Request, token string) (*User, error)
}

// ErrUnauthorized is the fallback cause of a failed authentication.
var ErrUnauthorized = errors.New("unauthorized")

// Failure reasons reported by authenticators.
const (
	ReasonMissingToken = "missing_token"
	ReasonTokenInvalid = "token_invalid"
	ReasonTokenExpired = "token_expired"
)

// AuthError annotates an authentication failure with a reason code.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return e.Reason + ": " + e.Err.Error()
}

func (e *AuthError) Unwrap() error { return e.Err }

// NewAuthError wraps err with reason.
func NewAuthError(reason string, err error) error {
	return &AuthError{Reason: reason, Err: err}
}

// Auth admits requests whose session holds a signed-in user, or that present a
// bearer token accepted by authenticator (nil disables tokens). Others are sent
// to loginPath with the requested page in the redirect query.
func Auth(authenticator Authenticator, loginPath string) func(http.Handler) http.Handler {
	if loginPath == "" {
		loginPath = "/login"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := sessionUser(r.Context())
			if user == nil {
				var reason string
				user, reason = bearerUser(r, authenticator)
				if user == nil {
					redirectToLogin(w, r, loginPath, reason)
					return
				}
				rememberUser(r.Context(), user)
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userContextKey{}).(*User)
	return user, ok && user != nil
}

// ContextWithUser returns a child context carrying user.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// LoginRedirectURL builds the login location that returns to path with query
// once the user has signed in. A redirect key already in query is replaced.
func LoginRedirectURL(loginPath, path string, query url.Values) string {
	u, err := url.Parse(loginPath)
	if err != nil {
		return loginPath
	}
	q := u.Query()
	for key, values := range query {
		if key == RedirectQueryKey {
			continue
		}
		q[key] = append(q[key], values...)
	}
	if path != "" {
		q.Set(RedirectQueryKey, path)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func sessionUser(ctx context.Context) *User {
	sess, ok := SessionFromContext(ctx)
	if !ok {
		return nil
	}
	stored := sess.User()
	if stored == nil || strings.TrimSpace(stored.UID) == "" {
		return nil
	}
	return &User{
		UID:      stored.UID,
		Username: stored.Username,
		Email:    stored.Email,
		Roles:    append([]string(nil), stored.Roles...),
		Token:    sess.AccessToken(),
	}
}

// bearerUser authenticates the request's token. On failure it returns the
// reason code and drops any session the request carried.
func bearerUser(r *http.Request, authenticator Authenticator) (*User, string) {
	logger := observability.FromContext(r.Context())
	token := bearerToken(r)
	if token == "" || authenticator == nil {
		logger.Debug("auth failure", zap.String("reason", ReasonMissingToken))
		return nil, ReasonMissingToken
	}

	user, err := authenticator.Authenticate(r, token)
	if err == nil && user != nil {
		return user, ""
	}
	reason := ReasonTokenInvalid
	var authErr *AuthError
	if errors.As(err, &authErr) && authErr.Reason != "" {
		reason = authErr.Reason
	}
	if err == nil {
		err = ErrUnauthorized
	}
	logger.Info("auth failure", zap.String("reason", reason), zap.Error(err))
	if sess, ok := SessionFromContext(r.Context()); ok {
		sess.Destroy()
	}
	return nil, reason
}

// rememberUser stores a bearer-authenticated user in the session so later
// page loads need no token.
func rememberUser(ctx context.Context, user *User) {
	sess, ok := SessionFromContext(ctx)
	if !ok {
		return
	}
	sess.SetUser(&appsession.User{
		UID:      user.UID,
		Username: user.Username,
		Email:    user.Email,
		Roles:    append([]string(nil), user.Roles...),
	})
	sess.SetAccessToken(user.Token)
}

// bearerToken reads the Authorization header, then the cookies Firebase
// Hosting and the console use to carry ID tokens.
func bearerToken(r *http.Request) string {
	if token, ok := cutBearer(r.Header.Get("Authorization")); ok {
		return token
	}
	for _, name := range []string{"Authorization", "__session", "idToken"} {
		c, err := r.Cookie(name)
		if err != nil {
			continue
		}
		value := strings.TrimSpace(c.Value)
		if token, ok := cutBearer(value); ok {
			return token
		}
		if value != "" {
			return value
		}
	}
	return ""
}

func cutBearer(value string) (string, bool) {
	if len(value) < 7 || !strings.EqualFold(value[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(value[7:])
	return token, token != ""
}

func redirectToLogin(w http.ResponseWriter, r *http.Request, loginPath, reason string) {
	path, query := r.URL.Path, r.URL.Query()
	htmx := HTMXInfoFromContext(r.Context())
	if htmx.IsHTMX {
		// Fragments return to the page that requested them.
		if current, err := url.Parse(htmx.CurrentURL); err == nil && current.Path != "" {
			path, query = current.Path, current.Query()
		}
	}
	switch reason {
	case ReasonTokenExpired:
		query = withValue(query, ReasonQueryKey, "expired")
	case ReasonTokenInvalid:
		query = withValue(query, ReasonQueryKey, "signin_required")
	}
	target := LoginRedirectURL(loginPath, path, query)

	if !htmx.IsHTMX {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	if reason == ReasonTokenExpired {
		w.Header().Set("HX-Refresh", "true")
	} else {
		w.Header().Set("HX-Redirect", target)
	}
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}

func withValue(values url.Values, key, value string) url.Values {
	out := make(url.Values, len(values)+1)
	for k, v := range values {
		out[k] = append([]string(nil), v...)
	}
	out.Set(key, value)
	return out
}
