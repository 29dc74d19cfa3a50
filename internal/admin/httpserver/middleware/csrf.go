package middleware

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"time"

	"go.uber.org/zap"

	"finitefield.org/admin-console/internal/admin/observability"
)

type csrfContextKey struct{}

// CSRFFormField is the form field accepted in place of the header.
const CSRFFormField = "csrf_token"

// CSRFConfig controls where the token travels. Zero values default to the
// "admin_csrf" cookie on "/", the X-CSRF-Token header and a 24h cookie age.
type CSRFConfig struct {
	CookieName string
	CookiePath string
	HeaderName string
	FormField  string
	MaxAge     time.Duration
	Secure     bool
}

type csrfPolicy struct {
	CSRFConfig
}

func newCSRFPolicy(cfg CSRFConfig) csrfPolicy {
	if cfg.CookieName == "" {
		cfg.CookieName = "admin_csrf"
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = "X-CSRF-Token"
	}
	if cfg.FormField == "" {
		cfg.FormField = CSRFFormField
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	return csrfPolicy{cfg}
}

// CSRF rejects state-changing requests that do not echo the request's token.
// With the Session middleware upstream the token lives in the session;
// otherwise it is a double-submit cookie.
func CSRF(cfg CSRFConfig) func(http.Handler) http.Handler {
	policy := newCSRFPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := policy.token(w, r)
			if err != nil {
				observability.FromContext(r.Context()).Error("csrf token", zap.Error(err))
				http.Error(w, "csrf token error", http.StatusInternalServerError)
				return
			}

			if !safeMethod(r.Method) && !policy.matches(r, token) {
				observability.FromContext(r.Context()).Info("csrf rejected",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
				)
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfContextKey{}, token)))
		})
	}
}

// CSRFTokenFromContext returns the token to embed in forms. After a session
// rotation the session's new token wins over the one the request arrived with.
func CSRFTokenFromContext(ctx context.Context) string {
	if sess, ok := SessionFromContext(ctx); ok && sess.CSRFToken() != "" {
		return sess.CSRFToken()
	}
	token, _ := ctx.Value(csrfContextKey{}).(string)
	return token
}

func (p csrfPolicy) token(w http.ResponseWriter, r *http.Request) (string, error) {
	if sess, ok := SessionFromContext(r.Context()); ok {
		return sess.EnsureCSRFToken()
	}
	if c, err := r.Cookie(p.CookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	http.SetCookie(w, &http.Cookie{
		Name:     p.CookieName,
		Value:    token,
		Path:     p.CookiePath,
		HttpOnly: true,
		Secure:   p.Secure || r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(p.MaxAge.Seconds()),
	})
	return token, nil
}

func (p csrfPolicy) matches(r *http.Request, token string) bool {
	submitted := r.Header.Get(p.HeaderName)
	if submitted == "" {
		submitted = r.PostFormValue(p.FormField)
	}
	return submitted != "" && subtle.ConstantTimeCompare([]byte(submitted), []byte(token)) == 1
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
