package middleware

import (
	"context"
	"net/http"
	"path"
	"strings"
)

type requestInfoKey struct{}

// RequestInfo is the deployment context templates render against.
type RequestInfo struct {
	BasePath    string
	Environment string
	Host        string
}

// RequestInfoMiddleware records the console base path, the environment label
// and the serving host on the context.
func RequestInfoMiddleware(basePath, environment string) func(http.Handler) http.Handler {
	base := cleanBase(basePath)
	env := environmentLabel(environment)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := RequestInfo{BasePath: base, Environment: env, Host: r.Host}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info)))
		})
	}
}

// RequestInfoFromContext returns the recorded request info.
func RequestInfoFromContext(ctx context.Context) (RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info, ok
}

// BasePathFromContext returns the console base path, "/" when unset.
func BasePathFromContext(ctx context.Context) string {
	if info, ok := RequestInfoFromContext(ctx); ok {
		return info.BasePath
	}
	return "/"
}

// EnvironmentFromContext returns the environment label, "Development" when unset.
func EnvironmentFromContext(ctx context.Context) string {
	if info, ok := RequestInfoFromContext(ctx); ok {
		return info.Environment
	}
	return "Development"
}

func environmentLabel(raw string) string {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "", "local", "dev", "development":
		return "Development"
	case "stg", "staging":
		return "Staging"
	case "prod", "production":
		return "Production"
	}
	return raw
}

func cleanBase(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return "/"
	}
	return path.Clean("/" + base)
}
