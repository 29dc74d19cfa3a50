package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"finitefield.org/admin-console/internal/admin/observability"
	"finitefield.org/admin-console/internal/admin/rbac"
)

// RequireCapability answers 403 unless the authenticated user holds capability.
// It must run after Auth.
func RequireCapability(capability rbac.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if ok && rbac.Grant(user.Roles).Has(capability) {
				next.ServeHTTP(w, r)
				return
			}

			uid := ""
			if ok {
				uid = user.UID
			}
			observability.FromContext(r.Context()).Info("capability denied",
				zap.String("capability", string(capability)),
				observability.UID(uid),
			)
			if IsHTMXRequest(r.Context()) {
				w.Header().Set("HX-Refresh", "true")
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}
