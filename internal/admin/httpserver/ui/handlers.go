package ui

import (
	"net/http"
	"time"

	"github.com/a-h/templ"

	custommw "finitefield.org/admin-console/internal/admin/httpserver/middleware"
	"finitefield.org/admin-console/internal/admin/observability"
	"finitefield.org/admin-console/internal/admin/templates/dashboard"
)

// Dependencies collects collaborators required by the UI handlers.
type Dependencies struct {
	StaticPath string
	Clock      func() time.Time
}

// Handlers exposes HTTP handlers for console pages.
type Handlers struct {
	static string
	now    func() time.Time
}

// NewHandlers wires the UI handler set.
func NewHandlers(deps Dependencies) *Handlers {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &Handlers{static: deps.StaticPath, now: now}
}

// Dashboard renders the landing page shown after sign-in.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := custommw.UserFromContext(r.Context())
	if !ok || user == nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	payload := dashboard.PageData{
		Username: firstNonEmpty(user.Username, user.Email, user.UID),
		Email:    user.Email,
		Roles:    append([]string(nil), user.Roles...),
		Now:      h.now(),
		Static:   h.static,
	}
	if sess, ok := custommw.SessionFromContext(r.Context()); ok {
		payload.SignedIn = sess.CreatedAt()
		payload.LastActive = sess.LastActive()
		payload.ExpiresAt = sess.ExpiresAt()
	}

	observability.FromContext(r.Context()).Debug("dashboard rendered")
	templ.Handler(dashboard.Page(payload)).ServeHTTP(w, r)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
