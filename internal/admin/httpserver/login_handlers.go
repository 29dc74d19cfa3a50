package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"finitefield.org/admin-console/internal/admin/gateway"
	custommw "finitefield.org/admin-console/internal/admin/httpserver/middleware"
	"finitefield.org/admin-console/internal/admin/inflight"
	"finitefield.org/admin-console/internal/admin/login"
	"finitefield.org/admin-console/internal/admin/observability"
	"finitefield.org/admin-console/internal/admin/templates/auth"
)

const (
	returnQueryField = "return_query"

	msgInvalidCredentials = "Invalid username or password."
	msgUnavailable        = "Sign-in is temporarily unavailable. Please try again."
	msgInProgress         = "A sign-in attempt is already in progress."
	msgBadForm            = "The form could not be submitted. Please try again."
	msgLoggedOut          = "You have signed out."
	msgExpired            = "Your session has expired. Please sign in again."
	msgLoginRequired      = "Please sign in to continue."
)

type loginHandlers struct {
	gateway        gateway.Authenticator
	guard          inflight.Guard
	timeout        time.Duration
	autofill       login.Autofill
	rememberCookie string
	secureCookies  bool
	basePath       string
	loginPath      string
	routes         auth.Routes
	environment    string
	social         *login.SocialSignIn
	now            func() time.Time
}

type loginHandlerOptions struct {
	Gateway        gateway.Authenticator
	Guard          inflight.Guard
	Timeout        time.Duration
	Autofill       login.Autofill
	RememberCookie string
	SecureCookies  bool
	BasePath       string
	LoginPath      string
	StaticPath     string
	Environment    string
	Clock          func() time.Time
}

func newLoginHandlers(opts loginHandlerOptions) *loginHandlers {
	if opts.Gateway == nil {
		panic("login: gateway is required")
	}
	guard := opts.Guard
	if guard == nil {
		guard = inflight.NewMemory(opts.Timeout)
	}
	rememberCookie := opts.RememberCookie
	if rememberCookie == "" {
		rememberCookie = login.RememberCookieName
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	basePath := normalizeBase(opts.BasePath)
	loginPath := opts.LoginPath
	if strings.TrimSpace(loginPath) == "" {
		loginPath = joinPath(basePath, "/login")
	}
	return &loginHandlers{
		gateway:        opts.Gateway,
		guard:          guard,
		timeout:        opts.Timeout,
		autofill:       opts.Autofill,
		rememberCookie: rememberCookie,
		secureCookies:  opts.SecureCookies,
		basePath:       basePath,
		loginPath:      loginPath,
		environment:    opts.Environment,
		routes: auth.Routes{
			Login:       loginPath,
			Keyup:       loginPath + "/keyup",
			Blur:        loginPath + "/blur",
			Visibility:  loginPath + "/visibility",
			Social:      loginPath + "/social",
			SocialClose: loginPath + "/social/close",
			Static:      opts.StaticPath,
		},
		social: login.NewSocialSignIn(),
		now:    now,
	}
}

func (h *loginHandlers) mount(r chi.Router) {
	r.Get("/", h.LoginForm)
	r.Post("/", h.LoginSubmit)
	r.Get("/social", h.OpenSocialDialog)

	// Fragment endpoints only answer the page's own htmx calls.
	r.Group(func(r chi.Router) {
		r.Use(custommw.RequireHTMX())
		r.Post("/keyup", h.PasswordKeyup)
		r.Post("/blur", h.PasswordBlur)
		r.Post("/visibility", h.TogglePasswordVisibility)
		r.Post("/social/close", h.CloseSocialDialog)
		r.Post("/social/{provider}", h.SocialProvider)
	})
}

// LoginForm renders a freshly mounted form. Signed-in users go straight to
// their redirect target unless force is set.
func (h *loginHandlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	if h.isAuthenticated(r) && !forceLogin(r) {
		target := login.RedirectTargetFromQuery(r.URL.Query())
		http.Redirect(w, r, h.resolveTarget(target.Path, target.OtherQuery), http.StatusFound)
		return
	}

	query := pageQuery(r.URL.Query())
	ctrl, _ := h.newController(w, r)
	ctrl.Mount(login.MountOptions{
		Query:              query,
		RememberedUsername: h.rememberedUsername(r),
	})

	data := h.pageData(r, ctrl.Render(), query)
	data.Message = messageForQuery(r.URL.Query())
	h.render(w, r, auth.LoginPage(data), http.StatusOK)
}

// LoginSubmit validates the posted form and signs the user in.
func (h *loginHandlers) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	ctrl, router, query, ok := h.resume(w, r)
	if !ok {
		return
	}
	h.submit(w, r, ctrl, router, query, ctrl.Submit)
}

// PasswordKeyup refreshes the caps lock hint; Enter submits the form.
func (h *loginHandlers) PasswordKeyup(w http.ResponseWriter, r *http.Request) {
	ctrl, router, query, ok := h.resume(w, r)
	if !ok {
		return
	}
	ev := login.KeyEvent{
		Key:   r.PostFormValue("key"),
		Shift: parseFlag(r.PostFormValue("shift")),
	}
	if ev.Key == "Enter" {
		h.submit(w, r, ctrl, router, query, func(ctx context.Context) error {
			return ctrl.PasswordKeyup(ctx, ev)
		})
		return
	}
	if err := ctrl.PasswordKeyup(r.Context(), ev); err != nil {
		observability.FromContext(r.Context()).Warn("password keyup failed", zap.Error(err))
	}
	h.render(w, r, auth.CapsLockHint(h.pageData(r, ctrl.Render(), query)), http.StatusOK)
}

// PasswordBlur clears the caps lock hint.
func (h *loginHandlers) PasswordBlur(w http.ResponseWriter, r *http.Request) {
	ctrl, _, query, ok := h.resume(w, r)
	if !ok {
		return
	}
	ctrl.PasswordBlur()
	h.render(w, r, auth.CapsLockHint(h.pageData(r, ctrl.Render(), query)), http.StatusOK)
}

// TogglePasswordVisibility flips the password mask and refocuses the input.
func (h *loginHandlers) TogglePasswordVisibility(w http.ResponseWriter, r *http.Request) {
	ctrl, _, query, ok := h.resume(w, r)
	if !ok {
		return
	}
	ctrl.TogglePasswordVisibility()
	h.render(w, r, auth.PasswordField(h.pageData(r, ctrl.Render(), query)), http.StatusOK)
}

// OpenSocialDialog shows the third-party sign-in panel.
func (h *loginHandlers) OpenSocialDialog(w http.ResponseWriter, r *http.Request) {
	ctrl, _, query, ok := h.resume(w, r)
	if !ok {
		return
	}
	ctrl.OpenSocialDialog()
	h.render(w, r, auth.SocialDialog(h.pageData(r, ctrl.Render(), query)), http.StatusOK)
}

// CloseSocialDialog hides the third-party sign-in panel.
func (h *loginHandlers) CloseSocialDialog(w http.ResponseWriter, r *http.Request) {
	ctrl, _, query, ok := h.resume(w, r)
	if !ok {
		return
	}
	ctrl.CloseSocialDialog()
	h.render(w, r, auth.SocialDialog(h.pageData(r, ctrl.Render(), query)), http.StatusOK)
}

// SocialProvider acknowledges a provider click without contacting it.
func (h *loginHandlers) SocialProvider(w http.ResponseWriter, r *http.Request) {
	notice, err := h.social.Acknowledge(chi.URLParam(r, "provider"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	observability.FromContext(r.Context()).Debug("social sign-in acknowledged", zap.String("provider", notice.Provider.ID))
	h.render(w, r, auth.SocialNotice(notice.Message), http.StatusOK)
}

// Logout clears the session and returns to the login page.
func (h *loginHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := custommw.SessionFromContext(r.Context()); ok && sess != nil {
		sess.Destroy()
	}
	custommw.Redirect(w, r, h.loginURLWithParams(map[string]string{"status": "logged_out"}))
}

type submitFunc func(ctx context.Context) error

func (h *loginHandlers) submit(w http.ResponseWriter, r *http.Request, ctrl *login.Controller, router *responseRouter, query url.Values, run submitFunc) {
	logger := observability.FromContext(r.Context())
	sess, _ := custommw.SessionFromContext(r.Context())

	key := ""
	if sess != nil {
		key = sess.ID()
	}
	release, err := h.guard.Acquire(r.Context(), key)
	if err != nil {
		if !errors.Is(err, inflight.ErrBusy) {
			logger.Error("login guard failed", zap.Error(err))
		}
		h.renderFailure(w, r, ctrl, query, http.StatusConflict, msgInProgress)
		return
	}
	defer release()

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	err = run(ctx)
	var (
		validationErr *login.ValidationError
		authFailure   *login.AuthenticationFailure
	)
	switch {
	case err == nil:
	case errors.As(err, &validationErr):
		h.renderFailure(w, r, ctrl, query, http.StatusUnprocessableEntity, "")
		return
	case errors.Is(err, login.ErrSubmitInProgress):
		h.renderFailure(w, r, ctrl, query, http.StatusConflict, msgInProgress)
		return
	case errors.As(err, &authFailure) && errors.Is(err, gateway.ErrInvalidCredentials):
		h.renderFailure(w, r, ctrl, query, http.StatusUnauthorized, msgInvalidCredentials)
		return
	default:
		logger.Warn("login backend failure", zap.Error(err))
		h.renderFailure(w, r, ctrl, query, http.StatusBadGateway, msgUnavailable)
		return
	}

	if sess != nil {
		if err := sess.Rotate(h.now()); err != nil {
			logger.Error("session rotate failed", zap.Error(err))
			h.renderFailure(w, r, ctrl, query, http.StatusInternalServerError, msgUnavailable)
			return
		}
	}
	custommw.Redirect(w, r, router.target)
}

func (h *loginHandlers) renderFailure(w http.ResponseWriter, r *http.Request, ctrl *login.Controller, query url.Values, status int, message string) {
	data := h.pageData(r, ctrl.Render(), query)
	data.Error = message
	if custommw.IsHTMXRequest(r.Context()) {
		custommw.Retarget(w, "#login-form", "outerHTML")
		h.render(w, r, auth.LoginForm(data), status)
		return
	}
	h.render(w, r, auth.LoginPage(data), status)
}

// resume rebuilds the controller for a follow-up interaction from the values
// the form posted back.
func (h *loginHandlers) resume(w http.ResponseWriter, r *http.Request) (*login.Controller, *responseRouter, url.Values, bool) {
	if err := r.ParseForm(); err != nil {
		ctrl, _ := h.newController(w, r)
		ctrl.Mount(login.MountOptions{})
		data := h.pageData(r, ctrl.Render(), nil)
		data.Error = msgBadForm
		h.render(w, r, auth.LoginPage(data), http.StatusBadRequest)
		return nil, nil, nil, false
	}

	query := pageQuery(r.URL.Query())
	if raw, ok := r.Form[returnQueryField]; ok && len(raw) > 0 {
		if parsed, err := url.ParseQuery(raw[0]); err == nil {
			query = parsed
		}
	}

	ctrl, router := h.newController(w, r)
	ctrl.RouteChanged(query)
	ctrl.Resume(
		login.Credentials{
			Username: r.FormValue("username"),
			Password: r.FormValue("password"),
		},
		login.FormState{
			PasswordVisibility: login.ParseVisibility(r.FormValue("password_visibility")),
			CapsLockActive:     parseFlag(r.FormValue("caps_lock")),
			DialogOpen:         parseFlag(r.FormValue("dialog")),
		},
	)
	return ctrl, router, query, true
}

func (h *loginHandlers) newController(w http.ResponseWriter, r *http.Request) (*login.Controller, *responseRouter) {
	sess, _ := custommw.SessionFromContext(r.Context())
	router := &responseRouter{resolve: h.resolveTarget}
	ctrl := login.New(
		login.Dependencies{
			Gateway: gateway.NewSessionGateway(h.gateway, sess),
			Router:  router,
			Cookies: &responseCookies{w: w, secure: h.secureCookies || r.TLS != nil},
		},
		login.WithHostname(r.Host),
		login.WithAutofill(h.autofill),
		login.WithRememberCookie(h.rememberCookie),
		login.WithLogger(observability.FromContext(r.Context())),
	)
	return ctrl, router
}

func (h *loginHandlers) pageData(r *http.Request, view login.View, query url.Values) auth.LoginPageData {
	data := auth.NewLoginPageData(view, h.routes, custommw.CSRFTokenFromContext(r.Context()), query)
	data.Environment = custommw.EnvironmentFromContext(r.Context())
	return data
}

func (h *loginHandlers) render(w http.ResponseWriter, r *http.Request, component templ.Component, status int) {
	templ.Handler(component, templ.WithStatus(status)).ServeHTTP(w, r)
}

func (h *loginHandlers) rememberedUsername(r *http.Request) string {
	c, err := r.Cookie(h.rememberCookie)
	if err != nil {
		return ""
	}
	value, err := url.QueryUnescape(c.Value)
	if err != nil {
		return ""
	}
	return value
}

func (h *loginHandlers) isAuthenticated(r *http.Request) bool {
	sess, ok := custommw.SessionFromContext(r.Context())
	if !ok || sess == nil {
		return false
	}
	user := sess.User()
	return user != nil && strings.TrimSpace(user.UID) != ""
}

// resolveTarget turns a redirect path plus the remaining query into a local
// URL under the base path, falling back to the console home.
func (h *loginHandlers) resolveTarget(raw string, otherQuery url.Values) string {
	target := h.normalizeNext(raw)
	if target == "" {
		target = h.basePath
	}
	if len(otherQuery) == 0 {
		return target
	}
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	for key, values := range otherQuery {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (h *loginHandlers) normalizeNext(raw string) string {
	sanitized := sanitizeNextTarget(h.basePath, raw)
	if sanitized == "" {
		return ""
	}
	if h.loginPath != "" && samePath(pathOnly(sanitized), h.loginPath) {
		return ""
	}
	return sanitized
}

func (h *loginHandlers) loginURLWithParams(params map[string]string) string {
	parsed, err := url.Parse(h.loginPath)
	if err != nil {
		return h.loginPath
	}
	q := parsed.Query()
	for key, val := range params {
		if strings.TrimSpace(val) == "" {
			continue
		}
		q.Set(key, val)
	}
	parsed.RawQuery = q.Encode()
	return parsed.String()
}

// responseRouter records where the controller navigated.
type responseRouter struct {
	resolve func(string, url.Values) string
	target  string
}

func (n *responseRouter) Navigate(path string, query url.Values) {
	n.target = n.resolve(path, query)
}

// responseCookies writes controller cookies onto the response.
type responseCookies struct {
	w      http.ResponseWriter
	secure bool
}

func (c *responseCookies) Set(key, value string) {
	http.SetCookie(c.w, &http.Cookie{
		Name:     key,
		Value:    url.QueryEscape(value),
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func messageForQuery(q url.Values) string {
	if q.Get("status") == "logged_out" {
		return msgLoggedOut
	}
	switch q.Get(custommw.ReasonQueryKey) {
	case "expired":
		return msgExpired
	case "signin_required":
		return msgLoginRequired
	default:
		return ""
	}
}

// pageQuery drops the keys the login page consumes itself so they do not
// follow the user to the redirect target.
func pageQuery(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for key, values := range q {
		switch key {
		case custommw.ReasonQueryKey, "status", "force":
			continue
		}
		out[key] = values
	}
	return out
}

func parseFlag(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "on", "yes":
		return true
	default:
		return false
	}
}

func forceLogin(r *http.Request) bool {
	if r == nil || r.URL == nil {
		return false
	}
	return parseFlag(r.URL.Query().Get("force"))
}

func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	trim := func(p string) string {
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		for len(p) > 1 && strings.HasSuffix(p, "/") {
			p = strings.TrimSuffix(p, "/")
		}
		return p
	}
	return trim(a) == trim(b)
}

func sanitizeNextTarget(basePath, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if parsed.Scheme != "" || parsed.Host != "" {
		return ""
	}

	pathValue := parsed.Path
	if pathValue == "" {
		pathValue = "/"
	}

	unescaped, err := url.PathUnescape(pathValue)
	if err != nil {
		return ""
	}
	if strings.Contains(unescaped, "\\") {
		return ""
	}

	cleaned := path.Clean(unescaped)
	if !strings.HasPrefix(cleaned, "/") {
		cleaned = "/" + cleaned
	}
	if strings.HasPrefix(cleaned, "//") {
		return ""
	}

	normalisedBase := normalizeBase(basePath)
	if normalisedBase != "/" && !hasSafePrefix(cleaned, normalisedBase) {
		return ""
	}

	target := cleaned
	if parsed.RawQuery != "" {
		target += "?" + parsed.RawQuery
	}
	if parsed.Fragment != "" {
		target += "#" + parsed.Fragment
	}
	return target
}

func normalizeBase(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return "/"
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	if len(base) > 1 && strings.HasSuffix(base, "/") {
		base = strings.TrimRight(base, "/")
	}
	return base
}

func hasSafePrefix(pathValue, base string) bool {
	if base == "/" {
		return strings.HasPrefix(pathValue, "/")
	}
	if !strings.HasPrefix(pathValue, base) {
		return false
	}
	if len(pathValue) == len(base) {
		return true
	}
	return pathValue[len(base)] == '/'
}

func pathOnly(raw string) string {
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return parsed.Path
}

func joinPath(base, suffix string) string {
	if base == "/" {
		return suffix
	}
	return strings.TrimRight(base, "/") + suffix
}

var (
	_ login.Router      = (*responseRouter)(nil)
	_ login.CookieStore = (*responseCookies)(nil)
)
