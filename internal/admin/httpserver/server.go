package httpserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"finitefield.org/admin-console/internal/admin/gateway"
	custommw "finitefield.org/admin-console/internal/admin/httpserver/middleware"
	"finitefield.org/admin-console/internal/admin/httpserver/ui"
	"finitefield.org/admin-console/internal/admin/inflight"
	"finitefield.org/admin-console/internal/admin/login"
	"finitefield.org/admin-console/internal/admin/observability"
	"finitefield.org/admin-console/internal/admin/rbac"
	"finitefield.org/admin-console/public"
)

const staticPrefix = "/public/static"

// Config holds runtime options for the admin HTTP server.
type Config struct {
	Address     string
	BasePath    string
	LoginPath   string
	Environment string
	Logger      *zap.Logger

	SessionStore   custommw.SessionStore
	Gateway        gateway.Authenticator
	GatewayTimeout time.Duration
	Guard          inflight.Guard
	Autofill       login.Autofill
	RememberCookie string
	// BearerAuthenticator additionally admits API-style requests carrying a
	// token; nil restricts access to signed-in sessions.
	BearerAuthenticator custommw.Authenticator

	CSRFCookieName   string
	CSRFCookiePath   string
	CSRFCookieSecure bool
	CSRFHeaderName   string

	// MetricsHandler is served at /metrics when set.
	MetricsHandler http.Handler
	Clock          func() time.Time
}

// New constructs the HTTP server with middleware stack and embedded assets.
func New(cfg Config) (*http.Server, error) {
	handler, err := NewHandler(cfg)
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:         cfg.Address,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, nil
}

// NewHandler builds the routed handler without a listener.
func NewHandler(cfg Config) (http.Handler, error) {
	if cfg.SessionStore == nil {
		return nil, fmt.Errorf("httpserver: session store is required")
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("httpserver: gateway is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(observability.RequestLogger(logger))
	router.Use(observability.Recoverer)
	router.Use(chimw.Timeout(60 * time.Second))

	assets, err := public.Handler()
	if err != nil {
		return nil, fmt.Errorf("embed static: %w", err)
	}
	router.Handle(staticPrefix+"/*", http.StripPrefix(staticPrefix+"/", assets))

	if cfg.MetricsHandler != nil {
		router.Handle("/metrics", cfg.MetricsHandler)
	}
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	basePath := normalizeBasePath(cfg.BasePath)
	loginPath := resolveLoginPath(basePath, cfg.LoginPath)

	csrfCfg := custommw.CSRFConfig{
		CookieName: cfg.CSRFCookieName,
		CookiePath: firstNonEmpty(cfg.CSRFCookiePath, basePath),
		HeaderName: cfg.CSRFHeaderName,
		Secure:     cfg.CSRFCookieSecure,
	}

	mountAdminRoutes(router, basePath, routeOptions{
		SessionStore:  cfg.SessionStore,
		Authenticator: cfg.BearerAuthenticator,
		LoginPath:     loginPath,
		Environment:   cfg.Environment,
		CSRF:          csrfCfg,
		Login: newLoginHandlers(loginHandlerOptions{
			Gateway:        cfg.Gateway,
			Guard:          cfg.Guard,
			Timeout:        cfg.GatewayTimeout,
			Autofill:       cfg.Autofill,
			RememberCookie: cfg.RememberCookie,
			SecureCookies:  cfg.CSRFCookieSecure,
			BasePath:       basePath,
			LoginPath:      loginPath,
			StaticPath:     staticPrefix,
			Environment:    cfg.Environment,
			Clock:          cfg.Clock,
		}),
		UI: ui.NewHandlers(ui.Dependencies{StaticPath: staticPrefix, Clock: cfg.Clock}),
	})

	return router, nil
}

type routeOptions struct {
	SessionStore  custommw.SessionStore
	Authenticator custommw.Authenticator
	LoginPath     string
	Environment   string
	CSRF          custommw.CSRFConfig
	Login         *loginHandlers
	UI            *ui.Handlers
}

func mountAdminRoutes(router chi.Router, base string, opts routeOptions) {
	protected := func(r chi.Router) chi.Router {
		return r.With(
			custommw.Auth(opts.Authenticator, opts.LoginPath),
			custommw.RequireCapability(rbac.CapDashboardView),
		)
	}

	router.Group(func(r chi.Router) {
		r.Use(custommw.HTMX())
		r.Use(custommw.NoStore())
		r.Use(custommw.Session(opts.SessionStore))
		r.Use(custommw.RequestInfoMiddleware(base, opts.Environment))
		r.Use(custommw.CSRF(opts.CSRF))

		r.Route(opts.LoginPath, opts.Login.mount)
		r.Post(joinPath(base, "/logout"), opts.Login.Logout)
		if base != "/" {
			protected(r).Get(base, opts.UI.Dashboard)
		}
		protected(r).Get(joinPath(base, "/"), opts.UI.Dashboard)
	})
}

func normalizeBasePath(path string) string {
	p := strings.TrimSpace(path)
	if p == "" {
		return "/admin"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	if p == "" {
		return "/"
	}
	return p
}

func resolveLoginPath(base string, override string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	if base == "/" {
		return "/login"
	}
	return base + "/login"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
