package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"finitefield.org/admin-console/internal/admin/authtoken"
	"finitefield.org/admin-console/internal/admin/config"
	"finitefield.org/admin-console/internal/admin/gateway"
	"finitefield.org/admin-console/internal/admin/httpserver"
	"finitefield.org/admin-console/internal/admin/httpserver/middleware"
	"finitefield.org/admin-console/internal/admin/inflight"
	"finitefield.org/admin-console/internal/admin/observability"
	appsession "finitefield.org/admin-console/internal/admin/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("admin server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions, err := appsession.NewManager(appsession.Config{
		HashKey:      []byte(cfg.Session.HashKey),
		BlockKey:     []byte(cfg.Session.BlockKey),
		CookieSecure: cfg.Session.Secure,
		Lifetime:     cfg.Session.Lifetime,
		IdleTimeout:  cfg.Session.IdleTimeout,
	})
	if err != nil {
		return fmt.Errorf("session manager: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := gateway.NewMetrics(cfg.Metrics.Namespace, registry)

	backend, bearer, err := buildGateway(ctx, cfg, logger)
	if err != nil {
		return err
	}

	guard, closeGuard := buildGuard(cfg, logger)
	defer closeGuard()

	serverCfg := httpserver.Config{
		Address:             cfg.HTTP.Addr,
		BasePath:            cfg.HTTP.BasePath,
		Environment:         cfg.Environment,
		Logger:              logger,
		SessionStore:        sessions,
		Gateway:             gateway.Instrument(backend, cfg.Gateway.Mode, metrics),
		GatewayTimeout:      cfg.Gateway.Timeout,
		Guard:               guard,
		Autofill:            cfg.AutofillMap(),
		RememberCookie:      cfg.Login.RememberCookie,
		BearerAuthenticator: bearer,
		CSRFCookieSecure:    cfg.Session.Secure,
	}
	if cfg.Metrics.Enabled {
		serverCfg.MetricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	}

	srv, err := httpserver.New(serverCfg)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Info("admin server listening",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("base_path", cfg.HTTP.BasePath),
		zap.String("gateway", cfg.Gateway.Mode),
		zap.Bool("metrics", cfg.Metrics.Enabled),
	)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("admin server stopped")
	return nil
}

// buildGateway returns the credential backend for the configured mode and,
// where the backend issues verifiable tokens, a bearer authenticator.
func buildGateway(ctx context.Context, cfg config.Config, logger *zap.Logger) (gateway.Authenticator, middleware.Authenticator, error) {
	httpClient := &http.Client{Timeout: cfg.Gateway.Timeout}

	switch cfg.Gateway.Mode {
	case config.GatewayLocal:
		issuer, err := authtoken.NewIssuer([]byte(cfg.Token.Secret),
			authtoken.WithIssuer(cfg.Token.Issuer),
			authtoken.WithTTL(cfg.Token.TTL),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("token issuer: %w", err)
		}
		users := make([]gateway.LocalUser, 0, len(cfg.Gateway.Local.Users))
		for _, u := range cfg.Gateway.Local.Users {
			users = append(users, gateway.LocalUser{
				Username:     u.Username,
				PasswordHash: u.PasswordHash,
				Email:        u.Email,
				Roles:        u.Roles,
			})
		}
		auth, err := gateway.NewLocalAuthenticator(users, issuer)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("local gateway enabled", zap.Int("users", len(users)))
		return auth, middleware.NewTokenAuthenticator(issuer), nil

	case config.GatewayHTTP:
		auth, err := gateway.NewHTTPAuthenticator(cfg.Gateway.HTTP.BaseURL, cfg.Gateway.HTTP.LoginPath, httpClient)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("http gateway enabled", zap.String("base_url", cfg.Gateway.HTTP.BaseURL))
		return auth, nil, nil

	case config.GatewayFirebase:
		app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Gateway.Firebase.ProjectID})
		if err != nil {
			return nil, nil, fmt.Errorf("initialise firebase app: %w", err)
		}
		client, err := app.Auth(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("initialise firebase auth client: %w", err)
		}
		auth, err := gateway.NewFirebaseAuthenticator(cfg.Gateway.Firebase.Endpoint, cfg.Gateway.Firebase.APIKey, httpClient, client)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("firebase gateway enabled", zap.String("project", cfg.Gateway.Firebase.ProjectID))
		return auth, middleware.NewFirebaseAuthenticator(client), nil

	case config.GatewayKratos:
		auth, err := gateway.NewKratosAuthenticator(cfg.Gateway.Kratos.PublicURL, httpClient, cfg.Gateway.Kratos.DefaultRoles)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("kratos gateway enabled", zap.String("public_url", cfg.Gateway.Kratos.PublicURL))
		return auth, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown gateway mode %q", cfg.Gateway.Mode)
	}
}

func buildGuard(cfg config.Config, logger *zap.Logger) (inflight.Guard, func()) {
	if cfg.Redis.Addr == "" {
		return inflight.NewMemory(cfg.Gateway.Timeout), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	logger.Info("redis submission guard enabled", zap.String("addr", cfg.Redis.Addr))
	return inflight.NewRedis(client, cfg.Redis.Prefix, cfg.Gateway.Timeout, logger), func() {
		if err := client.Close(); err != nil {
			logger.Warn("redis close failed", zap.Error(err))
		}
	}
}
