package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"finitefield.org/admin-console/internal/admin/config"
	"finitefield.org/admin-console/internal/admin/login"
)

const testHashKey = "0123456789abcdef0123456789abcdef"

func baseEnv() map[string]string {
	return map[string]string{
		"ADMIN_SESSION_HASH_KEY": testHashKey,
		"ADMIN_GATEWAY_MODE":     "http",
		"ADMIN_GATEWAY_HTTP_URL": "https://auth.internal.example.com",
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "admin.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(config.WithoutSystemEnv(), config.WithEnvMap(baseEnv()))
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.HTTP.Addr)
	require.Equal(t, "/admin", cfg.HTTP.BasePath)
	require.Equal(t, "local", cfg.Environment)
	require.Equal(t, config.GatewayHTTP, cfg.Gateway.Mode)
	require.Equal(t, 15*time.Second, cfg.Gateway.Timeout)
	require.Equal(t, 12*time.Hour, cfg.Session.Lifetime)
	require.Equal(t, "userName", cfg.Login.RememberCookie)
	require.False(t, cfg.Metrics.Enabled)
	require.Nil(t, cfg.AutofillMap())
}

func TestLoadFileThenEnv(t *testing.T) {
	t.Parallel()

	path := writeFile(t, `
http:
  addr: ":9090"
  base_path: "/console/"
environment: Staging
session:
  hash_key: "`+testHashKey+`"
  lifetime: 2h
gateway:
  mode: local
  local:
    users:
      - username: admin
        password_hash: "$2a$10$abcdefghijklmnopqrstuuDXkTxQ8H3C1.Rq7fNd8rxXHtl0zYB6K"
        email: admin@example.com
        roles: [admin]
token:
  secret: file-secret
autofill:
  - hostname: Demo.Example.com
    username: demo
    password: demo-pass
`)

	cfg, err := config.Load(
		config.WithoutSystemEnv(),
		config.WithFile(path),
		config.WithEnvMap(map[string]string{
			"ADMIN_HTTP_ADDR":       ":7070",
			"ADMIN_METRICS_ENABLED": "true",
			"ADMIN_TOKEN_TTL":       "30m",
		}),
	)
	require.NoError(t, err)

	require.Equal(t, ":7070", cfg.HTTP.Addr)
	require.Equal(t, "/console", cfg.HTTP.BasePath)
	require.Equal(t, "staging", cfg.Environment)
	require.Equal(t, 2*time.Hour, cfg.Session.Lifetime)
	require.Equal(t, config.GatewayLocal, cfg.Gateway.Mode)
	require.Len(t, cfg.Gateway.Local.Users, 1)
	require.Equal(t, []string{"admin"}, cfg.Gateway.Local.Users[0].Roles)
	require.Equal(t, "file-secret", cfg.Token.Secret)
	require.Equal(t, 30*time.Minute, cfg.Token.TTL)
	require.True(t, cfg.Metrics.Enabled)

	creds, ok := cfg.AutofillMap().Lookup("demo.example.com:443")
	require.True(t, ok)
	require.Equal(t, login.Credentials{Username: "demo", Password: "demo-pass"}, creds)
}

func TestLoadConfigFileFromEnv(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "metrics:\n  enabled: true\n  namespace: console\n")
	env := baseEnv()
	env["ADMIN_CONFIG_FILE"] = path

	cfg, err := config.Load(config.WithoutSystemEnv(), config.WithEnvMap(env))
	require.NoError(t, err)
	require.True(t, cfg.Metrics.Enabled)
	require.Equal(t, "console", cfg.Metrics.Namespace)
}

func TestLoadRejectsUnknownYAMLFields(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "gateway:\n  mood: local\n")
	_, err := config.Load(config.WithoutSystemEnv(), config.WithFile(path), config.WithEnvMap(baseEnv()))
	require.ErrorContains(t, err, "mood")
}

func TestLoadValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		env    map[string]string
		fields []string
	}{
		{
			name:   "missing hash key",
			env:    map[string]string{"ADMIN_GATEWAY_MODE": "http", "ADMIN_GATEWAY_HTTP_URL": "https://auth.example.com"},
			fields: []string{"Session.HashKey"},
		},
		{
			name:   "unknown gateway mode",
			env:    map[string]string{"ADMIN_SESSION_HASH_KEY": testHashKey, "ADMIN_GATEWAY_MODE": "ldap"},
			fields: []string{"Gateway.Mode"},
		},
		{
			name:   "local mode without users or secret",
			env:    map[string]string{"ADMIN_SESSION_HASH_KEY": testHashKey},
			fields: []string{"Gateway.Local.Users", "Token.Secret"},
		},
		{
			name:   "firebase mode without project",
			env:    map[string]string{"ADMIN_SESSION_HASH_KEY": testHashKey, "ADMIN_GATEWAY_MODE": "firebase"},
			fields: []string{"Gateway.Firebase.APIKey", "Gateway.Firebase.ProjectID"},
		},
		{
			name:   "kratos mode without url",
			env:    map[string]string{"ADMIN_SESSION_HASH_KEY": testHashKey, "ADMIN_GATEWAY_MODE": "kratos"},
			fields: []string{"Gateway.Kratos.PublicURL"},
		},
		{
			name: "bad block key",
			env: map[string]string{
				"ADMIN_SESSION_HASH_KEY":  testHashKey,
				"ADMIN_SESSION_BLOCK_KEY": "short",
				"ADMIN_GATEWAY_MODE":      "kratos",
				"ADMIN_KRATOS_PUBLIC_URL": "http://kratos:4433",
			},
			fields: []string{"Session.BlockKey"},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.Load(config.WithoutSystemEnv(), config.WithEnvMap(tc.env))
			var verr *config.ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			require.Equal(t, tc.fields, verr.Fields())
		})
	}
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	t.Parallel()

	env := baseEnv()
	env["ADMIN_SESSION_SECURE"] = "sometimes"
	env["ADMIN_GATEWAY_TIMEOUT"] = "soon"

	_, err := config.Load(config.WithoutSystemEnv(), config.WithEnvMap(env))
	require.ErrorContains(t, err, "ADMIN_SESSION_SECURE")
	require.ErrorContains(t, err, "ADMIN_GATEWAY_TIMEOUT")
}
