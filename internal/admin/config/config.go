// Package config loads console settings from an optional YAML file overlaid
// with ADMIN_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"finitefield.org/admin-console/internal/admin/login"
)

// Gateway modes.
const (
	GatewayLocal    = "local"
	GatewayHTTP     = "http"
	GatewayFirebase = "firebase"
	GatewayKratos   = "kratos"
)

const (
	defaultAddr            = ":8080"
	defaultBasePath        = "/admin"
	defaultEnvironment     = "local"
	defaultGatewayMode     = GatewayLocal
	defaultGatewayTimeout  = 15 * time.Second
	defaultSessionLifetime = 12 * time.Hour
	defaultSessionIdle     = 30 * time.Minute
	defaultTokenTTL        = 12 * time.Hour
	defaultTokenIssuer     = "admin-console"
	defaultMetricsNS       = "admin_console"
	defaultRememberCookie  = "userName"
	defaultRedisPrefix     = "admin-console:login:"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	HTTP        HTTPConfig     `yaml:"http"`
	Environment string         `yaml:"environment" validate:"required"`
	LogLevel    string         `yaml:"log_level"`
	Session     SessionConfig  `yaml:"session"`
	Gateway     GatewayConfig  `yaml:"gateway"`
	Token       TokenConfig    `yaml:"token"`
	Redis       RedisConfig    `yaml:"redis"`
	Metrics     MetricsConfig  `yaml:"metrics"`
	Login       LoginConfig    `yaml:"login"`
	Autofill    []AutofillRule `yaml:"autofill" validate:"dive"`
}

// HTTPConfig configures the listener.
type HTTPConfig struct {
	Addr     string `yaml:"addr" validate:"required"`
	BasePath string `yaml:"base_path" validate:"required,startswith=/"`
}

// SessionConfig configures the signed session cookie.
type SessionConfig struct {
	HashKey     string        `yaml:"hash_key" validate:"required,min=32"`
	BlockKey    string        `yaml:"block_key" validate:"omitempty,len=16|len=24|len=32"`
	Secure      bool          `yaml:"secure"`
	Lifetime    time.Duration `yaml:"lifetime" validate:"gt=0"`
	IdleTimeout time.Duration `yaml:"idle_timeout" validate:"gt=0"`
}

// GatewayConfig selects and configures the credential backend.
type GatewayConfig struct {
	Mode     string             `yaml:"mode" validate:"required,oneof=local http firebase kratos"`
	Timeout  time.Duration      `yaml:"timeout" validate:"gt=0"`
	Local    LocalGatewayConfig `yaml:"local"`
	HTTP     HTTPGatewayConfig  `yaml:"http"`
	Firebase FirebaseConfig     `yaml:"firebase"`
	Kratos   KratosConfig       `yaml:"kratos"`
}

// LocalGatewayConfig lists accounts checked in-process.
type LocalGatewayConfig struct {
	Users []LocalUser `yaml:"users" validate:"dive"`
}

// LocalUser is one configured console account.
type LocalUser struct {
	Username     string   `yaml:"username" validate:"required"`
	PasswordHash string   `yaml:"password_hash" validate:"required"`
	Email        string   `yaml:"email" validate:"omitempty,email"`
	Roles        []string `yaml:"roles"`
}

// HTTPGatewayConfig points at an upstream REST login endpoint.
type HTTPGatewayConfig struct {
	BaseURL   string `yaml:"base_url" validate:"omitempty,url"`
	LoginPath string `yaml:"login_path"`
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID string `yaml:"project_id"`
	APIKey    string `yaml:"api_key"`
	Endpoint  string `yaml:"endpoint" validate:"omitempty,url"`
}

// KratosConfig points at the Ory Kratos public API.
type KratosConfig struct {
	PublicURL    string   `yaml:"public_url" validate:"omitempty,url"`
	DefaultRoles []string `yaml:"default_roles"`
}

// TokenConfig controls bearer tokens issued by the local gateway.
type TokenConfig struct {
	Secret string        `yaml:"secret"`
	Issuer string        `yaml:"issuer"`
	TTL    time.Duration `yaml:"ttl" validate:"gt=0"`
}

// RedisConfig enables the shared in-flight submission guard. An empty Addr
// keeps the guard in memory.
type RedisConfig struct {
	Addr     string `yaml:"addr" validate:"omitempty,hostname_port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Prefix   string `yaml:"prefix"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// LoginConfig tunes the login form.
type LoginConfig struct {
	RememberCookie string `yaml:"remember_cookie" validate:"required"`
}

// AutofillRule pre-fills credentials when the console is served from Hostname.
type AutofillRule struct {
	Hostname string `yaml:"hostname" validate:"required,hostname_rfc1123"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	file         string
	envMap       map[string]string
	useSystemEnv bool
}

// WithFile reads YAML settings from path before applying the environment.
func WithFile(path string) Option {
	return func(o *loaderOptions) {
		o.file = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.LookupEnv.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(gatewayStructLevel, Config{})
	return v
}

// Load assembles the configuration: defaults, then the YAML file named by
// WithFile or ADMIN_CONFIG_FILE, then environment variables.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			return os.LookupEnv(key)
		}
		return "", false
	}

	cfg := defaults()

	file := options.file
	if file == "" {
		file, _ = lookup("ADMIN_CONFIG_FILE")
	}
	if strings.TrimSpace(file) != "" {
		if err := readFile(strings.TrimSpace(file), &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	normalise(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct tags and the per-mode gateway requirements.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("config: validate: %w", err)
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, strings.TrimPrefix(fe.Namespace(), "Config."))
	}
	sort.Strings(fields)
	return &ValidationError{fields: fields}
}

// AutofillMap returns the auto-fill rules keyed by hostname.
func (c Config) AutofillMap() login.Autofill {
	if len(c.Autofill) == 0 {
		return nil
	}
	out := make(login.Autofill, len(c.Autofill))
	for _, rule := range c.Autofill {
		out[rule.Hostname] = login.Credentials{Username: rule.Username, Password: rule.Password}
	}
	return out
}

func gatewayStructLevel(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Config)
	gw := cfg.Gateway
	switch gw.Mode {
	case GatewayLocal:
		if len(gw.Local.Users) == 0 {
			sl.ReportError(gw.Local.Users, "Gateway.Local.Users", "Users", "required_for_mode", GatewayLocal)
		}
		if cfg.Token.Secret == "" {
			sl.ReportError(cfg.Token.Secret, "Token.Secret", "Secret", "required_for_mode", GatewayLocal)
		}
	case GatewayHTTP:
		if gw.HTTP.BaseURL == "" {
			sl.ReportError(gw.HTTP.BaseURL, "Gateway.HTTP.BaseURL", "BaseURL", "required_for_mode", GatewayHTTP)
		}
	case GatewayFirebase:
		if gw.Firebase.ProjectID == "" {
			sl.ReportError(gw.Firebase.ProjectID, "Gateway.Firebase.ProjectID", "ProjectID", "required_for_mode", GatewayFirebase)
		}
		if gw.Firebase.APIKey == "" {
			sl.ReportError(gw.Firebase.APIKey, "Gateway.Firebase.APIKey", "APIKey", "required_for_mode", GatewayFirebase)
		}
	case GatewayKratos:
		if gw.Kratos.PublicURL == "" {
			sl.ReportError(gw.Kratos.PublicURL, "Gateway.Kratos.PublicURL", "PublicURL", "required_for_mode", GatewayKratos)
		}
	}
}

func defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:     defaultAddr,
			BasePath: defaultBasePath,
		},
		Environment: defaultEnvironment,
		Session: SessionConfig{
			Lifetime:    defaultSessionLifetime,
			IdleTimeout: defaultSessionIdle,
		},
		Gateway: GatewayConfig{
			Mode:    defaultGatewayMode,
			Timeout: defaultGatewayTimeout,
		},
		Token: TokenConfig{
			Issuer: defaultTokenIssuer,
			TTL:    defaultTokenTTL,
		},
		Redis: RedisConfig{
			Prefix: defaultRedisPrefix,
		},
		Metrics: MetricsConfig{
			Namespace: defaultMetricsNS,
		},
		Login: LoginConfig{
			RememberCookie: defaultRememberCookie,
		},
	}
}

func readFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	setBool := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
			return
		}
		*dst = parsed
	}
	setDuration := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
			return
		}
		*dst = parsed
	}
	setInt := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
			return
		}
		*dst = parsed
	}
	setList := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = splitList(v)
		}
	}

	setString("ADMIN_HTTP_ADDR", &cfg.HTTP.Addr)
	setString("ADMIN_BASE_PATH", &cfg.HTTP.BasePath)
	setString("ADMIN_ENVIRONMENT", &cfg.Environment)
	setString("LOG_LEVEL", &cfg.LogLevel)

	setString("ADMIN_SESSION_HASH_KEY", &cfg.Session.HashKey)
	setString("ADMIN_SESSION_BLOCK_KEY", &cfg.Session.BlockKey)
	setBool("ADMIN_SESSION_SECURE", &cfg.Session.Secure)
	setDuration("ADMIN_SESSION_LIFETIME", &cfg.Session.Lifetime)
	setDuration("ADMIN_SESSION_IDLE_TIMEOUT", &cfg.Session.IdleTimeout)

	setString("ADMIN_GATEWAY_MODE", &cfg.Gateway.Mode)
	setDuration("ADMIN_GATEWAY_TIMEOUT", &cfg.Gateway.Timeout)
	setString("ADMIN_GATEWAY_HTTP_URL", &cfg.Gateway.HTTP.BaseURL)
	setString("ADMIN_GATEWAY_HTTP_LOGIN_PATH", &cfg.Gateway.HTTP.LoginPath)
	setString("ADMIN_FIREBASE_PROJECT_ID", &cfg.Gateway.Firebase.ProjectID)
	setString("ADMIN_FIREBASE_API_KEY", &cfg.Gateway.Firebase.APIKey)
	setString("ADMIN_FIREBASE_AUTH_ENDPOINT", &cfg.Gateway.Firebase.Endpoint)
	setString("ADMIN_KRATOS_PUBLIC_URL", &cfg.Gateway.Kratos.PublicURL)
	setList("ADMIN_KRATOS_DEFAULT_ROLES", &cfg.Gateway.Kratos.DefaultRoles)

	setString("ADMIN_TOKEN_SECRET", &cfg.Token.Secret)
	setString("ADMIN_TOKEN_ISSUER", &cfg.Token.Issuer)
	setDuration("ADMIN_TOKEN_TTL", &cfg.Token.TTL)

	setString("ADMIN_REDIS_ADDR", &cfg.Redis.Addr)
	setString("ADMIN_REDIS_PASSWORD", &cfg.Redis.Password)
	setInt("ADMIN_REDIS_DB", &cfg.Redis.DB)
	setString("ADMIN_REDIS_PREFIX", &cfg.Redis.Prefix)

	setBool("ADMIN_METRICS_ENABLED", &cfg.Metrics.Enabled)
	setString("ADMIN_METRICS_NAMESPACE", &cfg.Metrics.Namespace)

	setString("ADMIN_REMEMBER_COOKIE", &cfg.Login.RememberCookie)

	return errors.Join(errs...)
}

func normalise(cfg *Config) {
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	cfg.Gateway.Mode = strings.ToLower(strings.TrimSpace(cfg.Gateway.Mode))
	if base := strings.TrimSpace(cfg.HTTP.BasePath); base != "/" {
		cfg.HTTP.BasePath = strings.TrimRight(base, "/")
	}
	for i := range cfg.Autofill {
		cfg.Autofill[i].Hostname = strings.ToLower(strings.TrimSpace(cfg.Autofill[i].Hostname))
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
