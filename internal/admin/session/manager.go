package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

// ErrExpired is returned by Load for a session past its idle or absolute limit.
var ErrExpired = errors.New("session expired")

// ErrInvalidConfig is returned by NewManager for unusable key material.
var ErrInvalidConfig = errors.New("session: invalid config")

// Config describes the session cookie. Zero values take defaults: cookie
// "admin_session" on "/", SameSite Lax, 12h lifetime, 30m idle timeout.
type Config struct {
	CookieName     string
	HashKey        []byte
	BlockKey       []byte
	CookiePath     string
	CookieSecure   bool
	CookieSameSite http.SameSite

	IdleTimeout time.Duration
	Lifetime    time.Duration
	Now         func() time.Time
}

func (c Config) withDefaults() Config {
	if c.CookieName == "" {
		c.CookieName = "admin_session"
	}
	if c.CookiePath == "" {
		c.CookiePath = "/"
	}
	if c.CookieSameSite == 0 || c.CookieSameSite == http.SameSiteDefaultMode {
		c.CookieSameSite = http.SameSiteLaxMode
	}
	if c.Lifetime <= 0 {
		c.Lifetime = 12 * time.Hour
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Minute
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Manager loads and stores sessions in a securecookie-encoded cookie.
type Manager struct {
	cfg   Config
	codec *securecookie.SecureCookie
}

// NewManager validates key material and applies defaults.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.HashKey) == 0 {
		return nil, fmt.Errorf("%w: hash key is required", ErrInvalidConfig)
	}
	switch len(cfg.BlockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: block key must be 16, 24 or 32 bytes", ErrInvalidConfig)
	}

	codec := securecookie.New(cfg.HashKey, cfg.BlockKey)
	codec.SetSerializer(securecookie.JSONEncoder{})
	return &Manager{cfg: cfg.withDefaults(), codec: codec}, nil
}

// New starts an anonymous session.
func (m *Manager) New() *Session {
	sess := &Session{lifetime: m.cfg.Lifetime}
	sess.restart(uuid.NewString(), m.cfg.Now())
	return sess
}

// Load decodes the request's session cookie. A missing or tampered cookie
// yields a fresh session; an expired one yields ErrExpired.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil {
		return m.New(), nil
	}
	var data Data
	if err := m.codec.Decode(m.cfg.CookieName, cookie.Value, &data); err != nil || data.ID == "" {
		return m.New(), nil
	}
	if data.expired(m.cfg.Now().UTC(), m.cfg.IdleTimeout) {
		return nil, ErrExpired
	}
	return &Session{data: data, lifetime: m.cfg.Lifetime}, nil
}

// Save writes sess to the response, or clears the cookie if it was destroyed.
func (m *Manager) Save(w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return errors.New("session: nil session")
	}
	if sess.destroyed {
		m.Destroy(w)
		return nil
	}

	now := m.cfg.Now().UTC()
	sess.touch(now)
	encoded, err := m.codec.Encode(m.cfg.CookieName, sess.data)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	cookie := m.cookie(encoded)
	if expiry := sess.data.ExpiresAt; !expiry.IsZero() {
		cookie.Expires = expiry.UTC()
		cookie.MaxAge = -1
		if remaining := expiry.Sub(now); remaining > 0 {
			cookie.MaxAge = int(remaining.Round(time.Second).Seconds())
		}
	}
	http.SetCookie(w, cookie)
	return nil
}

// Destroy clears the session cookie.
func (m *Manager) Destroy(w http.ResponseWriter) {
	cookie := m.cookie("")
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)
	http.SetCookie(w, cookie)
}

func (m *Manager) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    value,
		Path:     m.cfg.CookiePath,
		Secure:   m.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: m.cfg.CookieSameSite,
	}
}
