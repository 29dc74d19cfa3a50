// Package session keeps console sign-in state in a signed, encrypted cookie.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// User is the signed-in staff member.
type User struct {
	UID      string   `json:"uid"`
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// Data is the cookie payload.
type Data struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	LastActive  time.Time `json:"lastActive"`
	ExpiresAt   time.Time `json:"expiresAt,omitempty"`
	CSRFToken   string    `json:"csrfToken,omitempty"`
	User        *User     `json:"user,omitempty"`
	AccessToken string    `json:"accessToken,omitempty"`
}

// expired reports whether the payload outlived its absolute lifetime or sat
// idle longer than idle.
func (d Data) expired(now time.Time, idle time.Duration) bool {
	if !d.ExpiresAt.IsZero() && now.After(d.ExpiresAt) {
		return true
	}
	last := d.LastActive
	if last.IsZero() {
		last = d.CreatedAt
	}
	return idle > 0 && !last.IsZero() && now.Sub(last) > idle
}

// Session is the state attached to one request.
type Session struct {
	data      Data
	lifetime  time.Duration
	destroyed bool
}

func (s *Session) ID() string            { return s.data.ID }
func (s *Session) CreatedAt() time.Time  { return s.data.CreatedAt }
func (s *Session) LastActive() time.Time { return s.data.LastActive }
func (s *Session) ExpiresAt() time.Time  { return s.data.ExpiresAt }
func (s *Session) CSRFToken() string     { return s.data.CSRFToken }
func (s *Session) AccessToken() string   { return s.data.AccessToken }

// User returns the signed-in member, or nil for an anonymous session.
func (s *Session) User() *User { return s.data.User }

// SetUser records the signed-in member. nil signs the session out.
func (s *Session) SetUser(user *User) {
	if user == nil {
		s.data.User = nil
		return
	}
	copied := *user
	copied.Roles = append([]string(nil), user.Roles...)
	s.data.User = &copied
}

// SetAccessToken stores the backend token issued at sign-in.
func (s *Session) SetAccessToken(token string) { s.data.AccessToken = token }

// EnsureCSRFToken returns the session's CSRF token, issuing one if needed.
func (s *Session) EnsureCSRFToken() (string, error) {
	if s.data.CSRFToken == "" {
		token, err := randomToken()
		if err != nil {
			return "", err
		}
		s.data.CSRFToken = token
	}
	return s.data.CSRFToken, nil
}

// Rotate replaces the identifier and CSRF token and restarts the lifetime.
// Sign-in calls it so a pre-login session id never carries privileges.
func (s *Session) Rotate(now time.Time) error {
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Errorf("session id: %w", err)
	}
	csrf, err := randomToken()
	if err != nil {
		return err
	}
	s.restart(id.String(), now)
	s.data.CSRFToken = csrf
	return nil
}

// Destroy clears the cookie when the response is written.
func (s *Session) Destroy() { s.destroyed = true }

func (s *Session) touch(now time.Time) {
	if now.After(s.data.LastActive) {
		s.data.LastActive = now
	}
}

func (s *Session) restart(id string, now time.Time) {
	now = now.UTC()
	s.data.ID = id
	s.data.CreatedAt = now
	s.data.LastActive = now
	s.data.ExpiresAt = time.Time{}
	if s.lifetime > 0 {
		s.data.ExpiresAt = now.Add(s.lifetime)
	}
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
