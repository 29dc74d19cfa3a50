package login

import (
	"errors"
	"strings"
)

// ErrUnknownProvider is returned for a provider the sign-in panel does not list.
var ErrUnknownProvider = errors.New("login: unknown social provider")

// SocialAcknowledgement is the notice shown when a social provider is clicked.
const SocialAcknowledgement = "ok"

// SocialDialogMessage explains why the providers do nothing.
const SocialDialogMessage = "Can not be simulated on local, so please combine you own business simulation!"

// Provider is a social sign-in affordance.
type Provider struct {
	ID    string
	Label string
}

// Notice is a synchronous message displayed to the user.
type Notice struct {
	Provider Provider
	Message  string
}

// SocialSignIn renders inert provider buttons. Clicking one never calls the
// network, changes form state, or navigates.
type SocialSignIn struct {
	providers []Provider
}

// NewSocialSignIn returns the stub with its two providers.
func NewSocialSignIn() *SocialSignIn {
	return &SocialSignIn{
		providers: []Provider{
			{ID: "wechat", Label: "WeChat"},
			{ID: "tencent", Label: "QQ"},
		},
	}
}

// Providers lists the available affordances in display order.
func (s *SocialSignIn) Providers() []Provider {
	return append([]Provider(nil), s.providers...)
}

// Acknowledge returns the fixed notice for a provider click.
func (s *SocialSignIn) Acknowledge(id string) (Notice, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, p := range s.providers {
		if p.ID == id {
			return Notice{Provider: p, Message: SocialAcknowledgement}, nil
		}
	}
	return Notice{}, ErrUnknownProvider
}
