package auth

import (
	"net/url"

	"finitefield.org/admin-console/internal/admin/login"
)

// Routes are the endpoints the login form talks to.
type Routes struct {
	Login       string
	Keyup       string
	Blur        string
	Visibility  string
	Social      string
	SocialClose string
	Static      string
}

// Provider is a social sign-in button.
type Provider struct {
	ID     string
	Label  string
	Action string
}

// LoginPageData encapsulates rendering state for the admin login screen.
type LoginPageData struct {
	Title       string
	Environment string
	Routes      Routes
	CSRFToken   string
	// ReturnQuery is the query the page was opened with; it round-trips so
	// the post-login redirect survives fragment requests.
	ReturnQuery string

	Username        string
	Password        string
	PasswordVisible bool
	CapsLock        bool
	Submitting      bool
	DialogOpen      bool
	Focus           string

	UsernameError string
	PasswordError string
	Error         string
	Message       string

	DialogMessage string
	Providers     []Provider
	Notice        string
}

// Action is the form target, carrying the original query.
func (d LoginPageData) Action() string {
	if d.ReturnQuery == "" {
		return d.Routes.Login
	}
	return d.Routes.Login + "?" + d.ReturnQuery
}

// NewLoginPageData maps a controller view onto template data.
func NewLoginPageData(view login.View, routes Routes, csrfToken string, returnQuery url.Values) LoginPageData {
	data := LoginPageData{
		Title:           "Sign in",
		Routes:          routes,
		CSRFToken:       csrfToken,
		ReturnQuery:     returnQuery.Encode(),
		Username:        view.Credentials.Username,
		Password:        view.Credentials.Password,
		PasswordVisible: view.State.PasswordVisibility == login.VisibilityVisible,
		CapsLock:        view.State.CapsLockActive,
		Submitting:      view.State.Submitting,
		DialogOpen:      view.State.DialogOpen,
		Focus:           string(view.Focus),
		UsernameError:   view.Errors[login.FieldUsername],
		PasswordError:   view.Errors[login.FieldPassword],
		DialogMessage:   login.SocialDialogMessage,
	}
	for _, p := range login.NewSocialSignIn().Providers() {
		data.Providers = append(data.Providers, Provider{
			ID:     p.ID,
			Label:  p.Label,
			Action: routes.Social + "/" + url.PathEscape(p.ID),
		})
	}
	return data
}
