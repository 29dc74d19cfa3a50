// Package login implements the state machine behind the console sign-in form:
// field validation, password visibility, caps lock feedback, submission to a
// session gateway and the post-login redirect.
package login

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"finitefield.org/admin-console/internal/admin/observability"
)

// RememberCookieName is the cookie that remembers the last signed-in username.
const RememberCookieName = "userName"

// ErrSubmitInProgress is returned when a submission is attempted while another
// one is still waiting on the gateway.
var ErrSubmitInProgress = errors.New("login: submission already in progress")

// SessionGateway verifies credentials and establishes the session.
type SessionGateway interface {
	Login(ctx context.Context, creds Credentials) error
}

// Router moves the user to another page.
type Router interface {
	Navigate(path string, query url.Values)
}

// CookieStore persists small non-secret markers on the client.
type CookieStore interface {
	Set(key, value string)
}

// Dependencies are the collaborators a Controller drives.
type Dependencies struct {
	Gateway SessionGateway
	Router  Router
	Cookies CookieStore
}

// AuthenticationFailure wraps an error reported by the session gateway.
type AuthenticationFailure struct {
	Err error
}

// Error implements the error interface.
func (e *AuthenticationFailure) Error() string {
	if e.Err == nil {
		return "login: authentication failed"
	}
	return "login: authentication failed: " + e.Err.Error()
}

// Unwrap returns the gateway error.
func (e *AuthenticationFailure) Unwrap() error {
	return e.Err
}

// Visibility controls whether the password input is masked.
type Visibility string

const (
	VisibilityHidden  Visibility = "hidden"
	VisibilityVisible Visibility = "visible"
)

// Toggle returns the opposite visibility.
func (v Visibility) Toggle() Visibility {
	if v == VisibilityVisible {
		return VisibilityHidden
	}
	return VisibilityVisible
}

// ParseVisibility maps a raw value onto a Visibility, defaulting to hidden.
func ParseVisibility(raw string) Visibility {
	if Visibility(raw) == VisibilityVisible {
		return VisibilityVisible
	}
	return VisibilityHidden
}

// FormState is transient UI state for one mounted form.
type FormState struct {
	PasswordVisibility Visibility
	CapsLockActive     bool
	Submitting         bool
	DialogOpen         bool
}

// MountOptions carries what the form sees when it is first shown.
type MountOptions struct {
	Query              url.Values
	RememberedUsername string
}

// View is a snapshot of the form for one render pass.
type View struct {
	Credentials Credentials
	State       FormState
	Errors      map[Field]string
	Focus       Field
	Redirect    RedirectTarget
}

// Option customises a Controller.
type Option func(*Controller)

// WithRules replaces the default validation rules.
func WithRules(rules RuleSet) Option {
	return func(c *Controller) {
		if rules != nil {
			c.rules = rules
		}
	}
}

// WithHostname sets the hostname the form is served under.
func WithHostname(hostname string) Option {
	return func(c *Controller) {
		c.hostname = hostname
	}
}

// WithAutofill registers per-hostname credentials used to pre-populate the form.
func WithAutofill(autofill Autofill) Option {
	return func(c *Controller) {
		c.autofill = autofill
	}
}

// WithLogger sets the logger used for submission outcomes.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRememberCookie overrides the cookie that remembers the username.
func WithRememberCookie(name string) Option {
	return func(c *Controller) {
		if name != "" {
			c.rememberCookie = name
		}
	}
}

// Controller owns the login form. It is safe for concurrent use; the gateway
// is called without holding the lock.
type Controller struct {
	gateway SessionGateway
	router  Router
	cookies CookieStore

	rules          RuleSet
	logger         *zap.Logger
	rememberCookie string
	hostname       string
	autofill       Autofill
	defaults       *Credentials

	mu           sync.Mutex
	creds        Credentials
	state        FormState
	errors       map[Field]string
	target       RedirectTarget
	pendingFocus Field
}

// New constructs a Controller. The autofill mapping is resolved against the
// hostname once, here.
func New(deps Dependencies, opts ...Option) *Controller {
	if deps.Gateway == nil {
		panic("login: session gateway is required")
	}
	if deps.Router == nil {
		panic("login: router is required")
	}
	if deps.Cookies == nil {
		panic("login: cookie store is required")
	}

	c := &Controller{
		gateway:        deps.Gateway,
		router:         deps.Router,
		cookies:        deps.Cookies,
		rules:          DefaultRules(),
		logger:         zap.NewNop(),
		rememberCookie: RememberCookieName,
		state:          FormState{PasswordVisibility: VisibilityHidden},
		target:         RedirectTargetFromQuery(nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	if creds, ok := c.autofill.Lookup(c.hostname); ok {
		c.defaults = &creds
	}
	return c
}

// Mount resets the form as if it had just been shown. A gateway call still in
// flight keeps the form submitting.
func (c *Controller) Mount(opts MountOptions) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = FormState{PasswordVisibility: VisibilityHidden, Submitting: c.state.Submitting}
	c.errors = nil
	c.creds = Credentials{}
	switch {
	case c.defaults != nil:
		c.creds = *c.defaults
		c.logger.Debug("login form auto-filled", zap.String("hostname", c.hostname))
	case opts.RememberedUsername != "":
		c.creds.Username = opts.RememberedUsername
	}
	c.target = RedirectTargetFromQuery(opts.Query)

	switch {
	case c.creds.Username == "":
		c.pendingFocus = FieldUsername
	case c.creds.Password == "":
		c.pendingFocus = FieldPassword
	default:
		c.pendingFocus = FieldNone
	}
}

// Resume rehydrates a form instance whose inputs and UI state were carried by
// the client between interactions. Submitting stays owned by the controller.
func (c *Controller) Resume(creds Credentials, state FormState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.creds = creds
	c.state.PasswordVisibility = ParseVisibility(string(state.PasswordVisibility))
	c.state.CapsLockActive = state.CapsLockActive
	c.state.DialogOpen = state.DialogOpen
}

// RouteChanged recomputes the redirect target from the active route query.
func (c *Controller) RouteChanged(query url.Values) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = RedirectTargetFromQuery(query)
}

// SetField records the raw value typed into field.
func (c *Controller) SetField(field Field, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch field {
	case FieldUsername:
		c.creds.Username = value
	case FieldPassword:
		c.creds.Password = value
	}
}

// Validate applies the rule set to the current credentials.
func (c *Controller) Validate() (Credentials, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validateLocked()
}

func (c *Controller) validateLocked() (Credentials, error) {
	failures := c.rules.check(c.creds)
	c.errors = failures
	if len(failures) > 0 {
		fields := make(map[Field]string, len(failures))
		for k, v := range failures {
			fields[k] = v
		}
		return Credentials{}, &ValidationError{Fields: fields}
	}
	return c.creds, nil
}

// TogglePasswordVisibility flips the password mask and schedules focus back
// onto the password input for the next render.
func (c *Controller) TogglePasswordVisibility() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.PasswordVisibility = c.state.PasswordVisibility.Toggle()
	c.pendingFocus = FieldPassword
}

// PasswordKeyup updates the caps lock hint from a keystroke on the password
// input. Enter submits the form.
func (c *Controller) PasswordKeyup(ctx context.Context, ev KeyEvent) error {
	c.mu.Lock()
	c.state.CapsLockActive = capsLockAfter(c.state.CapsLockActive, ev)
	c.mu.Unlock()

	if ev.Key == keyEnter {
		return c.Submit(ctx)
	}
	return nil
}

// PasswordBlur hides the caps lock hint once the password input loses focus.
func (c *Controller) PasswordBlur() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.CapsLockActive = false
}

// OpenSocialDialog shows the social sign-in panel.
func (c *Controller) OpenSocialDialog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.DialogOpen = true
}

// CloseSocialDialog hides the social sign-in panel.
func (c *Controller) CloseSocialDialog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.DialogOpen = false
}

// Submit validates the form and hands the credentials to the gateway. Only one
// gateway call may be outstanding; overlapping calls get ErrSubmitInProgress.
// On success the username is remembered and the router is sent to the
// redirect target. Failures leave the form populated for another attempt.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Submitting {
		c.mu.Unlock()
		c.logger.Debug("login submit ignored: already submitting")
		return ErrSubmitInProgress
	}
	creds, err := c.validateLocked()
	if err != nil {
		c.mu.Unlock()
		c.logger.Debug("login submit rejected", zap.Error(err))
		return err
	}
	c.state.Submitting = true
	target := c.target.clone()
	c.mu.Unlock()

	err = c.gateway.Login(ctx, creds)
	if err != nil {
		c.setSubmitting(false)
		c.logger.Info("login failed", observability.Username(creds.Username), zap.Error(err))
		return &AuthenticationFailure{Err: err}
	}

	c.cookies.Set(c.rememberCookie, creds.Username)
	c.setSubmitting(false)
	c.logger.Info("login succeeded",
		observability.Username(creds.Username),
		zap.String("redirect", target.Path),
	)
	c.router.Navigate(target.Path, target.OtherQuery)
	return nil
}

func (c *Controller) setSubmitting(v bool) {
	c.mu.Lock()
	c.state.Submitting = v
	c.mu.Unlock()
}

// Render returns the current view and consumes the scheduled focus action.
func (c *Controller) Render() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs map[Field]string
	if len(c.errors) > 0 {
		errs = make(map[Field]string, len(c.errors))
		for k, v := range c.errors {
			errs[k] = v
		}
	}
	view := View{
		Credentials: c.creds,
		State:       c.state,
		Errors:      errs,
		Focus:       c.pendingFocus,
		Redirect:    c.target.clone(),
	}
	c.pendingFocus = FieldNone
	return view
}

// State returns the current UI state.
func (c *Controller) State() FormState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Credentials returns the current field values.
func (c *Controller) Credentials() Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds
}

// RedirectTarget returns the destination used after a successful login.
func (c *Controller) RedirectTarget() RedirectTarget {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target.clone()
}
