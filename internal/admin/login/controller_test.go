package login

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingGateway struct {
	mu      sync.Mutex
	calls   []Credentials
	err     error
	release chan struct{}
	entered chan struct{}
}

func (g *recordingGateway) Login(ctx context.Context, creds Credentials) error {
	g.mu.Lock()
	g.calls = append(g.calls, creds)
	g.mu.Unlock()
	if g.entered != nil {
		g.entered <- struct{}{}
	}
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return g.err
}

func (g *recordingGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type navigation struct {
	path  string
	query url.Values
}

type recordingRouter struct {
	navigations []navigation
}

func (r *recordingRouter) Navigate(path string, query url.Values) {
	r.navigations = append(r.navigations, navigation{path: path, query: query})
}

type memoryCookies map[string]string

func (m memoryCookies) Set(key, value string) {
	m[key] = value
}

type fixture struct {
	gateway *recordingGateway
	router  *recordingRouter
	cookies memoryCookies
	ctrl    *Controller
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		gateway: &recordingGateway{},
		router:  &recordingRouter{},
		cookies: memoryCookies{},
	}
	f.ctrl = New(Dependencies{Gateway: f.gateway, Router: f.router, Cookies: f.cookies}, opts...)
	return f
}

func TestValidateRejectsShortPasswords(t *testing.T) {
	t.Parallel()

	cases := []struct {
		password string
		valid    bool
	}{
		{"", false},
		{"a", false},
		{"short", false},
		{"12345", false},
		{"123456", true},
		{"hippo4j", true},
		{"パスワード", false},
		{"パスワードです", true},
		{strings.Repeat("x", 64), true},
	}

	for _, tc := range cases {
		f := newFixture(t)
		f.ctrl.SetField(FieldPassword, tc.password)
		_, err := f.ctrl.Validate()
		if tc.valid {
			require.NoError(t, err, "password %q", tc.password)
			continue
		}
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "password %q", tc.password)
		require.Equal(t, PasswordTooShortMessage, verr.Message(FieldPassword))
		require.Empty(t, verr.Message(FieldUsername))
	}
}

func TestValidateAllowsEmptyUsername(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.ctrl.SetField(FieldPassword, "secret1")
	creds, err := f.ctrl.Validate()
	require.NoError(t, err)
	require.Equal(t, Credentials{Password: "secret1"}, creds)
}

func TestSubmitWithInvalidPasswordSkipsGateway(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.ctrl.SetField(FieldUsername, "admin")
	f.ctrl.SetField(FieldPassword, "short")

	err := f.ctrl.Submit(context.Background())

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, 0, f.gateway.callCount())
	require.False(t, f.ctrl.State().Submitting)
	require.Empty(t, f.router.navigations)
	require.Empty(t, f.cookies)

	view := f.ctrl.Render()
	require.Equal(t, PasswordTooShortMessage, view.Errors[FieldPassword])
	require.Equal(t, Credentials{Username: "admin", Password: "short"}, view.Credentials)
}

func TestSubmitSuccessRemembersUserAndNavigates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.ctrl.Mount(MountOptions{Query: url.Values{
		"redirect": {"/dashboard"},
		"foo":      {"bar"},
	}})
	f.ctrl.SetField(FieldUsername, "admin")
	f.ctrl.SetField(FieldPassword, "secret-password")

	require.NoError(t, f.ctrl.Submit(context.Background()))

	require.Equal(t, 1, f.gateway.callCount())
	require.Equal(t, Credentials{Username: "admin", Password: "secret-password"}, f.gateway.calls[0])
	require.Equal(t, "admin", f.cookies[RememberCookieName])
	require.Len(t, f.router.navigations, 1)
	require.Equal(t, "/dashboard", f.router.navigations[0].path)
	require.Equal(t, url.Values{"foo": {"bar"}}, f.router.navigations[0].query)
	require.False(t, f.ctrl.State().Submitting)
}

func TestSubmitWithoutRedirectNavigatesToRoot(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.ctrl.Mount(MountOptions{})
	f.ctrl.SetField(FieldUsername, "admin")
	f.ctrl.SetField(FieldPassword, "secret-password")

	require.NoError(t, f.ctrl.Submit(context.Background()))
	require.Equal(t, "/", f.router.navigations[0].path)
	require.Empty(t, f.router.navigations[0].query)
}

func TestSubmitGatewayFailureKeepsInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.gateway.err = errors.New("bad credentials")
	f.ctrl.SetField(FieldUsername, "admin")
	f.ctrl.SetField(FieldPassword, "wrong-password")

	err := f.ctrl.Submit(context.Background())

	var authErr *AuthenticationFailure
	require.ErrorAs(t, err, &authErr)
	require.ErrorIs(t, err, f.gateway.err)
	require.False(t, f.ctrl.State().Submitting)
	require.Empty(t, f.router.navigations)
	require.Empty(t, f.cookies)
	require.Equal(t, Credentials{Username: "admin", Password: "wrong-password"}, f.ctrl.Credentials())
	require.Equal(t, 1, f.gateway.callCount(), "no automatic retry")
}

func TestSubmitRejectsOverlappingAttempts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.gateway.release = make(chan struct{})
	f.gateway.entered = make(chan struct{}, 1)
	f.ctrl.SetField(FieldUsername, "admin")
	f.ctrl.SetField(FieldPassword, "secret-password")

	done := make(chan error, 1)
	go func() {
		done <- f.ctrl.Submit(context.Background())
	}()

	select {
	case <-f.gateway.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("gateway was not called")
	}
	require.True(t, f.ctrl.State().Submitting)

	require.ErrorIs(t, f.ctrl.Submit(context.Background()), ErrSubmitInProgress)
	require.ErrorIs(t, f.ctrl.PasswordKeyup(context.Background(), KeyEvent{Key: "Enter"}), ErrSubmitInProgress)
	require.Equal(t, 1, f.gateway.callCount())

	close(f.gateway.release)
	require.NoError(t, <-done)
	require.False(t, f.ctrl.State().Submitting)
	require.Equal(t, 1, f.gateway.callCount())
}

func TestMountKeepsOutstandingSubmission(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.gateway.release = make(chan struct{})
	f.gateway.entered = make(chan struct{}, 1)
	f.ctrl.SetField(FieldUsername, "admin")
	f.ctrl.SetField(FieldPassword, "secret-password")

	done := make(chan error, 1)
	go func() {
		done <- f.ctrl.Submit(context.Background())
	}()

	select {
	case <-f.gateway.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("gateway was not called")
	}

	f.ctrl.Mount(MountOptions{})
	require.True(t, f.ctrl.State().Submitting)

	f.ctrl.SetField(FieldUsername, "admin")
	f.ctrl.SetField(FieldPassword, "secret-password")
	require.ErrorIs(t, f.ctrl.Submit(context.Background()), ErrSubmitInProgress)
	require.Equal(t, 1, f.gateway.callCount())

	close(f.gateway.release)
	require.NoError(t, <-done)
	require.False(t, f.ctrl.State().Submitting)
}

func TestEnterKeySubmits(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.ctrl.SetField(FieldUsername, "admin")
	f.ctrl.SetField(FieldPassword, "secret-password")

	require.NoError(t, f.ctrl.PasswordKeyup(context.Background(), KeyEvent{Key: "Enter"}))
	require.Equal(t, 1, f.gateway.callCount())
	require.Len(t, f.router.navigations, 1)
}

func TestCapsLockHeuristic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.ctrl.PasswordKeyup(ctx, KeyEvent{Key: "a"}))
	require.False(t, f.ctrl.State().CapsLockActive)

	require.NoError(t, f.ctrl.PasswordKeyup(ctx, KeyEvent{Key: "A"}))
	require.True(t, f.ctrl.State().CapsLockActive)

	require.NoError(t, f.ctrl.PasswordKeyup(ctx, KeyEvent{Key: "Shift", Shift: true}))
	require.True(t, f.ctrl.State().CapsLockActive, "modifier keys leave the hint alone")

	require.NoError(t, f.ctrl.PasswordKeyup(ctx, KeyEvent{Key: "CapsLock"}))
	require.False(t, f.ctrl.State().CapsLockActive)

	require.NoError(t, f.ctrl.PasswordKeyup(ctx, KeyEvent{Key: "a", Shift: true}))
	require.True(t, f.ctrl.State().CapsLockActive)

	require.NoError(t, f.ctrl.PasswordKeyup(ctx, KeyEvent{Key: "A", Shift: true}))
	require.False(t, f.ctrl.State().CapsLockActive)

	require.NoError(t, f.ctrl.PasswordKeyup(ctx, KeyEvent{Key: "B"}))
	require.True(t, f.ctrl.State().CapsLockActive)
	require.NoError(t, f.ctrl.PasswordKeyup(ctx, KeyEvent{Key: "7"}))
	require.False(t, f.ctrl.State().CapsLockActive)
	require.NoError(t, f.ctrl.PasswordKeyup(ctx, KeyEvent{Key: "B"}))
	require.NoError(t, f.ctrl.PasswordKeyup(ctx, KeyEvent{Key: "#", Shift: true}))
	require.False(t, f.ctrl.State().CapsLockActive, "symbols clear the hint")

	require.NoError(t, f.ctrl.PasswordKeyup(ctx, KeyEvent{Key: "B"}))
	f.ctrl.PasswordBlur()
	require.False(t, f.ctrl.State().CapsLockActive)

	require.Equal(t, 0, f.gateway.callCount())
}

func TestCapsLockKeyWhileInactiveIsNoop(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.ctrl.PasswordKeyup(context.Background(), KeyEvent{Key: "CapsLock"}))
	require.False(t, f.ctrl.State().CapsLockActive)
}

func TestTogglePasswordVisibilityIsItsOwnInverse(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	original := f.ctrl.State().PasswordVisibility
	require.Equal(t, VisibilityHidden, original)

	f.ctrl.TogglePasswordVisibility()
	require.Equal(t, VisibilityVisible, f.ctrl.State().PasswordVisibility)

	f.ctrl.TogglePasswordVisibility()
	require.Equal(t, original, f.ctrl.State().PasswordVisibility)
}

func TestToggleSchedulesSingleFocus(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.ctrl.SetField(FieldUsername, "admin")
	f.ctrl.TogglePasswordVisibility()

	first := f.ctrl.Render()
	require.Equal(t, FieldPassword, first.Focus)
	require.Equal(t, VisibilityVisible, first.State.PasswordVisibility)

	second := f.ctrl.Render()
	require.Equal(t, FieldNone, second.Focus, "focus is a one-shot action")
}

func TestMountInitialFocus(t *testing.T) {
	t.Parallel()

	t.Run("empty form focuses username", func(t *testing.T) {
		f := newFixture(t)
		f.ctrl.Mount(MountOptions{})
		require.Equal(t, FieldUsername, f.ctrl.Render().Focus)
	})

	t.Run("remembered username focuses password", func(t *testing.T) {
		f := newFixture(t)
		f.ctrl.Mount(MountOptions{RememberedUsername: "admin"})
		view := f.ctrl.Render()
		require.Equal(t, FieldPassword, view.Focus)
		require.Equal(t, "admin", view.Credentials.Username)
	})

	t.Run("auto-filled form focuses nothing", func(t *testing.T) {
		f := newFixture(t,
			WithHostname("console.example.com"),
			WithAutofill(Autofill{"console.example.com": {Username: "demo", Password: "demo-pass"}}),
		)
		f.ctrl.Mount(MountOptions{RememberedUsername: "someone"})
		view := f.ctrl.Render()
		require.Equal(t, FieldNone, view.Focus)
		require.Equal(t, Credentials{Username: "demo", Password: "demo-pass"}, view.Credentials)
	})
}

func TestMountResetsFormState(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.ctrl.TogglePasswordVisibility()
	f.ctrl.OpenSocialDialog()
	require.NoError(t, f.ctrl.PasswordKeyup(context.Background(), KeyEvent{Key: "Q"}))

	f.ctrl.Mount(MountOptions{})
	require.Equal(t, FormState{PasswordVisibility: VisibilityHidden}, f.ctrl.State())
}

func TestAutofillIgnoredOnOtherHosts(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		WithHostname("admin.internal"),
		WithAutofill(Autofill{"console.example.com": {Username: "demo", Password: "demo-pass"}}),
	)
	f.ctrl.Mount(MountOptions{})
	require.Equal(t, Credentials{}, f.ctrl.Credentials())
}

func TestRouteChangedRecomputesTarget(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.ctrl.Mount(MountOptions{Query: url.Values{"redirect": {"/a"}}})
	require.Equal(t, "/a", f.ctrl.RedirectTarget().Path)

	f.ctrl.RouteChanged(url.Values{"redirect": {"/b"}, "tab": {"2"}})
	target := f.ctrl.RedirectTarget()
	require.Equal(t, "/b", target.Path)
	require.Equal(t, url.Values{"tab": {"2"}}, target.OtherQuery)
}

func TestResumeKeepsSubmittingOwnedByController(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.ctrl.Resume(Credentials{Username: "admin", Password: "p"}, FormState{
		PasswordVisibility: "bogus",
		CapsLockActive:     true,
		Submitting:         true,
		DialogOpen:         true,
	})
	state := f.ctrl.State()
	require.Equal(t, VisibilityHidden, state.PasswordVisibility)
	require.True(t, state.CapsLockActive)
	require.True(t, state.DialogOpen)
	require.False(t, state.Submitting)
}

func TestSocialDialog(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.ctrl.OpenSocialDialog()
	require.True(t, f.ctrl.State().DialogOpen)
	f.ctrl.CloseSocialDialog()
	require.False(t, f.ctrl.State().DialogOpen)
}

func TestWithRulesOverridesDefaults(t *testing.T) {
	t.Parallel()

	f := newFixture(t, WithRules(RuleSet{
		FieldUsername: {MinLength(1, "username required")},
	}))
	f.ctrl.SetField(FieldPassword, "x")
	_, err := f.ctrl.Validate()

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "username required", verr.Message(FieldUsername))
	require.Empty(t, verr.Message(FieldPassword))
}

func TestNewPanicsWithoutDependencies(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() { New(Dependencies{}) })
	require.Panics(t, func() { New(Dependencies{Gateway: &recordingGateway{}}) })
	require.Panics(t, func() { New(Dependencies{Gateway: &recordingGateway{}, Router: &recordingRouter{}}) })
}
