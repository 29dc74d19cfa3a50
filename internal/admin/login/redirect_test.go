package login

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedirectTargetFromQuery(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		query url.Values
		want  RedirectTarget
	}{
		{
			name:  "redirect stripped from other query",
			query: url.Values{"redirect": {"/dashboard"}, "foo": {"bar"}},
			want:  RedirectTarget{Path: "/dashboard", OtherQuery: url.Values{"foo": {"bar"}}},
		},
		{
			name:  "missing redirect defaults to root",
			query: url.Values{"tab": {"users"}},
			want:  RedirectTarget{Path: "/", OtherQuery: url.Values{"tab": {"users"}}},
		},
		{
			name:  "empty redirect defaults to root",
			query: url.Values{"redirect": {""}},
			want:  RedirectTarget{Path: "/", OtherQuery: url.Values{}},
		},
		{
			name:  "nil query",
			query: nil,
			want:  RedirectTarget{Path: "/", OtherQuery: url.Values{}},
		},
		{
			name:  "multi-valued params survive",
			query: url.Values{"redirect": {"/orders"}, "status": {"open", "held"}},
			want:  RedirectTarget{Path: "/orders", OtherQuery: url.Values{"status": {"open", "held"}}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RedirectTargetFromQuery(tc.query)
			require.Equal(t, tc.want, got)
			_, hasRedirect := got.OtherQuery["redirect"]
			require.False(t, hasRedirect)
		})
	}
}

func TestRedirectTargetDoesNotAliasQuery(t *testing.T) {
	t.Parallel()

	query := url.Values{"foo": {"bar"}}
	target := RedirectTargetFromQuery(query)
	query["foo"][0] = "changed"
	require.Equal(t, "bar", target.OtherQuery.Get("foo"))
}

func TestAutofillLookup(t *testing.T) {
	t.Parallel()

	autofill := Autofill{"Console.Example.com": {Username: "demo", Password: "demo-pass"}}

	creds, ok := autofill.Lookup("console.example.com:8443")
	require.True(t, ok)
	require.Equal(t, "demo", creds.Username)

	_, ok = autofill.Lookup("other.example.com")
	require.False(t, ok)

	_, ok = Autofill(nil).Lookup("console.example.com")
	require.False(t, ok)

	_, ok = autofill.Lookup("")
	require.False(t, ok)
}

func TestSocialSignInAcknowledges(t *testing.T) {
	t.Parallel()

	social := NewSocialSignIn()
	providers := social.Providers()
	require.Len(t, providers, 2)
	require.Equal(t, "WeChat", providers[0].Label)
	require.Equal(t, "QQ", providers[1].Label)

	for _, p := range providers {
		notice, err := social.Acknowledge(p.ID)
		require.NoError(t, err)
		require.Equal(t, SocialAcknowledgement, notice.Message)
		require.Equal(t, p, notice.Provider)
	}

	_, err := social.Acknowledge("github")
	require.ErrorIs(t, err, ErrUnknownProvider)
}
