package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starterkit/api/internal/config"
)

var creds = config.OAuthClientConfig{ClientID: "client-id", ClientSecret: "client-secret"}

func fakeGitHub(t *testing.T, emails string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" || r.Form.Get("code_verifier") == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"bad_verification_code","error_description":"The code passed is incorrect"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_abc","token_type":"bearer","scope":"read:user,user:email"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gho_abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":42,"login":"octocat","name":"","email":null,"avatar_url":"https://avatars.example.com/42"}`))
	})
	mux.HandleFunc("/emails", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(emails))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func githubAt(srv *httptest.Server) *Provider {
	return GitHub(creds, Endpoints{
		AuthURL:     srv.URL + "/authorize",
		TokenURL:    srv.URL + "/token",
		UserInfoURL: srv.URL + "/user",
		EmailsURL:   srv.URL + "/emails",
	})
}

func TestAuthCodeURL(t *testing.T) {
	flow, err := NewFlow()
	require.NoError(t, err)

	p := Google(creds, Endpoints{})
	raw := p.AuthCodeURL(flow, "https://app.example.com/api/auth/callback/google")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "accounts.google.com", u.Host)
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, flow.State, q.Get("state"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, codeChallenge(flow.Verifier), q.Get("code_challenge"))
	assert.NotEqual(t, flow.Verifier, q.Get("code_challenge"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
}

func TestFlowEncodeDecode(t *testing.T) {
	flow, err := NewFlow()
	require.NoError(t, err)

	decoded, ok := DecodeFlow(flow.Encode())
	require.True(t, ok)
	assert.Equal(t, flow, decoded)

	flow.Callback = "/settings?tab=a.b"
	decoded, ok = DecodeFlow(flow.Encode())
	require.True(t, ok)
	assert.Equal(t, "/settings?tab=a.b", decoded.Callback)

	for _, bad := range []string{"no-separator", ".verifier.", "state.verifier", "state.verifier.!!"} {
		_, ok = DecodeFlow(bad)
		assert.False(t, ok, bad)
	}
}

func TestGitHubExchangeAndIdentity(t *testing.T) {
	srv := fakeGitHub(t, `[
		{"email":"old@example.com","primary":false,"verified":true},
		{"email":"Octo@Example.com","primary":true,"verified":true}
	]`)
	p := githubAt(srv)
	ctx := context.Background()

	token, err := p.Exchange(ctx, "good-code", "verifier", "https://app.example.com/cb")
	require.NoError(t, err)
	assert.Equal(t, "gho_abc", token.AccessToken)
	assert.Nil(t, token.ExpiresAt)

	identity, err := p.Identity(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "github", identity.Provider)
	assert.Equal(t, "42", identity.ProviderAccountID)
	assert.Equal(t, "octo@example.com", identity.Email)
	assert.True(t, identity.EmailVerified)
	assert.Equal(t, "octocat", identity.Name, "falls back to login")
	assert.Equal(t, "https://avatars.example.com/42", identity.Picture)
	assert.Equal(t, "gho_abc", identity.AccessToken)
}

func TestGitHubUnverifiedPrimaryEmail(t *testing.T) {
	srv := fakeGitHub(t, `[{"email":"octo@example.com","primary":true,"verified":false}]`)
	p := githubAt(srv)

	identity, err := p.Identity(context.Background(), Token{AccessToken: "gho_abc"})
	require.NoError(t, err)
	assert.False(t, identity.EmailVerified)
}

func TestExchangeRejected(t *testing.T) {
	srv := fakeGitHub(t, `[]`)
	p := githubAt(srv)

	_, err := p.Exchange(context.Background(), "bad-code", "verifier", "https://app.example.com/cb")
	require.ErrorIs(t, err, ErrExchange)
	assert.Contains(t, err.Error(), "bad_verification_code")
}

func TestIdentityWithoutEmail(t *testing.T) {
	srv := fakeGitHub(t, `[]`)
	p := githubAt(srv)

	_, err := p.Identity(context.Background(), Token{AccessToken: "gho_abc"})
	assert.ErrorIs(t, err, ErrProfile)
}

func TestGoogleIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			_, _ = w.Write([]byte(`{"access_token":"ya29","refresh_token":"1//r","expires_in":3599,"token_type":"Bearer","scope":"openid email"}`))
		case "/userinfo":
			_, _ = w.Write([]byte(`{"sub":"1090","email":"ada@example.com","email_verified":true,"name":"Ada","picture":"https://lh3/pic"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	p := Google(creds, Endpoints{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token", UserInfoURL: srv.URL + "/userinfo"})
	token, err := p.Exchange(context.Background(), "code", "verifier", "https://app.example.com/cb")
	require.NoError(t, err)
	require.NotNil(t, token.ExpiresAt)
	assert.Equal(t, "1//r", token.RefreshToken)

	identity, err := p.Identity(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "1090", identity.ProviderAccountID)
	assert.True(t, identity.EmailVerified)
	assert.Equal(t, "Ada", identity.Name)
}

func TestProviders(t *testing.T) {
	providers := NewProviders(config.OAuthConfig{GitHub: creds})

	p, err := providers.Get("github")
	require.NoError(t, err)
	assert.Equal(t, "github", p.ID())

	_, err = providers.Get("google")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
