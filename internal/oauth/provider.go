// Package oauth runs the authorization-code flow with PKCE against the supported
// identity providers and maps their user-info responses onto OAuthIdentity.
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"starterkit/api/internal/config"
	"starterkit/api/internal/models"
)

var (
	ErrUnknownProvider = errors.New("unknown oauth provider")
	ErrExchange        = errors.New("oauth code exchange failed")
	ErrProfile         = errors.New("oauth profile fetch failed")
)

const maxResponseBytes = 1 << 20

type Endpoints struct {
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	// EmailsURL lists addresses with their verification state when the profile
	// itself does not say.
	EmailsURL string
}

// ProfilePaths are gjson paths into the user-info document.
type ProfilePaths struct {
	ID            string
	Email         string
	EmailVerified string
	Name          string
	Picture       string
}

type Provider struct {
	id           string
	clientID     string
	clientSecret string
	scopes       []string
	endpoints    Endpoints
	paths        ProfilePaths
	httpClient   *http.Client
}

type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresAt    *time.Time
}

func Google(cfg config.OAuthClientConfig, endpoints Endpoints) *Provider {
	if endpoints == (Endpoints{}) {
		endpoints = Endpoints{
			AuthURL:     "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:    "https://oauth2.googleapis.com/token",
			UserInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
		}
	}
	return &Provider{
		id:           "google",
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		scopes:       []string{"openid", "email", "profile"},
		endpoints:    endpoints,
		paths: ProfilePaths{
			ID:            "sub",
			Email:         "email",
			EmailVerified: "email_verified",
			Name:          "name",
			Picture:       "picture",
		},
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func GitHub(cfg config.OAuthClientConfig, endpoints Endpoints) *Provider {
	if endpoints == (Endpoints{}) {
		endpoints = Endpoints{
			AuthURL:     "https://github.com/login/oauth/authorize",
			TokenURL:    "https://github.com/login/oauth/access_token",
			UserInfoURL: "https://api.github.com/user",
			EmailsURL:   "https://api.github.com/user/emails",
		}
	}
	return &Provider{
		id:           "github",
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		scopes:       []string{"read:user", "user:email"},
		endpoints:    endpoints,
		paths: ProfilePaths{
			ID:      "id",
			Email:   "email",
			Name:    "name",
			Picture: "avatar_url",
		},
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *Provider) ID() string {
	return p.id
}

// Flow is the per-attempt state kept in a cookie between redirect and callback.
type Flow struct {
	State    string
	Verifier string
	// Callback is where the user goes after signing in.
	Callback string
}

func NewFlow() (Flow, error) {
	state, err := randomString(24)
	if err != nil {
		return Flow{}, fmt.Errorf("generate state: %w", err)
	}
	verifier, err := randomString(48)
	if err != nil {
		return Flow{}, fmt.Errorf("generate code verifier: %w", err)
	}
	return Flow{State: state, Verifier: verifier}, nil
}

// Encode packs the flow into a cookie-safe value.
func (f Flow) Encode() string {
	return f.State + "." + f.Verifier + "." + base64.RawURLEncoding.EncodeToString([]byte(f.Callback))
}

func DecodeFlow(value string) (Flow, bool) {
	parts := strings.Split(value, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return Flow{}, false
	}
	callback, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return Flow{}, false
	}
	return Flow{State: parts[0], Verifier: parts[1], Callback: string(callback)}, true
}

// AuthCodeURL is where the browser is sent to authorize.
func (p *Provider) AuthCodeURL(flow Flow, redirectURI string) string {
	params := url.Values{}
	params.Set("client_id", p.clientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", redirectURI)
	params.Set("scope", strings.Join(p.scopes, " "))
	params.Set("state", flow.State)
	params.Set("code_challenge", codeChallenge(flow.Verifier))
	params.Set("code_challenge_method", "S256")
	return p.endpoints.AuthURL + "?" + params.Encode()
}

func (p *Provider) Exchange(ctx context.Context, code string, verifier string, redirectURI string) (Token, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", redirectURI)
	data.Set("client_id", p.clientID)
	data.Set("client_secret", p.clientSecret)
	data.Set("code_verifier", verifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoints.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrExchange, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, status, err := p.do(req)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrExchange, err)
	}
	doc := gjson.ParseBytes(body)
	if status != http.StatusOK || doc.Get("error").Exists() {
		return Token{}, fmt.Errorf("%w: status %d: %s %s", ErrExchange, status,
			doc.Get("error").String(), doc.Get("error_description").String())
	}

	token := Token{
		AccessToken:  doc.Get("access_token").String(),
		RefreshToken: doc.Get("refresh_token").String(),
		TokenType:    doc.Get("token_type").String(),
		Scope:        doc.Get("scope").String(),
	}
	if token.AccessToken == "" {
		return Token{}, fmt.Errorf("%w: no access token in response", ErrExchange)
	}
	if secs := doc.Get("expires_in").Int(); secs > 0 {
		exp := time.Now().Add(time.Duration(secs) * time.Second).UTC()
		token.ExpiresAt = &exp
	}
	return token, nil
}

// Identity fetches the user profile for token.
func (p *Provider) Identity(ctx context.Context, token Token) (models.OAuthIdentity, error) {
	doc, err := p.getJSON(ctx, p.endpoints.UserInfoURL, token.AccessToken)
	if err != nil {
		return models.OAuthIdentity{}, err
	}

	identity := models.OAuthIdentity{
		Provider:          p.id,
		ProviderAccountID: doc.Get(p.paths.ID).String(),
		Email:             strings.ToLower(strings.TrimSpace(doc.Get(p.paths.Email).String())),
		Name:              doc.Get(p.paths.Name).String(),
		Picture:           doc.Get(p.paths.Picture).String(),
		AccessToken:       token.AccessToken,
		RefreshToken:      token.RefreshToken,
		TokenType:         token.TokenType,
		Scope:             token.Scope,
		ExpiresAt:         token.ExpiresAt,
	}
	if p.paths.EmailVerified != "" {
		identity.EmailVerified = doc.Get(p.paths.EmailVerified).Bool()
	}
	if identity.Name == "" {
		identity.Name = doc.Get("login").String()
	}

	if p.endpoints.EmailsURL != "" {
		if err := p.resolveEmail(ctx, token.AccessToken, &identity); err != nil {
			return models.OAuthIdentity{}, err
		}
	}

	if identity.ProviderAccountID == "" || identity.Email == "" {
		return models.OAuthIdentity{}, fmt.Errorf("%w: profile has no id or email", ErrProfile)
	}
	return identity, nil
}

// resolveEmail prefers the primary verified address from the emails listing.
func (p *Provider) resolveEmail(ctx context.Context, accessToken string, identity *models.OAuthIdentity) error {
	doc, err := p.getJSON(ctx, p.endpoints.EmailsURL, accessToken)
	if err != nil {
		return err
	}

	primary := doc.Get(`#(primary==true)`)
	if primary.Exists() {
		identity.Email = strings.ToLower(primary.Get("email").String())
		identity.EmailVerified = primary.Get("verified").Bool()
		return nil
	}
	if identity.Email != "" {
		match := doc.Get(fmt.Sprintf(`#(email==%q)`, identity.Email))
		identity.EmailVerified = match.Get("verified").Bool()
	}
	return nil
}

func (p *Provider) getJSON(ctx context.Context, endpoint string, accessToken string) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: %v", ErrProfile, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	body, status, err := p.do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: %v", ErrProfile, err)
	}
	if status != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("%w: %s returned %d", ErrProfile, endpoint, status)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%w: invalid json from %s", ErrProfile, endpoint)
	}
	return gjson.ParseBytes(body), nil
}

func (p *Provider) do(req *http.Request) ([]byte, int, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func codeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Providers indexes the enabled providers by id.
type Providers map[string]*Provider

func NewProviders(cfg config.OAuthConfig) Providers {
	out := Providers{}
	if cfg.Google.Enabled() {
		out["google"] = Google(cfg.Google, Endpoints{})
	}
	if cfg.GitHub.Enabled() {
		out["github"] = GitHub(cfg.GitHub, Endpoints{})
	}
	return out
}

func (p Providers) Get(id string) (*Provider, error) {
	provider, ok := p[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	return provider, nil
}
