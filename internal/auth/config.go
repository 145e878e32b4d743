// Package auth is the configuration shared by the edge route authorizer and the
// sign-in service: providers, cookie and session policy, pages, and the
// callback that turns verified token claims into a session view.
package auth

import (
	"net/http"
	"strings"
	"time"

	"starterkit/api/internal/config"
	"starterkit/api/internal/security"
)

const (
	ProviderCredentials = "credentials"
	ProviderGoogle      = "google"
	ProviderGitHub      = "github"

	SessionStrategyJWT = "jwt"

	secureCookiePrefix = "__Secure-"
	stateCookieMaxAge  = 10 * time.Minute
)

type Pages struct {
	SignIn  string
	Landing string
}

type ProviderInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	SignInURL   string `json:"signinUrl"`
	CallbackURL string `json:"callbackUrl"`
}

type SessionPolicy struct {
	Strategy  string
	MaxAge    time.Duration
	UpdateAge time.Duration
}

type CookiePolicy struct {
	SessionName string
	CSRFName    string
	StateName   string
	Secure      bool
	SameSite    http.SameSite
}

// Config is built once at startup and passed to both auth layers.
type Config struct {
	Providers []ProviderInfo
	Session   SessionPolicy
	Cookies   CookiePolicy
	Pages     Pages
	Routes    Routes
	Tokens    *security.TokenManager
	PublicURL string
}

func NewConfig(cfg *config.AppConfig) *Config {
	publicURL := strings.TrimRight(cfg.HTTP.PublicURL, "/")

	return &Config{
		Providers: providers(cfg.OAuth, publicURL),
		Session: SessionPolicy{
			Strategy:  SessionStrategyJWT,
			MaxAge:    cfg.Security.SessionMaxAge,
			UpdateAge: cfg.Security.SessionUpdateAge,
		},
		Cookies: NewCookiePolicy(cfg.IsProduction()),
		Pages: Pages{
			SignIn:  "/login",
			Landing: "/dashboard",
		},
		Routes:    DefaultRoutes(),
		Tokens:    security.NewTokenManager(cfg.Security.AuthSecret, cfg.Security.SessionMaxAge, cfg.Security.SessionUpdateAge),
		PublicURL: publicURL,
	}
}

// NewCookiePolicy prefixes cookie names with __Secure- and sets Secure in production.
func NewCookiePolicy(production bool) CookiePolicy {
	policy := CookiePolicy{
		SessionName: "starter.session-token",
		CSRFName:    "starter.csrf-token",
		StateName:   "starter.oauth-state",
		SameSite:    http.SameSiteLaxMode,
	}
	if production {
		policy.Secure = true
		policy.SessionName = secureCookiePrefix + policy.SessionName
		policy.CSRFName = secureCookiePrefix + policy.CSRFName
		policy.StateName = secureCookiePrefix + policy.StateName
	}
	return policy
}

func providers(cfg config.OAuthConfig, publicURL string) []ProviderInfo {
	list := []ProviderInfo{newProviderInfo(ProviderCredentials, "Credentials", "credentials", publicURL)}
	if cfg.Google.Enabled() {
		list = append(list, newProviderInfo(ProviderGoogle, "Google", "oauth", publicURL))
	}
	if cfg.GitHub.Enabled() {
		list = append(list, newProviderInfo(ProviderGitHub, "GitHub", "oauth", publicURL))
	}
	return list
}

func newProviderInfo(id, name, kind, publicURL string) ProviderInfo {
	return ProviderInfo{
		ID:          id,
		Name:        name,
		Type:        kind,
		SignInURL:   publicURL + "/api/auth/signin/" + id,
		CallbackURL: publicURL + "/api/auth/callback/" + id,
	}
}

// Provider looks up an enabled provider by id.
func (c *Config) Provider(id string) (ProviderInfo, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderInfo{}, false
}

// SessionCookie carries a signed session token for MaxAge.
func (c *Config) SessionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     c.Cookies.SessionName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.Session.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Cookies.Secure,
		SameSite: c.Cookies.SameSite,
	}
}

func (c *Config) ClearSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     c.Cookies.SessionName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Cookies.Secure,
		SameSite: c.Cookies.SameSite,
	}
}

// StateCookie holds the OAuth state and PKCE verifier between redirect and callback.
func (c *Config) StateCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     c.Cookies.StateName,
		Value:    value,
		Path:     "/api/auth/callback",
		MaxAge:   int(stateCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c *Config) ClearStateCookie() *http.Cookie {
	cookie := c.StateCookie("")
	cookie.MaxAge = -1
	return cookie
}

type SessionUser struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Image string `json:"image,omitempty"`
	Role  string `json:"role"`
}

// SessionView is what clients see of their session.
type SessionView struct {
	User    SessionUser `json:"user"`
	Expires time.Time   `json:"expires"`
}

// Session copies the user id and role from verified claims into the view.
func Session(claims *security.SessionClaims) SessionView {
	view := SessionView{
		User: SessionUser{
			ID:    claims.UserID(),
			Name:  claims.Name,
			Email: claims.Email,
			Image: claims.Picture,
			Role:  claims.Role,
		},
	}
	if claims.ExpiresAt != nil {
		view.Expires = claims.ExpiresAt.Time.UTC()
	}
	return view
}
