package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"starterkit/api/internal/auth"
	"starterkit/api/internal/middleware"
	"starterkit/api/internal/oauth"
	"starterkit/api/internal/repository"
	"starterkit/api/internal/service"
)

// Error codes handed to the sign-in page after a failed OAuth round trip.
const (
	oauthErrorState         = "OAuthState"
	oauthErrorCallback      = "OAuthCallback"
	oauthErrorNotLinked     = "OAuthAccountNotLinked"
	oauthErrorAccessDenied  = "AccessDenied"
	oauthErrorConfiguration = "Configuration"
)

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=128"`
	Name     string `json:"name" binding:"max=120"`
}

type credentialsRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required"`
	CallbackURL string `json:"callbackUrl"`
}

type signInResponse struct {
	URL  string           `json:"url"`
	User auth.SessionUser `json:"user"`
}

func (h HandlerSet) CSRF(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"csrfToken": middleware.CSRFToken(c)})
}

func (h HandlerSet) Providers(c *gin.Context) {
	out := make(map[string]auth.ProviderInfo, len(h.authCfg.Providers))
	for _, p := range h.authCfg.Providers {
		out[p.ID] = p
	}
	c.JSON(http.StatusOK, out)
}

// Session answers with an empty object when there is no live session.
func (h HandlerSet) Session(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok || h.authService.IsRevoked(c.Request.Context(), claims.ID) {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, auth.Session(claims))
}

func (h HandlerSet) RegisterUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": err.Error()})
		return
	}

	result, err := h.authService.Register(c.Request.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		h.writeAuthError(c, err)
		return
	}

	http.SetCookie(c.Writer, h.authCfg.SessionCookie(result.Token))
	c.JSON(http.StatusCreated, signInResponse{
		URL:  h.authCfg.Pages.Landing,
		User: auth.Session(result.Claims).User,
	})
}

func (h HandlerSet) SignInCredentials(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": err.Error()})
		return
	}

	result, err := h.authService.SignInWithCredentials(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAuthError(c, err)
		return
	}

	h.signInLimiter.Reset(c.Request.Context(), middleware.IPAndEmailKey(c))
	http.SetCookie(c.Writer, h.authCfg.SessionCookie(result.Token))
	c.JSON(http.StatusOK, signInResponse{
		URL:  auth.SafeCallback(req.CallbackURL, h.authCfg.Pages.Landing),
		User: auth.Session(result.Claims).User,
	})
}

func (h HandlerSet) SignOut(c *gin.Context) {
	if claims, ok := middleware.Claims(c); ok {
		h.authService.SignOut(c.Request.Context(), claims)
	}
	http.SetCookie(c.Writer, h.authCfg.ClearSessionCookie())
	c.JSON(http.StatusOK, gin.H{"url": "/"})
}

// SignInOAuth starts the provider round trip. The state, PKCE verifier and
// callback ride in a short-lived cookie scoped to the callback path.
func (h HandlerSet) SignInOAuth(c *gin.Context) {
	redirect, flow, err := h.authService.StartOAuth(c.Param("provider"), c.Query("callbackUrl"))
	if err != nil {
		if errors.Is(err, oauth.ErrUnknownProvider) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown_provider"})
			return
		}
		h.log.Error().Err(err).Msg("oauth start failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	http.SetCookie(c.Writer, h.authCfg.StateCookie(flow.Encode()))
	c.Redirect(http.StatusFound, redirect)
}

func (h HandlerSet) CallbackOAuth(c *gin.Context) {
	provider := c.Param("provider")
	raw, _ := c.Cookie(h.authCfg.Cookies.StateName)
	http.SetCookie(c.Writer, h.authCfg.ClearStateCookie())

	if providerErr := c.Query("error"); providerErr != "" {
		h.log.Info().Str("provider", provider).Str("reason", providerErr).Msg("oauth denied by provider")
		h.oauthFailure(c, oauthErrorAccessDenied)
		return
	}

	flow, ok := oauth.DecodeFlow(raw)
	if !ok || subtle.ConstantTimeCompare([]byte(flow.State), []byte(c.Query("state"))) != 1 {
		h.oauthFailure(c, oauthErrorState)
		return
	}

	result, err := h.authService.SignInWithOAuth(c.Request.Context(), provider, c.Query("code"), flow.Verifier)
	if err != nil {
		code := oauthErrorCallback
		switch {
		case errors.Is(err, repository.ErrAccountNotLinked):
			code = oauthErrorNotLinked
		case errors.Is(err, service.ErrUserSuspended):
			code = oauthErrorAccessDenied
		case errors.Is(err, oauth.ErrUnknownProvider):
			code = oauthErrorConfiguration
		}
		h.oauthFailure(c, code)
		return
	}

	http.SetCookie(c.Writer, h.authCfg.SessionCookie(result.Token))
	c.Redirect(http.StatusFound, auth.SafeCallback(flow.Callback, h.authCfg.Pages.Landing))
}

func (h HandlerSet) oauthFailure(c *gin.Context, code string) {
	c.Redirect(http.StatusFound, h.authCfg.Pages.SignIn+"?error="+url.QueryEscape(code))
}

func (h HandlerSet) writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": err.Error()})
	case errors.Is(err, repository.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "email_taken"})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
	case errors.Is(err, service.ErrUserSuspended):
		c.JSON(http.StatusForbidden, gin.H{"error": "account_suspended"})
	default:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication_failed"})
	}
}
