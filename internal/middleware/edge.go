package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"starterkit/api/internal/auth"
	"starterkit/api/internal/security"
)

const claimsKey = "session_claims"

// DecisionObserver receives every route decision, e.g. for metrics.
type DecisionObserver interface {
	AuthDecision(category, action string)
}

// Edge authorizes every request from the session token alone, without touching
// the database or cache. Valid tokens older than the update age are re-issued
// into the cookie so active sessions slide forward.
func Edge(cfg *auth.Config, log zerolog.Logger, observer DecisionObserver) gin.HandlerFunc {
	log = log.With().Str("component", "edge").Logger()

	return func(c *gin.Context) {
		token, fromCookie := sessionToken(c, cfg.Cookies.SessionName)

		var claims *security.SessionClaims
		if token != "" {
			parsed, err := cfg.Tokens.Parse(token)
			if err != nil {
				log.Debug().Err(err).Str("request_id", RequestIDFrom(c)).Msg("session token rejected")
				if fromCookie {
					http.SetCookie(c.Writer, cfg.ClearSessionCookie())
				}
			} else {
				claims = parsed
			}
		}

		if claims != nil && fromCookie && cfg.Tokens.NeedsRefresh(claims) {
			refreshed, next, err := cfg.Tokens.Refresh(claims)
			if err != nil {
				log.Error().Err(err).Str("request_id", RequestIDFrom(c)).Msg("session refresh failed")
			} else {
				http.SetCookie(c.Writer, cfg.SessionCookie(refreshed))
				claims = next
			}
		}

		if claims != nil {
			c.Set(claimsKey, claims)
		}

		decision := cfg.Routes.Decide(cfg.Pages, c.Request.URL.Path, c.Request.URL.RawQuery, claims != nil)
		if observer != nil {
			observer.AuthDecision(string(decision.Category), string(decision.Action))
		}

		log.Info().
			Str("request_id", RequestIDFrom(c)).
			Str("path", c.Request.URL.Path).
			Str("category", string(decision.Category)).
			Str("action", string(decision.Action)).
			Bool("authenticated", claims != nil).
			Str("location", decision.Location).
			Msg("route decision")

		if decision.Action == auth.ActionRedirect {
			c.Redirect(http.StatusFound, decision.Location)
			c.Abort()
			return
		}

		c.Next()
	}
}

// sessionToken prefers the cookie and falls back to a bearer header.
func sessionToken(c *gin.Context, cookieName string) (string, bool) {
	if cookie, err := c.Cookie(cookieName); err == nil && cookie != "" {
		return cookie, true
	}
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:]), false
	}
	return "", false
}

// Claims returns the verified session claims set by Edge.
func Claims(c *gin.Context) (*security.SessionClaims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*security.SessionClaims)
	return claims, ok && claims != nil
}

// SessionToken is the raw token of the current request, if any.
func SessionToken(c *gin.Context, cfg *auth.Config) string {
	token, _ := sessionToken(c, cfg.Cookies.SessionName)
	return token
}
