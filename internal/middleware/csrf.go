package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/csrf"

	"starterkit/api/internal/auth"
)

const (
	CSRFHeader   = "X-CSRF-Token"
	csrfTokenKey = "csrf_token"
)

// CSRF protects unsafe methods with a double-submit token. Requests carrying a
// bearer token are exempt since browsers never attach one on their own.
func CSRF(secret []byte, cookies auth.CookiePolicy) gin.HandlerFunc {
	protect := csrf.Protect(
		secret,
		csrf.CookieName(cookies.CSRFName),
		csrf.Secure(cookies.Secure),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.Path("/"),
		csrf.RequestHeader(CSRFHeader),
		csrf.ErrorHandler(http.HandlerFunc(csrfErrorHandler)),
	)

	return func(c *gin.Context) {
		if _, fromCookie := sessionToken(c, cookies.SessionName); !fromCookie && c.GetHeader("Authorization") != "" {
			c.Next()
			return
		}

		req := c.Request
		if !cookies.Secure {
			req = csrf.PlaintextHTTPRequest(req)
		}

		passed := false
		protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			passed = true
			c.Set(csrfTokenKey, csrf.Token(r))
			c.Request = r
			c.Next()
		})).ServeHTTP(c.Writer, req)

		if !passed {
			c.Abort()
		}
	}
}

func csrfErrorHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"error":"csrf_invalid"}`))
}

// CSRFToken returns the token for the current request, empty outside CSRF.
func CSRFToken(c *gin.Context) string {
	return c.GetString(csrfTokenKey)
}
