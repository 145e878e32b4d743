package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"starterkit/api/internal/ratelimit"
)

// Limiter is the fixed-window limiter contract the middleware needs.
type Limiter interface {
	Allow(ctx context.Context, key string) ratelimit.Result
}

// KeyFunc derives the rate limit key of a request. An empty key skips limiting.
type KeyFunc func(c *gin.Context) string

func ClientIPKey(c *gin.Context) string {
	return c.ClientIP()
}

// IPAndEmailKey keys on the client and the submitted email together. The JSON
// body is cached so the handler can bind it again with ShouldBindBodyWith.
func IPAndEmailKey(c *gin.Context) string {
	var body struct {
		Email string `json:"email"`
	}
	_ = c.ShouldBindBodyWith(&body, binding.JSON)
	email := strings.ToLower(strings.TrimSpace(body.Email))
	return c.ClientIP() + "|" + email
}

// RateLimit answers 429 with Retry-After once the key is over its limit. An
// unavailable limiter lets the request through.
func RateLimit(limiter Limiter, key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		k := key(c)
		if k == "" {
			c.Next()
			return
		}

		res := limiter.Allow(c.Request.Context(), k)
		if !res.Error {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		}
		if res.Limited {
			seconds := int(math.Ceil(res.RetryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}

		c.Next()
	}
}
