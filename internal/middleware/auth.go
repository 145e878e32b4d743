package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RevocationChecker reports whether a token id was signed out.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) bool
}

// RequireSession rejects requests without a live session. It runs after Edge,
// adding the revocation check the edge layer cannot make.
func RequireSession(revocations RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if revocations != nil && revocations.IsRevoked(c.Request.Context(), claims.ID) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session_revoked"})
			return
		}

		c.Next()
	}
}
