package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Recovery turns a handler panic into a 500 that carries the request id, so a
// user report can be matched to the logged stack. http.ErrAbortHandler is
// re-raised for net/http to drop the connection quietly.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "recovery").Logger()

	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if err, ok := r.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(r)
			}

			requestID := RequestIDFrom(c)
			event := log.Error().
				Interface("panic", r).
				Str("method", c.Request.Method).
				Str("route", c.FullPath()).
				Str("request_id", requestID).
				Bytes("stack", debug.Stack())
			if claims, ok := Claims(c); ok {
				event = event.Str("user_id", claims.UserID())
			}
			event.Msg("handler panicked")

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":     "internal_error",
				"requestId": requestID,
			})
		}()
		c.Next()
	}
}
