package middleware

import (
	"github.com/gin-gonic/gin"

	"starterkit/api/internal/metrics"
)

// Metrics records request counts and latency by matched route, not raw path.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		done := m.HTTPStarted()
		c.Next()
		done(c.Request.Method, c.FullPath(), c.Writer.Status())
	}
}
