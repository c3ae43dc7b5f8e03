package middleware

import (
	"time"

	"webspec-auth/internal/metrics"

	"github.com/gin-gonic/gin"
)

// GinMetrics records count and latency of every request by route template.
func GinMetrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
