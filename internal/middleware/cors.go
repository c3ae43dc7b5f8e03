package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// GinCORS answers for the configured origins only. "*" reflects any origin,
// since credentials are allowed and a literal wildcard would be rejected.
func GinCORS(allowed []string) gin.HandlerFunc {
	trim := func(s string) string { return strings.TrimRight(strings.TrimSpace(s), "/") }

	origins := make([]string, 0, len(allowed))
	for _, o := range allowed {
		if o = trim(o); o != "" {
			origins = append(origins, o)
		}
	}

	return func(c *gin.Context) {
		origin := trim(c.GetHeader("Origin"))

		allowedOrigin := ""
		for _, o := range origins {
			if origin != "" && (o == "*" || strings.EqualFold(origin, o)) {
				allowedOrigin = origin
				break
			}
		}

		h := c.Writer.Header()
		h.Add("Vary", "Origin")

		if allowedOrigin != "" {
			h.Set("Access-Control-Allow-Origin", allowedOrigin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Set("Access-Control-Expose-Headers", "WWW-Authenticate, Retry-After")
			h.Set("Access-Control-Max-Age", "600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
