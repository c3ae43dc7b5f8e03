package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GinPrincipalKey holds the *auth.Principal in the gin context as well.
const GinPrincipalKey = "principal"

// GinRequireAuth runs RequireAuth in front of the remaining gin chain.
// Handlers read the principal with PrincipalFromContext(c.Request.Context())
// or c.Get(GinPrincipalKey).
func GinRequireAuth(a *AuthMiddleware) gin.HandlerFunc {
	return func(c *gin.Context) {
		passed := false

		a.RequireAuth(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
		})).ServeHTTP(c.Writer, c.Request)

		// RequireAuth already wrote the error response
		if !passed {
			c.Abort()
			return
		}

		if p, ok := PrincipalFromContext(c.Request.Context()); ok {
			c.Set(GinPrincipalKey, p)
		}
		c.Next()
	}
}
