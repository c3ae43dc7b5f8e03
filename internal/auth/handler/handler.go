package handler

import (
	"net/http"

	"webspec-auth/internal/auth"
	"webspec-auth/internal/auth/flow"
	"webspec-auth/internal/auth/provider"
	"webspec-auth/internal/auth/resolver"
	"webspec-auth/internal/logger"
	"webspec-auth/internal/metrics"
	"webspec-auth/internal/middleware"
	"webspec-auth/internal/session"

	"github.com/gin-gonic/gin"
)

type Deps struct {
	Flows     *flow.Service
	Providers *provider.Registry // optional, enables the extension routes
	Resolver  resolver.Resolver
	Issuer    *session.Issuer
	Auth      *middleware.AuthMiddleware
	Limiter   *middleware.RateLimiter // optional
	Metrics   *metrics.Metrics        // optional
	Cookie    flow.CookieOptions
}

type Handler struct {
	flows     *flow.Service
	providers *provider.Registry
	resolver  resolver.Resolver
	issuer    *session.Issuer
	auth      *middleware.AuthMiddleware
	limiter   *middleware.RateLimiter
	metrics   *metrics.Metrics
	cookie    flow.CookieOptions
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		flows:     d.Flows,
		providers: d.Providers,
		resolver:  d.Resolver,
		issuer:    d.Issuer,
		auth:      d.Auth,
		limiter:   d.Limiter,
		metrics:   d.Metrics,
		cookie:    d.Cookie,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/auth")
	if h.limiter != nil {
		api.Use(middleware.GinRateLimit(h.limiter, h.metrics))
	}

	api.GET("/authorization-url", h.authorizationURL)
	api.POST("/callback", h.callback)

	requireAuth := middleware.GinRequireAuth(h.auth)
	api.GET("/validate", requireAuth, h.validate)
	api.POST("/logout", requireAuth, h.logout)

	if h.providers != nil {
		api.POST("/extension/register", h.extensionRegister)
		api.GET("/extension/validate", requireAuth, h.validate)
	}

	r.GET("/api/me", requireAuth, h.me)

	for _, route := range r.Routes() {
		logger.Debug("route registered", map[string]any{
			"method": route.Method,
			"path":   route.Path,
		})
	}
}

// userView is the public shape of a principal. The internal numeric id
// never leaves the backend.
type userView struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	Provider string `json:"provider"`
}

func newUserView(p *auth.Principal) userView {
	return userView{
		ID:       p.ExternalID,
		Email:    p.Email,
		Name:     p.DisplayName,
		Avatar:   p.AvatarURL,
		Provider: p.Provider,
	}
}

// fail renders err and records the outcome of operation.
func (h *Handler) fail(c *gin.Context, operation string, err error) {
	h.metrics.ObserveAuth(operation, err)

	code := auth.CodeOf(err)
	fields := map[string]any{
		"operation": operation,
		"code":      string(code),
		"ip":        c.ClientIP(),
	}
	if code == auth.CodeInternal {
		fields["error"] = err
		logger.Error("auth request failed", fields)
	} else {
		logger.Warn("auth request rejected", fields)
	}

	c.JSON(auth.HTTPStatus(code), middleware.NewErrorBody(err))
}

func principalOf(c *gin.Context) (*auth.Principal, *session.Claims, bool) {
	p, ok := middleware.PrincipalFromContext(c.Request.Context())
	if !ok {
		return nil, nil, false
	}
	claims, ok := middleware.ClaimsFromContext(c.Request.Context())
	return p, claims, ok
}

func (h *Handler) validate(c *gin.Context) {
	p, _, ok := principalOf(c)
	if !ok {
		h.fail(c, "validate", auth.ErrUnauthenticated)
		return
	}
	h.metrics.ObserveAuth("validate", nil)

	c.JSON(http.StatusOK, gin.H{
		"valid": true,
		"user":  newUserView(p),
	})
}

func (h *Handler) logout(c *gin.Context) {
	_, claims, ok := principalOf(c)
	if !ok {
		h.fail(c, "logout", auth.ErrUnauthenticated)
		return
	}

	if err := h.issuer.Revoke(c.Request.Context(), claims); err != nil {
		h.fail(c, "logout", err)
		return
	}
	h.metrics.ObserveAuth("logout", nil)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "logged out",
	})
}

func (h *Handler) me(c *gin.Context) {
	p, _, ok := principalOf(c)
	if !ok {
		h.fail(c, "me", auth.ErrUnauthenticated)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":            newUserView(p),
		"email_verified":  p.EmailVerified,
		"locale":          p.Locale,
		"hosted_domain":   p.HostedDomain,
		"needs_review":    p.NeedsReview,
		"last_profile_at": p.LastProfileSync,
	})
}
