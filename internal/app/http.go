package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"webspec-auth/internal/auth"
	"webspec-auth/internal/auth/flow"
	"webspec-auth/internal/auth/handler"
	"webspec-auth/internal/auth/provider"
	"webspec-auth/internal/auth/provider/google"
	"webspec-auth/internal/auth/provider/keycloak"
	"webspec-auth/internal/auth/resolver"
	"webspec-auth/internal/config"
	"webspec-auth/internal/logger"
	"webspec-auth/internal/metrics"
	"webspec-auth/internal/middleware"
	"webspec-auth/internal/session"

	"github.com/gin-gonic/gin"
)

const version = "1.0.0"

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	registry, err := setupProviders(ctx, cfg)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	router, err := newRouter(cfg, infra, registry)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	return router, infra.Close, nil
}

func setupProviders(ctx context.Context, cfg config.Config) (*provider.Registry, error) {
	googleProvider, err := google.New(
		ctx,
		cfg.GoogleClientID,
		cfg.GoogleClientSecret,
		cfg.ProviderTimeout,
	)
	if err != nil {
		return nil, err
	}

	providers := []provider.OAuthProvider{googleProvider}

	if cfg.KeycloakEnabled() {
		keycloakProvider, err := keycloak.New(
			ctx,
			cfg.KeycloakIssuer,
			cfg.KeycloakClientID,
			cfg.KeycloakClientSecret,
			cfg.KeycloakPublicBaseURL,
			cfg.ProviderTimeout,
		)
		if err != nil {
			return nil, err
		}
		providers = append(providers, keycloakProvider)
	}

	registry := provider.NewRegistry(providers...)
	logger.Info("oauth providers ready", map[string]any{
		"providers": registry.Names(),
	})
	return registry, nil
}

// newRouter wires the HTTP surface on top of already opened infrastructure.
func newRouter(cfg config.Config, infra *Infra, registry *provider.Registry) (*gin.Engine, error) {
	signer, err := session.NewSigner(cfg.JWTSecret, cfg.SessionTTL, nil)
	if err != nil {
		return nil, err
	}

	m := metrics.New()

	flows := flow.NewService(flow.Options{
		Store:              infra.Flows,
		AllowList:          auth.NewRedirectAllowList(cfg.AllowedRedirectURIs...),
		Providers:          registry,
		DefaultRedirectURI: cfg.DefaultRedirectURI,
		TTL:                cfg.PendingFlowTTL,
	})

	validator := session.NewValidator(signer, infra.Store, session.Policy(cfg.SessionPolicy))

	authHandler := handler.NewHandler(handler.Deps{
		Flows:     flows,
		Providers: registry,
		Resolver:  resolver.NewStoreResolver(infra.Store),
		Issuer:    session.NewIssuer(signer, infra.Store),
		Auth:      middleware.NewAuthMiddleware(validator),
		Limiter:   middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Metrics:   m,
		Cookie:    flow.CookieOptions{Secure: cfg.CookieSecure},
	})

	if cfg.AppEnv == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()

	// nil trusts no proxy, so ClientIP is the socket peer and the per-IP
	// limiter cannot be dodged with a forged X-Forwarded-For
	var proxies []string
	if len(cfg.TrustedProxies) > 0 {
		proxies = cfg.TrustedProxies
	}
	if err := router.SetTrustedProxies(proxies); err != nil {
		return nil, fmt.Errorf("app: trusted proxies: %w", err)
	}

	router.Use(gin.Recovery())
	router.Use(middleware.GinMetrics(m))
	router.Use(middleware.GinCORS(cfg.CORSAllowedOrigins))

	// ----------------------------
	// Public Routes
	// ----------------------------

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   version,
		})
	})

	router.GET("/metrics", gin.WrapH(m.Handler()))

	// ----------------------------
	// Auth + Protected API Routes
	// ----------------------------

	authHandler.RegisterRoutes(router)

	logger.Info("session policy", map[string]any{
		"policy": string(validator.Policy()),
		"ttl":    cfg.SessionTTL.String(),
	})

	return router, nil
}
