package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	PolicySessionTable = "session-table"
	PolicyTokenOnly    = "token-only"

	StoreMemory = "memory"
	StoreRedis  = "redis"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	AppPort  string `env:"APP_PORT" envDefault:"5001"`
	AppEnv   string `env:"APP_ENV" envDefault:"dev"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`

	KeycloakIssuer        string `env:"KEYCLOAK_ISSUER"`
	KeycloakClientID      string `env:"KEYCLOAK_CLIENT_ID"`
	KeycloakClientSecret  string `env:"KEYCLOAK_CLIENT_SECRET"`
	KeycloakPublicBaseURL string `env:"KEYCLOAK_PUBLIC_BASE_URL"`

	AllowedRedirectURIs []string `env:"ALLOWED_REDIRECT_URIS" envSeparator:"," envDefault:"http://localhost:3000/auth/google/callback,http://localhost:8888/auth/callback,http://localhost:8889/auth/callback"`
	DefaultRedirectURI  string   `env:"DEFAULT_REDIRECT_URI" envDefault:"http://localhost:3000/auth/google/callback"`

	JWTSecret     string        `env:"JWT_SECRET"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	SessionPolicy string        `env:"SESSION_POLICY" envDefault:"session-table"`

	PendingFlowTTL   time.Duration `env:"PENDING_FLOW_TTL" envDefault:"10m"`
	PendingFlowStore string        `env:"PENDING_FLOW_STORE" envDefault:"memory"`

	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`

	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"sqlite"`
	DatabaseDSN   string `env:"DATABASE_DSN" envDefault:"database/web-spec.db"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	// TrustedProxies may set X-Forwarded-For. Empty trusts no proxy and
	// the client IP is always the socket peer.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	RateLimitRPS   int `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst int `env:"RATE_LIMIT_BURST" envDefault:"20"`

	CookieSecure bool `env:"COOKIE_SECURE" envDefault:"false"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.AllowedRedirectURIs = trimAll(c.AllowedRedirectURIs)
	c.CORSAllowedOrigins = trimAll(c.CORSAllowedOrigins)
	if c.TrustedProxies = trimAll(c.TrustedProxies); len(c.TrustedProxies) == 0 {
		c.TrustedProxies = nil
	}
	c.DefaultRedirectURI = strings.TrimSpace(c.DefaultRedirectURI)
	c.SessionPolicy = strings.ToLower(strings.TrimSpace(c.SessionPolicy))
	c.PendingFlowStore = strings.ToLower(strings.TrimSpace(c.PendingFlowStore))
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error

	if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
		errs = append(errs, errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if len(c.AllowedRedirectURIs) == 0 {
		errs = append(errs, errors.New("ALLOWED_REDIRECT_URIS must not be empty"))
	}
	if !slices.Contains(c.AllowedRedirectURIs, c.DefaultRedirectURI) {
		errs = append(errs, fmt.Errorf("DEFAULT_REDIRECT_URI %q is not in ALLOWED_REDIRECT_URIS", c.DefaultRedirectURI))
	}
	if c.SessionPolicy != PolicySessionTable && c.SessionPolicy != PolicyTokenOnly {
		errs = append(errs, fmt.Errorf("SESSION_POLICY %q is not supported", c.SessionPolicy))
	}
	if c.PendingFlowStore != StoreMemory && c.PendingFlowStore != StoreRedis {
		errs = append(errs, fmt.Errorf("PENDING_FLOW_STORE %q is not supported", c.PendingFlowStore))
	}
	if c.StorageDriver != DriverSQLite && c.StorageDriver != DriverPostgres {
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER %q is not supported", c.StorageDriver))
	}
	if c.SessionTTL <= 0 || c.PendingFlowTTL <= 0 || c.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("SESSION_TTL, PENDING_FLOW_TTL and PROVIDER_TIMEOUT must be positive"))
	}

	return errors.Join(errs...)
}

// KeycloakEnabled reports whether the optional keycloak provider is configured.
func (c Config) KeycloakEnabled() bool {
	return c.KeycloakIssuer != "" && c.KeycloakClientID != ""
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
