package middleware

import (
	"net/http"
	"sync"
	"time"

	"webspec-auth/internal/auth"
	"webspec-auth/internal/logger"
	"webspec-auth/internal/metrics"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// idleLimiterTTL drops limiters of clients that went quiet.
const idleLimiterTTL = 30 * time.Minute

// RateLimiter provides per-client token bucket limiting.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *gocache.Cache
	rate     rate.Limit
	burst    int
}

func NewRateLimiter(requestsPerSecond, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: gocache.New(idleLimiterTTL, 5*time.Minute),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

// Allow reports whether a request from identifier may proceed.
func (rl *RateLimiter) Allow(identifier string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	var limiter *rate.Limiter
	if v, ok := rl.limiters.Get(identifier); ok {
		limiter = v.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
	}
	// refresh idle expiry on every access
	rl.limiters.SetDefault(identifier, limiter)

	return limiter.Allow()
}

// GinRateLimit rejects clients exceeding the limiter with 429.
func GinRateLimit(rl *RateLimiter, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.Allow(c.ClientIP()) {
			c.Next()
			return
		}

		m.ObserveRateLimited(c.FullPath())
		logger.Warn("rate limit exceeded", map[string]any{
			"ip":    c.ClientIP(),
			"route": c.FullPath(),
		})
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, NewErrorBody(auth.ErrRateLimited))
	}
}
