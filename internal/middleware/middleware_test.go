package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"webspec-auth/internal/auth"
	"webspec-auth/internal/metrics"
	"webspec-auth/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValidator struct {
	token string
	err   error
}

func (f fakeValidator) Validate(_ context.Context, raw string) (*auth.Principal, *session.Claims, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	if raw != f.token {
		return nil, nil, auth.Fail(auth.CodeUnauthenticated, "", nil)
	}
	return &auth.Principal{ID: 7, Email: "u@x.com"}, &session.Claims{UserID: 7}, nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":  "abc",
		"bearer abc":  "abc",
		"Bearer  abc": "abc",
		"Basic abc":   "",
		"Bearer":      "",
		"":            "",
	}
	for header, want := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		assert.Equal(t, want, BearerToken(r), header)
	}
}

func TestRequireAuth(t *testing.T) {
	mw := NewAuthMiddleware(fakeValidator{token: "good"})

	var seen *auth.Principal
	h := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFromContext(r.Context())
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, int64(7), claims.UserID)
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	r.Header.Set("Authorization", "Bearer good")
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "u@x.com", seen.Email)

	for _, header := range []string{"", "Bearer bad"} {
		rec = httptest.NewRecorder()
		r = httptest.NewRequest(http.MethodGet, "/api/me", nil)
		r.Header.Set("Authorization", header)
		h.ServeHTTP(rec, r)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
		var body ErrorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.False(t, body.Success)
		assert.Equal(t, "Unauthenticated", body.Code)
	}
}

func TestRequireAuthStorageFailure(t *testing.T) {
	mw := NewAuthMiddleware(fakeValidator{err: auth.Fail(auth.CodeInternal, "", errors.New("db is down"))})

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer x")
	mw.RequireAuth(http.NotFoundHandler()).ServeHTTP(rec, r)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db is down")
}

func TestGinRequireAuth(t *testing.T) {
	router := gin.New()
	router.GET("/api/me", GinRequireAuth(NewAuthMiddleware(fakeValidator{token: "good"})), func(c *gin.Context) {
		p, ok := PrincipalFromContext(c.Request.Context())
		require.True(t, ok)
		fromGin, ok := c.Get(GinPrincipalKey)
		require.True(t, ok)
		assert.Same(t, p, fromGin)
		c.JSON(http.StatusOK, gin.H{"email": p.Email})
	})

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	r.Header.Set("Authorization", "Bearer good")
	router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"email":"u@x.com"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)

	assert.True(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("1.1.1.1"))
	assert.False(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("2.2.2.2"))
}

func TestGinRateLimit(t *testing.T) {
	router := gin.New()
	router.Use(GinRateLimit(NewRateLimiter(1, 1), metrics.New()))
	router.GET("/api/auth/authorization-url", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/authorization-url", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/authorization-url", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"RateLimited"`)
}

func TestGinCORS(t *testing.T) {
	router := gin.New()
	router.Use(GinCORS([]string{"http://localhost:3000/"}))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("Origin", "https://evil.example")
	router.ServeHTTP(rec, r)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodOptions, "/api/auth/callback", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
