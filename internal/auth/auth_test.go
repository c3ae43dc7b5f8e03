package auth

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedirectAllowList(t *testing.T) {
	allow := NewRedirectAllowList(
		"http://localhost:3000/auth/google/callback",
		"http://localhost:8888/auth/callback",
	)

	assert.True(t, allow.IsTrusted("http://localhost:8888/auth/callback"))

	for _, uri := range []string{
		"",
		"http://localhost:8888/auth/callback/",
		"http://localhost:8888/auth/callback?x=1",
		"http://LOCALHOST:8888/auth/callback",
		"https://localhost:8888/auth/callback",
		"http://localhost:8887/auth/callback",
		"http://evil.example/auth/callback",
	} {
		err := allow.Check(uri)
		require.Error(t, err, uri)
		assert.ErrorIs(t, err, ErrUntrustedRedirect, uri)
	}
}

func TestIsLoopback(t *testing.T) {
	assert.True(t, IsLoopback("http://localhost:8888/auth/callback"))
	assert.True(t, IsLoopback("http://127.0.0.1:8889/auth/callback"))
	assert.True(t, IsLoopback("http://[::1]:8888/auth/callback"))
	assert.False(t, IsLoopback("http://localhost.evil.example/cb"))
	assert.False(t, IsLoopback("https://app.example/cb"))
}

func TestErrorMatchingByCode(t *testing.T) {
	cause := errors.New("oauth2: invalid_grant")
	err := fmt.Errorf("exchange: %w", Fail(CodeInvalidGrant, "", cause))

	assert.ErrorIs(t, err, ErrInvalidGrant)
	assert.NotErrorIs(t, err, ErrExchangeFailed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeInvalidGrant, CodeOf(err))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("db down")))
}

func TestPublicMessageHidesCause(t *testing.T) {
	err := Fail(CodeRedirectMismatch, "expected http://localhost:8888/auth/callback", errors.New("client_secret=abc"))

	msg := PublicMessage(err)
	assert.Contains(t, msg, "http://localhost:8888/auth/callback")
	assert.NotContains(t, msg, "client_secret")
	assert.Equal(t, "internal error", PublicMessage(errors.New("sql: connection refused")))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(CodeUnauthenticated))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(CodeInternal))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(CodeStateMismatch))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(CodeUntrustedRedirect))
}

func TestApplyProfileKeepsSyncMonotonic(t *testing.T) {
	later := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	p := &Principal{Email: "u@x.com", LastProfileSync: later}

	p.ApplyProfile(&Identity{Name: "U", AvatarURL: "http://img", Locale: "en"}, later.Add(-time.Hour))

	assert.Equal(t, "U", p.DisplayName)
	assert.Equal(t, "en", p.Locale)
	assert.Equal(t, later, p.LastProfileSync)
	assert.Equal(t, "u@x.com", p.Email)
}
