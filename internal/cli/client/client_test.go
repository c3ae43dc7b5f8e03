package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"webspec-auth/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient(t *testing.T) {
	var gotCallback CallbackRequest

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.HandleFunc("/api/auth/authorization-url", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "http://localhost:8888/auth/callback", r.URL.Query().Get("redirect_uri"))
		_, _ = w.Write([]byte(`{"authUrl":"https://idp/auth","state":"s1","flowId":"f1"}`))
	})
	mux.HandleFunc("/api/auth/callback", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotCallback))
		_, _ = w.Write([]byte(`{"success":true,"token":"tok","user":{"id":"u1","email":"u@x.com"}}`))
	})
	mux.HandleFunc("/api/auth/validate", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"error":"missing, invalid or expired token","code":"Unauthenticated"}`))
			return
		}
		_, _ = w.Write([]byte(`{"valid":true,"user":{"id":"u1","email":"u@x.com"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := New(srv.URL+"/", 5*time.Second)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	a, err := c.AuthorizationURL(ctx, "http://localhost:8888/auth/callback")
	require.NoError(t, err)
	assert.Equal(t, Authorization{AuthURL: "https://idp/auth", State: "s1", FlowID: "f1"}, *a)

	login, err := c.Callback(ctx, CallbackRequest{Code: "abc", State: "s1", RedirectURI: "http://localhost:8888/auth/callback", FlowID: "f1"})
	require.NoError(t, err)
	assert.Equal(t, "tok", login.Token)
	assert.Equal(t, "u@x.com", login.User.Email)
	assert.Equal(t, "f1", gotCallback.FlowID)

	u, err := c.Validate(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	_, err = c.Validate(ctx, "stale")
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	assert.Equal(t, "missing, invalid or expired token", err.Error())
}

func TestClientNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	err := New(srv.URL, time.Second).Health(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.False(t, apiErr.Is(auth.ErrInternal))
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := New(url, time.Second).Health(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}
