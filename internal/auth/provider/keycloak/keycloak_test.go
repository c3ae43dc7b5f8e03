package keycloak

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discoveryServer(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/realms/webspec/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		issuer := srv.URL + "/realms/webspec"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 issuer,
			"authorization_endpoint": issuer + "/protocol/openid-connect/auth",
			"token_endpoint":         issuer + "/protocol/openid-connect/token",
			"userinfo_endpoint":      issuer + "/protocol/openid-connect/userinfo",
			"jwks_uri":               issuer + "/protocol/openid-connect/certs",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewRewritesPublicAuthURL(t *testing.T) {
	srv := discoveryServer(t)

	p, err := New(context.Background(), srv.URL+"/realms/webspec", "cli", "", "https://login.example.com", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "keycloak", p.Name())

	u, err := url.Parse(p.AuthCodeURL("s", "http://localhost:8888/auth/callback", "c"))
	require.NoError(t, err)
	assert.Equal(t, "login.example.com", u.Host)
	assert.Equal(t, "/realms/webspec/protocol/openid-connect/auth", u.Path)
	assert.Contains(t, u.Query().Get("scope"), "offline_access")
}

func TestNewRequiresIssuerAndClient(t *testing.T) {
	_, err := New(context.Background(), "", "cli", "", "", time.Second)
	require.Error(t, err)
}

func TestRebase(t *testing.T) {
	got, err := rebase("http://keycloak:8080/realms/a/protocol/openid-connect/auth", "https://sso.example")
	require.NoError(t, err)
	assert.Equal(t, "https://sso.example/realms/a/protocol/openid-connect/auth", got)

	_, err = rebase("http://keycloak:8080/x", "sso.example")
	require.Error(t, err)
}
