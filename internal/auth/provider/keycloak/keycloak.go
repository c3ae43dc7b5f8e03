package keycloak

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"webspec-auth/internal/auth/provider/openid"

	"github.com/coreos/go-oidc/v3/oidc"
)

const providerName = "keycloak"

// New initializes a Keycloak OIDC provider using discovery.
// issuer must be the realm issuer URL, e.g.
// http://localhost:8081/realms/webspec
//
// publicBaseURL, when set, replaces the scheme and host of the
// authorization endpoint so browsers can reach Keycloak even when the
// backend talks to it over an internal address.
func New(
	ctx context.Context,
	issuer string,
	clientID string,
	clientSecret string,
	publicBaseURL string,
	timeout time.Duration,
) (*openid.Provider, error) {

	if issuer == "" || clientID == "" {
		return nil, errors.New("keycloak oauth config missing required fields")
	}

	client := &http.Client{Timeout: timeout}

	oidcProvider, err := oidc.NewProvider(oidc.ClientContext(ctx, client), issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init keycloak oidc provider: %w", err)
	}

	ep := oidcProvider.Endpoint()
	if publicBaseURL != "" {
		ep.AuthURL, err = rebase(ep.AuthURL, publicBaseURL)
		if err != nil {
			return nil, fmt.Errorf("keycloak public base url: %w", err)
		}
	}

	userInfo := oidcProvider.UserInfoEndpoint()
	if userInfo == "" {
		return nil, errors.New("keycloak discovery has no userinfo endpoint")
	}

	return openid.New(openid.Config{
		Name:         providerName,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     ep,
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile", oidc.ScopeOfflineAccess},
		AuthParams: map[string]string{
			"prompt": "select_account",
		},
		UserInfoURL:    userInfo,
		TrustedIssuers: []string{issuer},
		Verifier: oidcProvider.Verifier(&oidc.Config{
			ClientID:        clientID,
			SkipIssuerCheck: true,
		}),
		HTTPClient: client,
		Timeout:    timeout,
	})
}

// rebase moves endpoint onto the scheme and host of base, keeping its path.
func rebase(endpoint, base string) (string, error) {
	e, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if b.Scheme == "" || b.Host == "" {
		return "", fmt.Errorf("%q is not an absolute url", base)
	}
	e.Scheme = b.Scheme
	e.Host = b.Host
	return e.String(), nil
}
