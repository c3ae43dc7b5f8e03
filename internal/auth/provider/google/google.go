package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"webspec-auth/internal/auth/provider/openid"

	"github.com/coreos/go-oidc/v3/oidc"
)

const (
	providerName = "google"
	issuerURL    = "https://accounts.google.com"
	userInfoURL  = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// TrustedIssuers are the issuer values Google puts into id_tokens.
var TrustedIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// AuthParams request offline access and force the account chooser.
var AuthParams = map[string]string{
	"access_type":            "offline",
	"include_granted_scopes": "true",
	"prompt":                 "select_account",
}

func New(
	ctx context.Context,
	clientID string,
	clientSecret string,
	timeout time.Duration,
) (*openid.Provider, error) {
	return newWithIssuer(ctx, issuerURL, clientID, clientSecret, timeout)
}

func newWithIssuer(
	ctx context.Context,
	issuer string,
	clientID string,
	clientSecret string,
	timeout time.Duration,
) (*openid.Provider, error) {

	if clientID == "" || clientSecret == "" {
		return nil, errors.New("google oauth config missing required fields")
	}

	client := &http.Client{Timeout: timeout}

	oidcProvider, err := oidc.NewProvider(oidc.ClientContext(ctx, client), issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init google oidc provider: %w", err)
	}

	return openid.New(openid.Config{
		Name:         providerName,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     oidcProvider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		AuthParams:   AuthParams,
		UserInfoURL:  userInfoURL,
		// issuer checked against both spellings by openid
		TrustedIssuers: TrustedIssuers,
		Verifier: oidcProvider.Verifier(&oidc.Config{
			ClientID:        clientID,
			SkipIssuerCheck: true,
		}),
		HTTPClient: client,
		Timeout:    timeout,
	})
}
