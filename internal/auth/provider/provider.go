package provider

import (
	"context"

	"webspec-auth/internal/auth"
)

// OAuthProvider defines the contract every external auth provider
// must implement. Implementations return identity facts only and
// must not perform user creation, linking, or session management.
type OAuthProvider interface {
	// Name returns the provider identifier (e.g. "google", "keycloak").
	Name() string

	// AuthCodeURL returns the OAuth authorization URL for redirectURI.
	// State and PKCE parameters are provided by the caller.
	AuthCodeURL(state, redirectURI, codeChallenge string) string

	// ExchangeCode exchanges the authorization code for provider credentials,
	// verifies the identity token and returns a normalized identity.
	// Failures are *auth.Error values from the token exchange taxonomy.
	ExchangeCode(
		ctx context.Context,
		code string,
		redirectURI string,
		codeVerifier string,
	) (*auth.Identity, error)
}

// AccessTokenVerifier is implemented by providers that can identify the
// holder of an access token obtained outside the code flow, such as the
// token a browser extension gets from the provider directly.
type AccessTokenVerifier interface {
	IdentityFromAccessToken(ctx context.Context, accessToken string) (*auth.Identity, error)
}
