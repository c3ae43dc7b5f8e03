package auth

import "encoding/json"

// Identity represents a normalized external authentication identity
// returned by an OAuth provider. It contains facts only, no decisions.
type Identity struct {
	Provider       string // e.g. "google", "keycloak"
	ProviderUserID string // provider-scoped unique user identifier
	Email          string
	EmailVerified  bool
	Name           string
	AvatarURL      string

	// Optional profile enrichment. Empty when the provider omits them.
	GivenName    string
	FamilyName   string
	Locale       string
	SubjectID    string // "sub" of the verified id_token
	ProfileLink  string
	Gender       string
	HostedDomain string

	// Raw is the userinfo payload as returned by the provider.
	Raw json.RawMessage
}
