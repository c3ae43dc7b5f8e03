package auth

import (
	"encoding/json"
	"time"
)

// Principal is a reconciled local user.
type Principal struct {
	ID          int64  // internal key, embedded in session tokens
	ExternalID  string // opaque public identifier
	Email       string
	DisplayName string
	AvatarURL   string

	Provider   string
	ProviderID string

	EmailVerified bool
	GivenName     string
	FamilyName    string
	Locale        string
	SubjectID     string
	ProfileLink   string
	Gender        string
	HostedDomain  string

	RawProviderResponse json.RawMessage

	// NeedsReview marks rows where the email and provider keys pointed at
	// different users during a login.
	NeedsReview bool
	Active      bool

	LastProfileSync time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ApplyProfile copies the mutable profile fields of id onto p.
// Email and the provider link are left to the caller.
func (p *Principal) ApplyProfile(id *Identity, now time.Time) {
	p.DisplayName = id.Name
	p.AvatarURL = id.AvatarURL
	p.EmailVerified = id.EmailVerified
	p.GivenName = id.GivenName
	p.FamilyName = id.FamilyName
	p.Locale = id.Locale
	p.SubjectID = id.SubjectID
	p.ProfileLink = id.ProfileLink
	p.Gender = id.Gender
	p.HostedDomain = id.HostedDomain
	if len(id.Raw) > 0 {
		p.RawProviderResponse = id.Raw
	}
	if now.After(p.LastProfileSync) {
		p.LastProfileSync = now
	}
	p.UpdatedAt = now
}

// Session is the persisted record of an issued bearer token.
type Session struct {
	ID        int64
	UserID    int64
	TokenID   string // jti of the token
	Token     string
	ExpiresAt time.Time
	IPAddress string
	UserAgent string
	Active    bool
	CreatedAt time.Time
}
