package openid

import (
	"encoding/json"

	"webspec-auth/internal/auth"
)

// userInfo accepts both the Google v2 userinfo shape (id, verified_email,
// link, hd) and the standard OIDC one (sub, email_verified, profile).
type userInfo struct {
	ID            string `json:"id"`
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	VerifiedEmail *bool  `json:"verified_email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Locale        string `json:"locale"`
	Link          string `json:"link"`
	Profile       string `json:"profile"`
	Gender        string `json:"gender"`
	HD            string `json:"hd"`
}

func (u *userInfo) identity(provider string, raw json.RawMessage) *auth.Identity {
	id := &auth.Identity{
		Provider:       provider,
		ProviderUserID: first(u.ID, u.Sub),
		Email:          u.Email,
		Name:           u.Name,
		AvatarURL:      u.Picture,
		GivenName:      u.GivenName,
		FamilyName:     u.FamilyName,
		Locale:         u.Locale,
		ProfileLink:    first(u.Link, u.Profile),
		Gender:         u.Gender,
		HostedDomain:   u.HD,
		Raw:            raw,
	}
	switch {
	case u.VerifiedEmail != nil:
		id.EmailVerified = *u.VerifiedEmail
	case u.EmailVerified != nil:
		id.EmailVerified = *u.EmailVerified
	}
	return id
}

// idClaims fills gaps the userinfo response left open.
type idClaims struct {
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	HD            string `json:"hd"`
}

func (c *idClaims) fill(id *auth.Identity) {
	if id.Email == "" {
		id.Email = c.Email
		if c.EmailVerified != nil {
			id.EmailVerified = *c.EmailVerified
		}
	}
	if id.Name == "" {
		id.Name = c.Name
	}
	if id.AvatarURL == "" {
		id.AvatarURL = c.Picture
	}
	if id.HostedDomain == "" {
		id.HostedDomain = c.HD
	}
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
