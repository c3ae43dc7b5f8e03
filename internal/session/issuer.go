package session

import (
	"context"
	"errors"
	"time"

	"webspec-auth/internal/auth"
	"webspec-auth/internal/logger"
	"webspec-auth/internal/store"

	"github.com/google/uuid"
)

// RequestMeta is recorded alongside a session.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// Issued is a freshly minted session.
type Issued struct {
	Token     string
	Claims    *Claims
	ExpiresAt time.Time
}

// Issuer mints tokens and keeps at most one active session per user.
type Issuer struct {
	signer *Signer
	store  store.Store
}

func NewIssuer(signer *Signer, s store.Store) *Issuer {
	return &Issuer{signer: signer, store: s}
}

// Issue signs a token for p and atomically replaces p's previous sessions.
func (i *Issuer) Issue(ctx context.Context, p *auth.Principal, meta RequestMeta) (*Issued, error) {
	tokenID := uuid.NewString()

	raw, claims, err := i.signer.Sign(p.ID, p.Email, tokenID)
	if err != nil {
		return nil, auth.Fail(auth.CodeInternal, "", err)
	}

	sess := &auth.Session{
		UserID:    p.ID,
		TokenID:   tokenID,
		Token:     raw,
		ExpiresAt: claims.ExpiresAt.Time,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Active:    true,
		CreatedAt: claims.IssuedAt.Time,
	}
	if err := i.store.ReplaceActiveSession(ctx, sess); err != nil {
		return nil, auth.Fail(auth.CodeInternal, "", err)
	}

	logger.Info("session issued", map[string]any{
		"user_id":  p.ID,
		"token_id": tokenID,
		"ip":       meta.IPAddress,
	})

	return &Issued{Token: raw, Claims: claims, ExpiresAt: sess.ExpiresAt}, nil
}

// Revoke deactivates the session of tokenID. Unknown tokens are ignored so
// logout stays idempotent.
func (i *Issuer) Revoke(ctx context.Context, claims *Claims) error {
	err := i.store.DeactivateSession(ctx, claims.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return auth.Fail(auth.CodeInternal, "", err)
	}

	logger.Info("session revoked", map[string]any{
		"user_id":  claims.UserID,
		"token_id": claims.ID,
	})
	return nil
}
