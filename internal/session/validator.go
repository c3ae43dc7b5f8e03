package session

import (
	"context"
	"errors"

	"webspec-auth/internal/auth"
	"webspec-auth/internal/logger"
	"webspec-auth/internal/store"

	"github.com/golang-jwt/jwt/v5"
)

// Policy selects how revocation is enforced.
type Policy string

const (
	// PolicySessionTable requires an active session row for every token.
	// Logout and a newer login revoke a token before its expiry.
	PolicySessionTable Policy = "session-table"
	// PolicyTokenOnly trusts signature and expiry alone.
	PolicyTokenOnly Policy = "token-only"
)

// Validator resolves bearer tokens to principals. It never writes.
type Validator struct {
	signer *Signer
	store  store.Store
	policy Policy
}

func NewValidator(signer *Signer, s store.Store, policy Policy) *Validator {
	if policy != PolicyTokenOnly {
		policy = PolicySessionTable
	}
	return &Validator{signer: signer, store: s, policy: policy}
}

func (v *Validator) Policy() Policy {
	return v.policy
}

func (v *Validator) Validate(ctx context.Context, raw string) (*auth.Principal, *Claims, error) {
	if raw == "" {
		return nil, nil, auth.Fail(auth.CodeUnauthenticated, "", nil)
	}

	claims, err := v.signer.Parse(raw)
	if err != nil {
		reason := "invalid"
		if errors.Is(err, jwt.ErrTokenExpired) {
			reason = "expired"
		}
		logger.Debug("token rejected", map[string]any{
			"reason": reason,
			"error":  err,
		})
		return nil, nil, auth.Fail(auth.CodeUnauthenticated, "", err)
	}

	if v.policy == PolicySessionTable {
		sess, err := v.store.GetSessionByTokenID(ctx, claims.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, nil, v.reject("superseded", claims)
		case err != nil:
			return nil, nil, auth.Fail(auth.CodeInternal, "", err)
		case !sess.Active:
			return nil, nil, v.reject("logged out", claims)
		case sess.UserID != claims.UserID:
			return nil, nil, v.reject("user mismatch", claims)
		}
	}

	p, err := v.store.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, v.reject("unknown user", claims)
	}
	if err != nil {
		return nil, nil, auth.Fail(auth.CodeInternal, "", err)
	}
	if !p.Active {
		return nil, nil, v.reject("inactive user", claims)
	}

	return p, claims, nil
}

func (v *Validator) reject(reason string, claims *Claims) error {
	logger.Debug("token rejected", map[string]any{
		"reason":   reason,
		"user_id":  claims.UserID,
		"token_id": claims.ID,
	})
	return auth.Fail(auth.CodeUnauthenticated, "", nil)
}
