package store

import (
	"context"
	"errors"

	"webspec-auth/internal/auth"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: unique constraint violated")
)

// Store is the persistence capability of the authentication core.
// Implementations must make ReplaceActiveSession atomic per user.
type Store interface {
	// FindUserByEmailOrProvider returns every distinct user matching either
	// the email or the (provider, providerID) pair, ordered by ID.
	FindUserByEmailOrProvider(ctx context.Context, email, provider, providerID string) ([]*auth.Principal, error)

	// UpsertUser inserts p when p.ID is zero and assigns the new ID,
	// otherwise it updates the stored row in place.
	UpsertUser(ctx context.Context, p *auth.Principal) error

	GetUserByID(ctx context.Context, id int64) (*auth.Principal, error)

	// ReplaceActiveSession removes every prior session of s.UserID and
	// records s as the only active one.
	ReplaceActiveSession(ctx context.Context, s *auth.Session) error

	GetSessionByTokenID(ctx context.Context, tokenID string) (*auth.Session, error)

	// DeactivateSession marks the session inactive. ErrNotFound when no
	// session carries tokenID.
	DeactivateSession(ctx context.Context, tokenID string) error

	Ping(ctx context.Context) error
	Close() error
}
