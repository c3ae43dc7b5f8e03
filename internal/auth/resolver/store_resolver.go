package resolver

import (
	"context"
	"errors"
	"time"

	"webspec-auth/internal/auth"
	"webspec-auth/internal/logger"
	"webspec-auth/internal/store"

	"github.com/google/uuid"
)

// StoreResolver reconciles identities against the user store.
//
// Lookup is by email OR (provider, provider id). When the two keys point at
// different users the row linked to the provider wins, keeps its email, and
// is flagged for manual review. Rows are never merged.
type StoreResolver struct {
	store store.Store
	now   func() time.Time
}

func NewStoreResolver(s store.Store) *StoreResolver {
	return &StoreResolver{store: s, now: time.Now}
}

func (r *StoreResolver) Resolve(
	ctx context.Context,
	identity *auth.Identity,
) (*auth.Principal, error) {

	if identity == nil {
		return nil, errors.New("identity is nil")
	}
	if identity.ProviderUserID == "" || identity.Email == "" {
		return nil, auth.Fail(auth.CodeIncompleteProfile, "", nil)
	}

	// A concurrent first login of the same user loses the insert race with
	// ErrConflict; the second pass then finds the winner's row.
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var p *auth.Principal
		p, err = r.reconcile(ctx, identity)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			break
		}
	}
	return nil, auth.Fail(auth.CodeInternal, "", err)
}

func (r *StoreResolver) reconcile(ctx context.Context, identity *auth.Identity) (*auth.Principal, error) {
	matches, err := r.store.FindUserByEmailOrProvider(ctx, identity.Email, identity.Provider, identity.ProviderUserID)
	if err != nil {
		return nil, err
	}

	now := r.now()
	var p *auth.Principal

	switch len(matches) {
	case 0:
		p = &auth.Principal{
			ExternalID: uuid.NewString(),
			Email:      identity.Email,
			Provider:   identity.Provider,
			ProviderID: identity.ProviderUserID,
			Active:     true,
			CreatedAt:  now,
		}

	case 1:
		p = matches[0]
		if linkedTo(p, identity) {
			// found by provider id: follow the provider's current email
			p.Email = identity.Email
		}

	default:
		p = preferLinked(matches, identity)
		p.NeedsReview = true
		logger.Warn("ambiguous identity reconciliation", map[string]any{
			"provider":    identity.Provider,
			"selected_id": p.ID,
			"candidates":  ids(matches),
		})
	}

	p.ApplyProfile(identity, now)
	if err := r.store.UpsertUser(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func linkedTo(p *auth.Principal, identity *auth.Identity) bool {
	return p.Provider == identity.Provider && p.ProviderID == identity.ProviderUserID
}

func preferLinked(matches []*auth.Principal, identity *auth.Identity) *auth.Principal {
	for _, m := range matches {
		if linkedTo(m, identity) {
			return m
		}
	}
	return matches[0]
}

func ids(ps []*auth.Principal) []int64 {
	out := make([]int64, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}
