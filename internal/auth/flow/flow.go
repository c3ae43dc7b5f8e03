// Package flow tracks in-flight authorization attempts between the
// authorization URL request and the provider callback.
package flow

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("flow: not found")

// retention keeps expired flows around a little longer than their TTL so
// that a late callback is reported as expired instead of forged.
const retention = time.Minute

// Flow is a pending authorization attempt. It is consumed exactly once.
type Flow struct {
	ID           string    `json:"id"`
	State        string    `json:"state"`
	RedirectURI  string    `json:"redirect_uri"`
	Provider     string    `json:"provider"`
	CodeVerifier string    `json:"code_verifier"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (f *Flow) Expired(now time.Time) bool {
	return !now.Before(f.ExpiresAt)
}

// Store persists pending flows. Consume operations are atomic: a flow is
// returned to at most one caller.
type Store interface {
	// Put stores f under f.ID, replacing any flow previously stored there.
	Put(ctx context.Context, f *Flow) error

	// Consume removes and returns the flow with the given id.
	Consume(ctx context.Context, id string) (*Flow, error)

	// ConsumeByState removes and returns the flow carrying state.
	ConsumeByState(ctx context.Context, state string) (*Flow, error)
}

func keepFor(f *Flow, now time.Time) time.Duration {
	ttl := f.ExpiresAt.Sub(now)
	if ttl < 0 {
		ttl = 0
	}
	return ttl + retention
}
