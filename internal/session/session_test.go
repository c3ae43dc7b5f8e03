package session

import (
	"context"
	"testing"
	"time"

	"webspec-auth/internal/auth"
	"webspec-auth/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	secret = "test-secret"
	ttl    = 24 * time.Hour
)

type fixture struct {
	now       time.Time
	store     *store.MemoryStore
	signer    *Signer
	issuer    *Issuer
	principal *auth.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		now:   time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
		store: store.NewMemoryStore(),
	}

	signer, err := NewSigner(secret, ttl, func() time.Time { return f.now })
	require.NoError(t, err)
	f.signer = signer
	f.issuer = NewIssuer(signer, f.store)

	f.principal = &auth.Principal{ExternalID: "uuid-1", Email: "u@x.com", Provider: "google", ProviderID: "p1", Active: true}
	require.NoError(t, f.store.UpsertUser(context.Background(), f.principal))
	return f
}

func (f *fixture) validator(policy Policy) *Validator {
	return NewValidator(f.signer, f.store, policy)
}

func TestIssueAndValidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	issued, err := f.issuer.Issue(ctx, f.principal, RequestMeta{IPAddress: "10.0.0.1", UserAgent: "cli"})
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(ttl), issued.ExpiresAt)
	assert.Equal(t, f.principal.ID, issued.Claims.UserID)
	assert.NotEmpty(t, issued.Claims.ID)

	sess, err := f.store.GetSessionByTokenID(ctx, issued.Claims.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", sess.IPAddress)
	assert.Equal(t, issued.Token, sess.Token)

	p, claims, err := f.validator(PolicySessionTable).Validate(ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "u@x.com", p.Email)
	assert.Equal(t, "u@x.com", claims.Email)
}

func TestExpiryBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	issued, err := f.issuer.Issue(ctx, f.principal, RequestMeta{})
	require.NoError(t, err)
	v := f.validator(PolicySessionTable)

	f.now = issued.ExpiresAt.Add(-time.Second)
	_, _, err = v.Validate(ctx, issued.Token)
	require.NoError(t, err)

	f.now = issued.ExpiresAt.Add(time.Second)
	_, _, err = v.Validate(ctx, issued.Token)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestRejectsForeignSignatures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other, err := NewSigner("another-secret", ttl, func() time.Time { return f.now })
	require.NoError(t, err)
	forged, _, err := other.Sign(f.principal.ID, f.principal.Email, "jti-x")
	require.NoError(t, err)

	_, _, err = f.validator(PolicyTokenOnly).Validate(ctx, forged)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, &Claims{
		UserID: f.principal.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-y",
			ExpiresAt: jwt.NewNumericDate(f.now.Add(time.Hour)),
		},
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	_, _, err = f.validator(PolicyTokenOnly).Validate(ctx, hs512)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	for _, raw := range []string{"", "not-a-token", "a.b.c"} {
		_, _, err = f.validator(PolicyTokenOnly).Validate(ctx, raw)
		assert.ErrorIs(t, err, auth.ErrUnauthenticated, raw)
	}
}

func TestNewLoginSupersedesPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.issuer.Issue(ctx, f.principal, RequestMeta{})
	require.NoError(t, err)
	b, err := f.issuer.Issue(ctx, f.principal, RequestMeta{})
	require.NoError(t, err)

	// same instant, still distinguishable
	assert.NotEqual(t, a.Claims.ID, b.Claims.ID)
	assert.NotEqual(t, a.Token, b.Token)

	table := f.validator(PolicySessionTable)
	_, _, err = table.Validate(ctx, a.Token)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	_, _, err = table.Validate(ctx, b.Token)
	require.NoError(t, err)

	stateless := f.validator(PolicyTokenOnly)
	_, _, err = stateless.Validate(ctx, a.Token)
	require.NoError(t, err)
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	issued, err := f.issuer.Issue(ctx, f.principal, RequestMeta{})
	require.NoError(t, err)
	require.NoError(t, f.issuer.Revoke(ctx, issued.Claims))

	_, _, err = f.validator(PolicySessionTable).Validate(ctx, issued.Token)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	// idempotent
	require.NoError(t, f.issuer.Revoke(ctx, issued.Claims))
	require.NoError(t, f.issuer.Revoke(ctx, &Claims{RegisteredClaims: jwt.RegisteredClaims{ID: "unknown"}}))
}

func TestUnknownPrincipal(t *testing.T) {
	f := newFixture(t)

	raw, _, err := f.signer.Sign(f.principal.ID+42, "ghost@x.com", "jti-ghost")
	require.NoError(t, err)

	_, _, err = f.validator(PolicyTokenOnly).Validate(context.Background(), raw)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestValidatorDefaultsToSessionTable(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, PolicySessionTable, NewValidator(f.signer, f.store, "").Policy())
}

func TestNewSignerRequiresSecret(t *testing.T) {
	_, err := NewSigner("", ttl, nil)
	require.Error(t, err)
	_, err = NewSigner(secret, 0, nil)
	require.Error(t, err)
}
