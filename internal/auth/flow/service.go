package flow

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"webspec-auth/internal/auth"
	"webspec-auth/internal/auth/provider"
	"webspec-auth/internal/logger"
)

const flowIDLength = 43 // base64url of 32 bytes

type Options struct {
	Store              Store
	AllowList          auth.RedirectAllowList
	Providers          *provider.Registry
	DefaultRedirectURI string
	TTL                time.Duration
	Now                func() time.Time
}

// Service builds authorization requests and completes the matching
// callbacks. It is the only component that touches pending flows.
type Service struct {
	store           Store
	allow           auth.RedirectAllowList
	providers       *provider.Registry
	defaultRedirect string
	ttl             time.Duration
	now             func() time.Time
}

func NewService(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Service{
		store:           opts.Store,
		allow:           opts.AllowList,
		providers:       opts.Providers,
		defaultRedirect: opts.DefaultRedirectURI,
		ttl:             ttl,
		now:             now,
	}
}

// TTL is the lifetime of a pending flow.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

type BeginRequest struct {
	// FlowID of the requester's current flow, if any. A well-formed id is
	// reused so the new flow replaces the previous one.
	FlowID      string
	RedirectURI string
	Provider    string
}

type Authorization struct {
	URL       string
	State     string
	FlowID    string
	ExpiresAt time.Time
}

// Begin validates the redirect URI, records a pending flow and returns the
// provider authorization URL.
func (s *Service) Begin(ctx context.Context, req BeginRequest) (*Authorization, error) {
	redirectURI := req.RedirectURI
	if redirectURI == "" {
		redirectURI = s.defaultRedirect
	}
	if err := s.allow.Check(redirectURI); err != nil {
		logger.Warn("untrusted redirect uri rejected", map[string]any{
			"redirect_uri": redirectURI,
		})
		return nil, err
	}

	p, err := s.providers.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	flowID := req.FlowID
	if len(flowID) != flowIDLength {
		if flowID, err = NewToken(); err != nil {
			return nil, auth.Fail(auth.CodeInternal, "", err)
		}
	}
	state, err := NewToken()
	if err != nil {
		return nil, auth.Fail(auth.CodeInternal, "", err)
	}
	verifier, challenge, err := NewPKCE()
	if err != nil {
		return nil, auth.Fail(auth.CodeInternal, "", err)
	}

	now := s.now()
	f := &Flow{
		ID:           flowID,
		State:        state,
		RedirectURI:  redirectURI,
		Provider:     p.Name(),
		CodeVerifier: verifier,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
	if err := s.store.Put(ctx, f); err != nil {
		return nil, auth.Fail(auth.CodeInternal, "", err)
	}

	logger.Info("authorization url issued", map[string]any{
		"provider":     f.Provider,
		"redirect_uri": redirectURI,
		"flow":         flowID[:8],
	})

	return &Authorization{
		URL:       p.AuthCodeURL(state, redirectURI, challenge),
		State:     state,
		FlowID:    flowID,
		ExpiresAt: f.ExpiresAt,
	}, nil
}

type CallbackRequest struct {
	Code  string
	State string
	// FlowID is optional when State is supplied.
	FlowID string
	// RedirectURI is informational; the stored one is always used.
	RedirectURI string
}

// Complete consumes the pending flow matching the callback and exchanges
// the authorization code with the flow's provider. The flow is consumed
// before the provider is contacted, so it can never be used twice.
func (s *Service) Complete(ctx context.Context, req CallbackRequest) (*auth.Identity, error) {
	if req.Code == "" {
		return nil, auth.Fail(auth.CodeInvalidRequest, "authorization code is required", nil)
	}

	f, err := s.resolve(ctx, req.FlowID, req.State)
	if err != nil {
		return nil, err
	}

	if req.RedirectURI != "" && req.RedirectURI != f.RedirectURI {
		logger.Warn("callback redirect uri differs from stored flow, using stored", map[string]any{
			"requested": req.RedirectURI,
			"stored":    f.RedirectURI,
		})
	}

	p, err := s.providers.Get(f.Provider)
	if err != nil {
		return nil, err
	}

	return p.ExchangeCode(ctx, req.Code, f.RedirectURI, f.CodeVerifier)
}

func (s *Service) resolve(ctx context.Context, flowID, state string) (*Flow, error) {
	var (
		f   *Flow
		err error
	)

	if flowID != "" {
		if f, err = s.store.Consume(ctx, flowID); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, auth.Fail(auth.CodeInternal, "", err)
		}
	}
	if f == nil && state != "" {
		if f, err = s.store.ConsumeByState(ctx, state); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, auth.Fail(auth.CodeInternal, "", err)
		}
	}

	if f == nil {
		if state != "" {
			return nil, auth.Fail(auth.CodeStateMismatch, "", nil)
		}
		return nil, auth.Fail(auth.CodeExpiredOrMissingFlow, "", nil)
	}

	if state != "" && subtle.ConstantTimeCompare([]byte(state), []byte(f.State)) != 1 {
		logger.Warn("callback state does not match pending flow", map[string]any{
			"flow": f.ID[:min(8, len(f.ID))],
		})
		return nil, auth.Fail(auth.CodeStateMismatch, "", nil)
	}
	if f.Expired(s.now()) {
		return nil, auth.Fail(auth.CodeExpiredOrMissingFlow, "", nil)
	}
	return f, nil
}
