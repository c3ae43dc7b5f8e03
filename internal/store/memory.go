package store

import (
	"context"
	"slices"
	"sync"

	"webspec-auth/internal/auth"
)

// MemoryStore is an in-process Store used by tests and local runs.
// It enforces the same uniqueness rules as the SQL schema.
type MemoryStore struct {
	mu sync.Mutex

	users    map[int64]*auth.Principal
	sessions map[string]*auth.Session // by token id

	nextUserID    int64
	nextSessionID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[int64]*auth.Principal),
		sessions: make(map[string]*auth.Session),
	}
}

func (m *MemoryStore) FindUserByEmailOrProvider(
	_ context.Context,
	email, provider, providerID string,
) ([]*auth.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*auth.Principal
	for _, p := range m.users {
		if p.Email == email || (p.Provider == provider && p.ProviderID == providerID) {
			out = append(out, clonePrincipal(p))
		}
	}
	slices.SortFunc(out, func(a, b *auth.Principal) int {
		return int(a.ID - b.ID)
	})
	return out, nil
}

func (m *MemoryStore) UpsertUser(_ context.Context, p *auth.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID != 0 {
		if _, ok := m.users[p.ID]; !ok {
			return ErrNotFound
		}
	}

	for id, u := range m.users {
		if id == p.ID {
			continue
		}
		if u.Email == p.Email || (u.Provider == p.Provider && u.ProviderID == p.ProviderID) {
			return ErrConflict
		}
		if p.ID == 0 && u.ExternalID == p.ExternalID {
			return ErrConflict
		}
	}

	if p.ID == 0 {
		m.nextUserID++
		p.ID = m.nextUserID
	}
	m.users[p.ID] = clonePrincipal(p)
	return nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id int64) (*auth.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePrincipal(p), nil
}

func (m *MemoryStore) ReplaceActiveSession(_ context.Context, s *auth.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[s.UserID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.sessions[s.TokenID]; ok {
		return ErrConflict
	}

	for tokenID, existing := range m.sessions {
		if existing.UserID == s.UserID {
			delete(m.sessions, tokenID)
		}
	}

	m.nextSessionID++
	s.ID = m.nextSessionID
	cp := *s
	m.sessions[s.TokenID] = &cp
	return nil
}

func (m *MemoryStore) GetSessionByTokenID(_ context.Context, tokenID string) (*auth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[tokenID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) DeactivateSession(_ context.Context, tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[tokenID]
	if !ok {
		return ErrNotFound
	}
	s.Active = false
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func clonePrincipal(p *auth.Principal) *auth.Principal {
	cp := *p
	cp.RawProviderResponse = slices.Clone(p.RawProviderResponse)
	return &cp
}
