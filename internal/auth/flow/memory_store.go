package flow

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps flows in process. Suitable for a single backend instance.
type MemoryStore struct {
	mu      sync.Mutex
	flows   *gocache.Cache // id -> *Flow
	byState *gocache.Cache // state -> id
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		flows:   gocache.New(gocache.NoExpiration, time.Minute),
		byState: gocache.New(gocache.NoExpiration, time.Minute),
		now:     time.Now,
	}
}

func (m *MemoryStore) Put(_ context.Context, f *Flow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.flows.Get(f.ID); ok {
		m.byState.Delete(old.(*Flow).State)
	}

	ttl := keepFor(f, m.now())
	cp := *f
	m.flows.Set(f.ID, &cp, ttl)
	m.byState.Set(f.State, f.ID, ttl)
	return nil
}

func (m *MemoryStore) Consume(_ context.Context, id string) (*Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.take(id)
}

func (m *MemoryStore) ConsumeByState(_ context.Context, state string) (*Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byState.Get(state)
	if !ok {
		return nil, ErrNotFound
	}
	return m.take(id.(string))
}

func (m *MemoryStore) take(id string) (*Flow, error) {
	v, ok := m.flows.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	f := v.(*Flow)
	m.flows.Delete(id)
	m.byState.Delete(f.State)
	return f, nil
}
