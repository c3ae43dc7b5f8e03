package provider

import (
	"slices"

	"webspec-auth/internal/auth"
)

// Registry holds all configured OAuth providers and allows
// lookup by provider name. It performs no auth logic itself.
type Registry struct {
	providers map[string]OAuthProvider
	fallback  string
}

// NewRegistry registers the given OAuth providers by name.
// The first provider is the default one.
func NewRegistry(list ...OAuthProvider) *Registry {
	m := make(map[string]OAuthProvider)
	for _, p := range list {
		m[p.Name()] = p
	}
	r := &Registry{providers: m}
	if len(list) > 0 {
		r.fallback = list[0].Name()
	}
	return r
}

// Get returns the OAuth provider by name. An empty name selects the default.
func (r *Registry) Get(name string) (OAuthProvider, error) {
	if name == "" {
		name = r.fallback
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, auth.Fail(auth.CodeUnknownProvider, name, nil)
	}
	return p, nil
}

// Default returns the name of the default provider.
func (r *Registry) Default() string {
	return r.fallback
}

// Names lists the registered providers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
