// Package provider defines the OAuth login providers and their registry.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jtaw5649/barforge-registry/internal/auth"
)

// ErrUnknownProvider is returned by Registry.Get for unregistered names.
var ErrUnknownProvider = errors.New("unknown oauth provider")

// OAuthProvider runs the authorization-code flow against one identity provider.
// Implementations return identity facts only; accounts and sessions are the
// caller's business.
type OAuthProvider interface {
	// Name is the path segment used in login and callback routes.
	Name() string
	// AuthCodeURL returns the consent URL for state and a S256 PKCE challenge.
	AuthCodeURL(state, codeChallenge string) string
	// ExchangeCode redeems code and returns the asserted identity.
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*auth.Identity, error)
}

// Registry holds the configured providers by name.
type Registry struct {
	providers map[string]OAuthProvider
}

// NewRegistry registers list. Later entries replace earlier ones with the same name.
func NewRegistry(list ...OAuthProvider) *Registry {
	m := make(map[string]OAuthProvider, len(list))
	for _, p := range list {
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (OAuthProvider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists registered providers in lexical order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for n := range r.providers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
