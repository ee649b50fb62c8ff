// Package auth resolves caller credentials into agent identities.
//
// Resolvers:
//   - TokenResolver: signed identity tokens (bearer header or session cookie)
//   - APIKeyResolver: raw API keys looked up in the agent directory
//
// Resolution only establishes who the caller is. Bans, limits and quotas
// are enforced afterwards by the gateway.
package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/moltboard/platform/pkg/contracts"
	"github.com/moltboard/platform/pkg/models"
)

// ErrNoCredential is returned when no resolver recognized the credential.
var ErrNoCredential = errors.New("no credential presented")

// Chain implements contracts.IdentityResolver by walking registered
// resolvers in order until one returns an identity.
type Chain struct {
	mu        sync.RWMutex
	resolvers []contracts.IdentityResolver
}

// NewChain creates a chain from the given resolvers.
func NewChain(resolvers ...contracts.IdentityResolver) *Chain {
	c := &Chain{}
	for _, r := range resolvers {
		c.Register(r)
	}
	return c
}

// Register adds a resolver to the end of the chain.
func (c *Chain) Register(r contracts.IdentityResolver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolvers = append(c.resolvers, r)
	log.Debug().Str("resolver", r.Name()).Msg("Identity resolver registered")
}

func (c *Chain) Name() string { return "chain" }

// Resolve walks the chain.
//
// Contract:
//   - (*AgentIdentity, nil) → resolved
//   - (nil, error) → a resolver rejected the credential, or none handled it
func (c *Chain) Resolve(ctx context.Context, cred contracts.Credential) (*models.AgentIdentity, error) {
	if cred.Kind == contracts.CredentialNone {
		return nil, ErrNoCredential
	}

	c.mu.RLock()
	resolvers := make([]contracts.IdentityResolver, len(c.resolvers))
	copy(resolvers, c.resolvers)
	c.mu.RUnlock()

	for _, r := range resolvers {
		id, err := r.Resolve(ctx, cred)
		if err != nil {
			log.Debug().
				Str("resolver", r.Name()).
				Str("source", cred.Source).
				Err(err).
				Msg("Credential rejected")
			return nil, err
		}
		if id != nil {
			return id, nil
		}
	}
	return nil, ErrNoCredential
}

// Names returns the registered resolver names (for diagnostics).
func (c *Chain) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.resolvers))
	for i, r := range c.resolvers {
		names[i] = r.Name()
	}
	return names
}
