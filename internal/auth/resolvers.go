package auth

import (
	"context"
	"errors"

	"github.com/moltboard/platform/internal/identity"
	"github.com/moltboard/platform/internal/metrics"
	"github.com/moltboard/platform/pkg/contracts"
	"github.com/moltboard/platform/pkg/models"
)

// ErrUnknownAPIKey is returned for an API key that matches no agent.
var ErrUnknownAPIKey = errors.New("unknown API key")

// ── Identity tokens ─────────────────────────────────────────

// TokenResolver verifies identity tokens. The token is self-contained:
// no directory lookup happens, so the tier is the one stamped at mint time.
type TokenResolver struct {
	codec   contracts.TokenCodec
	metrics *metrics.Metrics
}

// NewTokenResolver creates a resolver backed by codec. m may be nil.
func NewTokenResolver(codec contracts.TokenCodec, m *metrics.Metrics) *TokenResolver {
	return &TokenResolver{codec: codec, metrics: m}
}

func (p *TokenResolver) Name() string { return "identity_token" }

// Resolve returns (nil, nil) for anything but an identity token.
func (p *TokenResolver) Resolve(_ context.Context, cred contracts.Credential) (*models.AgentIdentity, error) {
	if cred.Kind != contracts.CredentialIdentityToken {
		return nil, nil
	}
	payload, err := p.codec.Verify(cred.Value)
	if err != nil {
		p.metrics.ObserveTokenRejected(rejectionReason(err))
		return nil, err
	}
	id := payload.Identity()
	return &id, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, identity.ErrExpired):
		return "expired"
	case errors.Is(err, identity.ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, identity.ErrBadPayload):
		return "bad_payload"
	default:
		return "malformed"
	}
}

// ── API keys ────────────────────────────────────────────────

// APIKeyResolver looks raw API keys up in the agent directory.
type APIKeyResolver struct {
	directory contracts.AgentDirectory
}

// NewAPIKeyResolver creates a resolver backed by dir.
func NewAPIKeyResolver(dir contracts.AgentDirectory) *APIKeyResolver {
	return &APIKeyResolver{directory: dir}
}

func (p *APIKeyResolver) Name() string { return "api_key" }

// Resolve returns (nil, nil) for anything but an API key.
func (p *APIKeyResolver) Resolve(_ context.Context, cred contracts.Credential) (*models.AgentIdentity, error) {
	if cred.Kind != contracts.CredentialAPIKey {
		return nil, nil
	}
	id, ok := p.directory.FindByAPIKey(cred.Value)
	if !ok {
		return nil, ErrUnknownAPIKey
	}
	return id, nil
}
