// Authentication and authorization types exchanged between the gateway
// and the HTTP layer.
//
// Every downstream handler consumes a Verdict; none of them knows whether
// the caller arrived with an identity token, a cookie, or a raw API key.

package contracts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/moltboard/platform/pkg/models"
)

// ── Credential ──────────────────────────────────────────────

// CredentialKind tags the variant held by a Credential.
type CredentialKind int

const (
	CredentialNone CredentialKind = iota
	CredentialAPIKey
	CredentialIdentityToken
)

func (k CredentialKind) String() string {
	switch k {
	case CredentialAPIKey:
		return "api_key"
	case CredentialIdentityToken:
		return "identity_token"
	default:
		return "none"
	}
}

// Credential is what the caller presented, resolved once at the edge.
type Credential struct {
	Kind  CredentialKind
	Value string

	// Source records where the credential was read from
	// ("bearer", "cookie", "x-api-key"); diagnostics only.
	Source string
}

// NoCredential is the empty credential.
var NoCredential = Credential{Kind: CredentialNone}

// APIKey builds an API-key credential.
func APIKey(key, source string) Credential {
	return Credential{Kind: CredentialAPIKey, Value: key, Source: source}
}

// IdentityToken builds an identity-token credential.
func IdentityToken(token, source string) Credential {
	return Credential{Kind: CredentialIdentityToken, Value: token, Source: source}
}

// ── Verdict ─────────────────────────────────────────────────

// Outcome is the terminal state of an authorization decision.
type Outcome string

const (
	OutcomeAdmitted      Outcome = "admitted"
	OutcomeUnauthorized  Outcome = "unauthorized"
	OutcomeBanned        Outcome = "banned"
	OutcomeLimited       Outcome = "limited"
	OutcomeQuotaExceeded Outcome = "quota_exceeded"
)

// Verdict is the gateway's answer for one request. Denials always carry a
// machine-readable Reason and, when known, the epoch-ms retry horizon.
type Verdict struct {
	Outcome  Outcome
	Identity *models.AgentIdentity
	Action   models.Action

	// Reason is the stable public error string for denials.
	Reason string

	// LimitedUntilMs is set for limited verdicts and for quota verdicts
	// whose agent is (now) under a temporary limit.
	LimitedUntilMs *int64

	// LimitPerHour and ResetAtMs are set for quota verdicts.
	LimitPerHour int
	ResetAtMs    int64

	// RetryAfter is the time until the caller may retry; zero when unknown
	// or when retrying cannot help.
	RetryAfter time.Duration

	Strikes  int
	IsBanned bool
}

// Admitted reports whether the request may proceed.
func (v Verdict) Admitted() bool { return v.Outcome == OutcomeAdmitted }

// Err converts a denial into a typed error; nil when admitted.
func (v Verdict) Err() error {
	switch v.Outcome {
	case OutcomeAdmitted:
		return nil
	case OutcomeUnauthorized:
		return ErrUnauthorized
	case OutcomeBanned:
		return ErrBanned
	default:
		return &RateLimitedError{Verdict: v}
	}
}

// Stable public reasons.
const (
	ReasonUnauthorized    = "Unauthorized"
	ReasonBanned          = "Banned"
	ReasonLimited         = "Limited"
	ReasonTooManyRequests = "Too Many Requests"
)

var (
	// ErrUnauthorized means the credential was missing or unresolvable.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrBanned means the agent is permanently banned.
	ErrBanned = errors.New("agent banned")
)

// RateLimitedError is returned for limited and quota-exceeded verdicts.
type RateLimitedError struct {
	Verdict Verdict
}

func (e *RateLimitedError) Error() string {
	if e.Verdict.LimitedUntilMs != nil {
		return fmt.Sprintf("rate limited until %d", *e.Verdict.LimitedUntilMs)
	}
	return fmt.Sprintf("rate limited: %s limit %d/window", e.Verdict.Action, e.Verdict.LimitPerHour)
}

// ── Service seams ───────────────────────────────────────────

// AgentDirectory resolves API keys to agents.
type AgentDirectory interface {
	FindByAPIKey(key string) (*models.AgentIdentity, bool)
}

// TokenCodec mints and verifies identity tokens.
type TokenCodec interface {
	IsIdentityToken(s string) bool
	Verify(token string) (*models.IdentityPayload, error)
}

// IdentityResolver turns one kind of credential into an agent identity.
//
// Contract:
//   - (*AgentIdentity, nil) → resolved, stop walking
//   - (nil, nil) → this resolver does not handle the credential, try next
//   - (nil, error) → resolution attempted but failed, reject immediately
type IdentityResolver interface {
	Name() string
	Resolve(ctx context.Context, cred Credential) (*models.AgentIdentity, error)
}

// Authorizer is the contract every forum route calls first. Expected
// denials are verdicts; the error is reserved for internal failures.
type Authorizer interface {
	Authorize(ctx context.Context, cred Credential, action models.Action) (Verdict, error)
}
