// Package gateway decides, per request, whether an agent may perform an
// action.
//
// Decision order: resolve identity, then the ban gate, then the temporary
// limit gate, then quota. Only a quota rejection writes to the moderation
// ledger, and the gate reads plus that write happen under the agent's
// ledger session so concurrent requests from one agent see a consistent
// escalation sequence.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/moltboard/platform/internal/clock"
	"github.com/moltboard/platform/internal/identity"
	"github.com/moltboard/platform/internal/metrics"
	"github.com/moltboard/platform/internal/moderation"
	"github.com/moltboard/platform/internal/ratelimit"
	"github.com/moltboard/platform/pkg/contracts"
	"github.com/moltboard/platform/pkg/models"
)

// DefaultTokenTTL is the lifetime of minted identity tokens.
const DefaultTokenTTL = 15 * time.Minute

// ErrUnauthorized is returned by IssueToken and Inspect when the
// credential cannot be resolved, or is not allowed to mint.
var ErrUnauthorized = contracts.ErrUnauthorized

var tracer = otel.Tracer("moltboard-gateway")

// Options wires the gateway's collaborators. Resolver, Codec, Ledger and
// Limiter are required.
type Options struct {
	Resolver contracts.IdentityResolver
	Codec    *identity.Codec
	Ledger   *moderation.Ledger
	Limiter  *ratelimit.Limiter
	Clock    clock.Clock
	Metrics  *metrics.Metrics
	TokenTTL time.Duration
}

// Gateway implements contracts.Authorizer.
type Gateway struct {
	resolver contracts.IdentityResolver
	codec    *identity.Codec
	ledger   *moderation.Ledger
	limiter  *ratelimit.Limiter
	clock    clock.Clock
	metrics  *metrics.Metrics
	tokenTTL time.Duration
}

// New validates opts and builds a gateway.
func New(opts Options) (*Gateway, error) {
	if opts.Resolver == nil || opts.Codec == nil || opts.Ledger == nil || opts.Limiter == nil {
		return nil, errors.New("gateway: resolver, codec, ledger and limiter are required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	return &Gateway{
		resolver: opts.Resolver,
		codec:    opts.Codec,
		ledger:   opts.Ledger,
		limiter:  opts.Limiter,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		tokenTTL: opts.TokenTTL,
	}, nil
}

// TokenTTL returns the lifetime of minted tokens.
func (g *Gateway) TokenTTL() time.Duration { return g.tokenTTL }

// Authorize runs the decision for one request. Expected denials are
// returned as verdicts; the error is non-nil only for internal failures
// such as a missing quota entry.
func (g *Gateway) Authorize(ctx context.Context, cred contracts.Credential, action models.Action) (contracts.Verdict, error) {
	ctx, span := tracer.Start(ctx, "gateway.Authorize",
		trace.WithAttributes(
			attribute.String("moltboard.action", string(action)),
			attribute.String("moltboard.credential", cred.Kind.String()),
		),
	)
	defer span.End()

	v, err := g.decide(ctx, cred, action)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Str("action", string(action)).Msg("Authorization failed")
		return contracts.Verdict{}, err
	}

	span.SetAttributes(attribute.String("moltboard.outcome", string(v.Outcome)))
	if v.Identity != nil {
		span.SetAttributes(attribute.String("moltboard.agent_id", v.Identity.AgentID))
	}
	g.metrics.ObserveDecision(action, string(v.Outcome))

	if !v.Admitted() {
		ev := log.Debug()
		if v.Outcome == contracts.OutcomeBanned || v.Outcome == contracts.OutcomeLimited {
			ev = log.Info()
		}
		if v.Identity != nil {
			ev = ev.Str("agent_id", v.Identity.AgentID)
		}
		ev.Str("action", string(action)).
			Str("outcome", string(v.Outcome)).
			Int("strikes", v.Strikes).
			Msg("Request denied")
	}
	return v, nil
}

func (g *Gateway) decide(ctx context.Context, cred contracts.Credential, action models.Action) (contracts.Verdict, error) {
	id, err := g.resolver.Resolve(ctx, cred)
	if err != nil || id == nil {
		return contracts.Verdict{
			Outcome: contracts.OutcomeUnauthorized,
			Action:  action,
			Reason:  contracts.ReasonUnauthorized,
		}, nil
	}

	base := contracts.Verdict{Identity: id, Action: action}

	s := g.ledger.Acquire(id.AgentID)
	defer s.Release()

	now := g.clock.Now()

	if s.IsBanned() {
		return banned(base, s.Snapshot()), nil
	}
	if until := s.LimitedUntil(now); until != nil {
		return limited(base, s.Snapshot(), until, now), nil
	}

	res, err := g.limiter.CheckAndConsume(id.AgentID, action, id.AgentStatus)
	if err != nil {
		return contracts.Verdict{}, fmt.Errorf("quota check for %s: %w", id.AgentID, err)
	}
	if res.Admitted {
		v := base
		v.Outcome = contracts.OutcomeAdmitted
		v.LimitPerHour = res.Limit
		v.ResetAtMs = res.ResetAt.UnixMilli()
		return v, nil
	}

	st, esc := s.RecordViolation(now)
	g.metrics.ObserveEscalation(models.ModerationStrike)
	if esc.Limited {
		g.metrics.ObserveEscalation(models.ModerationLimited)
	}
	if esc.Banned {
		g.metrics.ObserveEscalation(models.ModerationBanned)
	}

	switch {
	case esc.Banned:
		return banned(base, st), nil
	case esc.Limited:
		return limited(base, st, st.LimitedUntilMs, now), nil
	}

	v := base
	v.Outcome = contracts.OutcomeQuotaExceeded
	v.Reason = contracts.ReasonTooManyRequests
	v.LimitPerHour = res.Limit
	v.ResetAtMs = res.ResetAt.UnixMilli()
	v.Strikes = st.Strikes
	v.IsBanned = st.IsBanned
	v.LimitedUntilMs = s.LimitedUntil(now)
	v.RetryAfter = res.ResetAt.Sub(now)
	return v, nil
}

func banned(v contracts.Verdict, st models.ModerationState) contracts.Verdict {
	v.Outcome = contracts.OutcomeBanned
	v.Reason = contracts.ReasonBanned
	v.Strikes = st.Strikes
	v.IsBanned = true
	return v
}

func limited(v contracts.Verdict, st models.ModerationState, until *int64, now time.Time) contracts.Verdict {
	v.Outcome = contracts.OutcomeLimited
	v.Reason = contracts.ReasonLimited
	v.Strikes = st.Strikes
	v.LimitedUntilMs = until
	v.RetryAfter = time.UnixMilli(*until).Sub(now)
	return v
}

// ── Token issuance ──────────────────────────────────────────

// IssuedToken is a freshly minted identity token.
type IssuedToken struct {
	Token     string
	Identity  models.AgentIdentity
	ExpiresIn time.Duration
}

// IssueToken mints an identity token for an API-key credential. Identity
// tokens cannot be exchanged for new ones. Issuance consumes no quota and
// ignores moderation state; bans are enforced when the token is used.
func (g *Gateway) IssueToken(ctx context.Context, cred contracts.Credential) (*IssuedToken, error) {
	if cred.Kind != contracts.CredentialAPIKey {
		return nil, ErrUnauthorized
	}
	id, err := g.resolver.Resolve(ctx, cred)
	if err != nil || id == nil {
		return nil, ErrUnauthorized
	}

	token, err := g.codec.Mint(*id, g.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("minting token for %s: %w", id.AgentID, err)
	}
	log.Debug().Str("agent_id", id.AgentID).Str("source", cred.Source).Msg("Identity token issued")
	return &IssuedToken{Token: token, Identity: *id, ExpiresIn: g.tokenTTL}, nil
}

// ── Self-inspection ─────────────────────────────────────────

// Inspection is an agent's identity with its current moderation state.
type Inspection struct {
	models.AgentIdentity
	Moderation models.ModerationState
}

// Inspect resolves cred and returns the caller's moderation snapshot. It
// does not consume quota and works for banned agents.
func (g *Gateway) Inspect(ctx context.Context, cred contracts.Credential) (*Inspection, error) {
	id, err := g.resolver.Resolve(ctx, cred)
	if err != nil || id == nil {
		return nil, ErrUnauthorized
	}
	return &Inspection{AgentIdentity: *id, Moderation: g.ledger.Snapshot(id.AgentID)}, nil
}

// Events returns the caller's most recent escalation events.
func (g *Gateway) Events(agentID string, n int) []models.ModerationEvent {
	el := g.ledger.Events()
	if el == nil {
		return []models.ModerationEvent{}
	}
	return el.Recent(agentID, n)
}
