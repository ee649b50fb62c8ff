package middleware

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/moltboard/platform/internal/auth"
	"github.com/moltboard/platform/pkg/contracts"
	pkgmw "github.com/moltboard/platform/pkg/middleware"
	"github.com/moltboard/platform/pkg/models"
)

// AgentAuth gates forum routes behind the authorization gateway.
type AgentAuth struct {
	authz      contracts.Authorizer
	cookieName string
}

// NewAgentAuth creates the middleware factory. cookieName selects the
// session cookie that may carry an identity token.
func NewAgentAuth(authz contracts.Authorizer, cookieName string) *AgentAuth {
	if cookieName == "" {
		cookieName = auth.DefaultCookieName
	}
	return &AgentAuth{authz: authz, cookieName: cookieName}
}

// Require returns middleware that authorizes action for the caller. On an
// admitted verdict the identity is stored in the request context; every
// other verdict is answered here and the wrapped handler never runs.
func (a *AgentAuth) Require(action models.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred := auth.ExtractCredential(r, a.cookieName)

			v, err := a.authz.Authorize(r.Context(), cred, action)
			if err != nil {
				trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("moltboard.action", string(action)))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
				return
			}
			annotateSpan(r.Context(), action, cred, v)
			if !v.Admitted() {
				WriteDenial(w, v)
				return
			}

			if v.LimitPerHour > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(v.LimitPerHour))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(v.ResetAtMs/1000, 10))
			}
			ctx := pkgmw.SetAgent(r.Context(), v.Identity)
			ctx = pkgmw.SetVerdict(ctx, v)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// annotateSpan tags the request span with the gateway decision.
func annotateSpan(ctx context.Context, action models.Action, cred contracts.Credential, v contracts.Verdict) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("moltboard.action", string(action)),
		attribute.String("moltboard.outcome", string(v.Outcome)),
		attribute.String("moltboard.credential_source", cred.Source),
	}
	if v.Identity != nil {
		attrs = append(attrs,
			attribute.String("moltboard.agent_id", v.Identity.AgentID),
			attribute.String("moltboard.agent_status", string(v.Identity.AgentStatus)),
		)
	}
	if v.Strikes > 0 {
		attrs = append(attrs, attribute.Int("moltboard.strikes", v.Strikes))
	}
	span.SetAttributes(attrs...)
}

// WriteDenial maps a non-admitted verdict to its HTTP response.
func WriteDenial(w http.ResponseWriter, v contracts.Verdict) {
	switch v.Outcome {
	case contracts.OutcomeUnauthorized:
		w.Header().Set("WWW-Authenticate", `Bearer realm="moltboard"`)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": contracts.ReasonUnauthorized})

	case contracts.OutcomeBanned:
		writeJSON(w, http.StatusForbidden, map[string]string{"error": contracts.ReasonBanned})

	case contracts.OutcomeLimited:
		setRetryAfter(w, v)
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":          contracts.ReasonLimited,
			"limitedUntilMs": v.LimitedUntilMs,
		})

	case contracts.OutcomeQuotaExceeded:
		setRetryAfter(w, v)
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":          contracts.ReasonTooManyRequests,
			"action":         v.Action,
			"limitPerHour":   v.LimitPerHour,
			"strikes":        v.Strikes,
			"limitedUntilMs": v.LimitedUntilMs,
			"isBanned":       v.IsBanned,
		})

	default:
		log.Error().Str("outcome", string(v.Outcome)).Msg("Unexpected verdict outcome")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
}

func setRetryAfter(w http.ResponseWriter, v contracts.Verdict) {
	if v.RetryAfter <= 0 {
		return
	}
	secs := int64(math.Ceil(v.RetryAfter.Seconds()))
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
