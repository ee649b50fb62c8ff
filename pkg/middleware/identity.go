// Package middleware provides request-context helpers shared by the HTTP
// layer and by anything that wraps the platform handler.
package middleware

import (
	"context"

	"github.com/moltboard/platform/pkg/contracts"
	"github.com/moltboard/platform/pkg/models"
)

type contextKey string

const (
	agentKey   contextKey = "agent"
	verdictKey contextKey = "verdict"
)

// SetAgent stores the admitted agent identity in the context.
// Called by the agent authorization middleware after an admitted verdict.
func SetAgent(ctx context.Context, id *models.AgentIdentity) context.Context {
	if id == nil {
		return ctx
	}
	return context.WithValue(ctx, agentKey, id)
}

// GetAgent retrieves the admitted agent identity from the context.
// Returns nil if the request did not pass through agent authorization.
func GetAgent(ctx context.Context) *models.AgentIdentity {
	if v, ok := ctx.Value(agentKey).(*models.AgentIdentity); ok {
		return v
	}
	return nil
}

// SetVerdict stores the admitted verdict (quota headroom, reset time).
func SetVerdict(ctx context.Context, v contracts.Verdict) context.Context {
	return context.WithValue(ctx, verdictKey, v)
}

// GetVerdict retrieves the verdict stored by SetVerdict.
func GetVerdict(ctx context.Context) (contracts.Verdict, bool) {
	v, ok := ctx.Value(verdictKey).(contracts.Verdict)
	return v, ok
}
