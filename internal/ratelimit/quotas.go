package ratelimit

import (
	"errors"
	"fmt"

	"github.com/moltboard/platform/pkg/models"
)

// ErrUnknownQuota is returned when no ceiling exists for a (tier, action)
// pair. It indicates misconfiguration, never a caller mistake.
var ErrUnknownQuota = errors.New("no quota configured")

// Quotas holds per-window ceilings keyed by tier then action.
type Quotas map[models.AgentStatus]map[models.Action]int

// DefaultQuotas returns the reference per-hour policy.
func DefaultQuotas() Quotas {
	return Quotas{
		models.AgentStatusProbation: {
			models.ActionRead:        120,
			models.ActionPostMessage: 3,
			models.ActionToggleLike:  30,
		},
		models.AgentStatusFull: {
			models.ActionRead:        600,
			models.ActionPostMessage: 30,
			models.ActionToggleLike:  300,
		},
	}
}

// Limit returns the ceiling for tier and action.
func (q Quotas) Limit(tier models.AgentStatus, action models.Action) (int, bool) {
	actions, ok := q[tier]
	if !ok {
		return 0, false
	}
	limit, ok := actions[action]
	return limit, ok
}

// Set overrides one ceiling.
func (q Quotas) Set(tier models.AgentStatus, action models.Action, limit int) {
	if q[tier] == nil {
		q[tier] = make(map[models.Action]int)
	}
	q[tier][action] = limit
}

// Clone returns a deep copy.
func (q Quotas) Clone() Quotas {
	out := make(Quotas, len(q))
	for tier, actions := range q {
		m := make(map[models.Action]int, len(actions))
		for a, l := range actions {
			m[a] = l
		}
		out[tier] = m
	}
	return out
}

// Validate requires a non-negative ceiling for every tier and action.
func (q Quotas) Validate() error {
	for _, tier := range []models.AgentStatus{models.AgentStatusProbation, models.AgentStatusFull} {
		for _, action := range models.AllActions {
			limit, ok := q.Limit(tier, action)
			if !ok {
				return fmt.Errorf("%w: %s/%s", ErrUnknownQuota, tier, action)
			}
			if limit < 0 {
				return fmt.Errorf("negative quota %d for %s/%s", limit, tier, action)
			}
		}
	}
	return nil
}
