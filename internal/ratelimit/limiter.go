// Package ratelimit enforces per-(agent, action) quotas with fixed windows.
//
// A fixed window admits up to 2x the ceiling across a window boundary.
// That imprecision is accepted: the counter is cheap and easy to reason
// about, and the moderation ledger punishes sustained abuse regardless.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/moltboard/platform/internal/clock"
	"github.com/moltboard/platform/pkg/models"
)

// DefaultWindow is the reference window duration.
const DefaultWindow = time.Hour

// Result describes one CheckAndConsume decision.
type Result struct {
	Admitted    bool
	Limit       int
	Count       int
	WindowStart time.Time
	ResetAt     time.Time
}

type bucketKey struct {
	agentID string
	action  models.Action
}

// bucket is guarded by its own mutex so contention stays per key.
type bucket struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int

	// dead is set by Sweep after the bucket leaves the map; holders of a
	// stale pointer must look the key up again.
	dead bool
}

// Limiter owns the bucket map. Safe for concurrent use.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[bucketKey]*bucket

	quotas Quotas
	window time.Duration
	clock  clock.Clock
}

// New creates a limiter. A non-positive window falls back to DefaultWindow.
func New(quotas Quotas, window time.Duration, clk clock.Clock) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if quotas == nil {
		quotas = DefaultQuotas()
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Limiter{
		buckets: make(map[bucketKey]*bucket),
		quotas:  quotas.Clone(),
		window:  window,
		clock:   clk,
	}
}

// Window returns the configured window duration.
func (l *Limiter) Window() time.Duration { return l.window }

// Limit returns the ceiling that applies to tier and action.
func (l *Limiter) Limit(tier models.AgentStatus, action models.Action) (int, bool) {
	return l.quotas.Limit(tier, action)
}

// CheckAndConsume admits the request and counts it, or rejects it without
// counting. The check and the increment are atomic per key, so concurrent
// callers racing for the last slot cannot both be admitted.
func (l *Limiter) CheckAndConsume(agentID string, action models.Action, tier models.AgentStatus) (Result, error) {
	limit, ok := l.quotas.Limit(tier, action)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s/%s", ErrUnknownQuota, tier, action)
	}
	key := bucketKey{agentID: agentID, action: action}

	for {
		b := l.bucketFor(key)
		b.mu.Lock()
		if b.dead {
			b.mu.Unlock()
			continue
		}

		now := l.clock.Now()
		if now.Sub(b.windowStart) >= l.window {
			b.windowStart = now
			b.count = 0
		}

		res := Result{
			Limit:       limit,
			WindowStart: b.windowStart,
			ResetAt:     b.windowStart.Add(l.window),
		}
		if b.count < limit {
			b.count++
			res.Admitted = true
		}
		res.Count = b.count
		b.mu.Unlock()
		return res, nil
	}
}

// bucketFor returns the live bucket for key, creating it lazily with an
// empty window starting now.
func (l *Limiter) bucketFor(key bucketKey) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[key]; ok {
		return b
	}
	b = &bucket{windowStart: l.clock.Now()}
	l.buckets[key] = b
	return b
}

// Snapshot is a read-only view of a bucket.
type Snapshot struct {
	Count       int
	WindowStart time.Time
}

// Peek returns the current bucket state without consuming quota.
func (l *Limiter) Peek(agentID string, action models.Action) (Snapshot, bool) {
	l.mu.RLock()
	b, ok := l.buckets[bucketKey{agentID: agentID, action: action}]
	l.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{Count: b.count, WindowStart: b.windowStart}, true
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}

// Sweep reclaims buckets whose window has fully elapsed. A reclaimed bucket
// would have been reset by its next request anyway, so no quota is lost.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	var evicted int
	for key, b := range l.buckets {
		b.mu.Lock()
		if now.Sub(b.windowStart) >= l.window {
			b.dead = true
			delete(l.buckets, key)
			evicted++
		}
		b.mu.Unlock()
	}
	return evicted
}

// Run sweeps on every interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = l.window
	}
	ticker := l.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if evicted := l.Sweep(now); evicted > 0 {
				log.Debug().Int("evicted", evicted).Int("live", l.Len()).Msg("Rate buckets reclaimed")
			}
		}
	}
}
