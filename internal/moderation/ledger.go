// Package moderation tracks per-agent abuse state: strikes, temporary
// limits and bans.
//
// Entries are created lazily on first consult and never deleted. A ban is
// irreversible for the life of the process.
package moderation

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/moltboard/platform/pkg/models"
)

// Policy configures the escalation ladder.
type Policy struct {
	// LimitThreshold is the strike count from which each violation applies
	// a temporary limit, unless one is already active.
	LimitThreshold int
	// BanThreshold is the strike count that bans the agent.
	BanThreshold int
	// LimitDuration is how long a temporary limit lasts.
	LimitDuration time.Duration
}

// DefaultPolicy returns the reference ladder: limit at 3 strikes for one
// hour, ban at 9 strikes.
func DefaultPolicy() Policy {
	return Policy{
		LimitThreshold: 3,
		BanThreshold:   9,
		LimitDuration:  time.Hour,
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.LimitThreshold <= 0 {
		p.LimitThreshold = d.LimitThreshold
	}
	if p.BanThreshold <= 0 {
		p.BanThreshold = d.BanThreshold
	}
	if p.LimitDuration <= 0 {
		p.LimitDuration = d.LimitDuration
	}
	return p
}

// Escalation reports which transitions a single violation caused.
type Escalation struct {
	Limited bool
	Banned  bool
}

type entry struct {
	mu    sync.Mutex
	state models.ModerationState
}

// Ledger holds moderation state for every agent seen so far.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]*entry

	policy Policy
	events *EventLog
}

// NewLedger creates a ledger. events may be nil.
func NewLedger(policy Policy, events *EventLog) *Ledger {
	return &Ledger{
		entries: make(map[string]*entry),
		policy:  policy.normalized(),
		events:  events,
	}
}

// Policy returns the active escalation policy.
func (l *Ledger) Policy() Policy { return l.policy }

// Events returns the attached event log, or nil.
func (l *Ledger) Events() *EventLog { return l.events }

func (l *Ledger) entryFor(agentID string) *entry {
	l.mu.RLock()
	e, ok := l.entries[agentID]
	l.mu.RUnlock()
	if ok {
		return e
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[agentID]; ok {
		return e
	}
	e = &entry{}
	l.entries[agentID] = e
	return e
}

// IsBanned reports whether the agent is permanently banned.
func (l *Ledger) IsBanned(agentID string) bool {
	s := l.Acquire(agentID)
	defer s.Release()
	return s.IsBanned()
}

// IsLimited reports whether a temporary limit is active at now.
func (l *Ledger) IsLimited(agentID string, now time.Time) bool {
	s := l.Acquire(agentID)
	defer s.Release()
	return s.LimitedUntil(now) != nil
}

// Snapshot returns a copy of the agent's state.
func (l *Ledger) Snapshot(agentID string) models.ModerationState {
	s := l.Acquire(agentID)
	defer s.Release()
	return s.Snapshot()
}

// RecordViolation adds a strike and escalates per policy.
func (l *Ledger) RecordViolation(agentID string, now time.Time) models.ModerationState {
	s := l.Acquire(agentID)
	defer s.Release()
	state, _ := s.RecordViolation(now)
	return state
}

// Acquire locks the agent's entry until Release. Reads and the violation
// write made through one session are atomic with respect to other
// requests from the same agent.
func (l *Ledger) Acquire(agentID string) *Session {
	e := l.entryFor(agentID)
	e.mu.Lock()
	return &Session{ledger: l, agentID: agentID, entry: e}
}

// Session is an exclusive handle on one agent's moderation entry.
type Session struct {
	ledger   *Ledger
	agentID  string
	entry    *entry
	released bool
}

// Release unlocks the entry. Safe to call more than once.
func (s *Session) Release() {
	if s.released {
		return
	}
	s.released = true
	s.entry.mu.Unlock()
}

// IsBanned reports the ban flag.
func (s *Session) IsBanned() bool { return s.entry.state.IsBanned }

// LimitedUntil returns the limit expiry if a limit is active at now.
func (s *Session) LimitedUntil(now time.Time) *int64 {
	st := s.entry.state
	if !st.LimitedAt(now.UnixMilli()) {
		return nil
	}
	until := *st.LimitedUntilMs
	return &until
}

// Snapshot returns a copy of the state.
func (s *Session) Snapshot() models.ModerationState {
	return copyState(s.entry.state)
}

// RecordViolation adds a strike, applies a temporary limit from
// LimitThreshold strikes when none is active, and bans at BanThreshold.
// A banned agent keeps its original bannedAtMs.
func (s *Session) RecordViolation(now time.Time) (models.ModerationState, Escalation) {
	p := s.ledger.policy
	st := &s.entry.state
	nowMs := now.UnixMilli()

	var esc Escalation
	st.Strikes++
	events := []models.ModerationEvent{{
		AgentID: s.agentID,
		Kind:    models.ModerationStrike,
		Strikes: st.Strikes,
		AtMs:    nowMs,
	}}

	if st.Strikes >= p.LimitThreshold && !st.LimitedAt(nowMs) {
		until := nowMs + p.LimitDuration.Milliseconds()
		st.LimitedUntilMs = &until
		st.LimitedCount++
		esc.Limited = true
		events = append(events, models.ModerationEvent{
			AgentID:        s.agentID,
			Kind:           models.ModerationLimited,
			Strikes:        st.Strikes,
			LimitedUntilMs: &until,
			AtMs:           nowMs,
		})
	}

	if st.Strikes >= p.BanThreshold && !st.IsBanned {
		at := nowMs
		st.IsBanned = true
		st.BannedAtMs = &at
		esc.Banned = true
		events = append(events, models.ModerationEvent{
			AgentID: s.agentID,
			Kind:    models.ModerationBanned,
			Strikes: st.Strikes,
			AtMs:    nowMs,
		})
	}

	if esc.Banned {
		log.Warn().Str("agent_id", s.agentID).Int("strikes", st.Strikes).Msg("Agent banned")
	} else if esc.Limited {
		log.Warn().Str("agent_id", s.agentID).Int("strikes", st.Strikes).
			Int64("limited_until_ms", *st.LimitedUntilMs).Msg("Agent temporarily limited")
	}

	if s.ledger.events != nil {
		for _, ev := range events {
			s.ledger.events.Append(ev)
		}
	}
	return copyState(*st), esc
}

func copyState(st models.ModerationState) models.ModerationState {
	out := st
	if st.LimitedUntilMs != nil {
		v := *st.LimitedUntilMs
		out.LimitedUntilMs = &v
	}
	if st.BannedAtMs != nil {
		v := *st.BannedAtMs
		out.BannedAtMs = &v
	}
	return out
}
