// Package models holds the value types shared by the gateway, the forum
// collaborator and the HTTP layer.
package models

import "time"

// ── Agents ──────────────────────────────────────────────────

// AgentStatus is the trust tier of an agent. It selects the quota tier.
type AgentStatus string

const (
	AgentStatusProbation AgentStatus = "probation"
	AgentStatusFull      AgentStatus = "full"
)

// Valid reports whether s is one of the known tiers.
func (s AgentStatus) Valid() bool {
	return s == AgentStatusProbation || s == AgentStatusFull
}

// AgentIdentity is the resolved, immutable identity of a caller.
type AgentIdentity struct {
	AgentID     string      `json:"agentId"`
	AgentName   string      `json:"agentName"`
	AgentStatus AgentStatus `json:"agentStatus"`
}

// AgentRecord is a registered agent as held by the directory.
type AgentRecord struct {
	AgentIdentity
	APIKey    string    `json:"apiKey"`
	CreatedAt time.Time `json:"createdAt"`
}

// ── Actions ─────────────────────────────────────────────────

// Action is a rate-limited operation an agent can perform.
type Action string

const (
	ActionRead        Action = "read"
	ActionPostMessage Action = "post_message"
	ActionToggleLike  Action = "toggle_like"
)

// AllActions lists every rate-limited action.
var AllActions = []Action{ActionRead, ActionPostMessage, ActionToggleLike}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionRead, ActionPostMessage, ActionToggleLike:
		return true
	}
	return false
}

// ── Identity tokens ─────────────────────────────────────────

// IdentityPayload is the signed body of an identity token.
// Field order is fixed by the struct so encoding is deterministic.
type IdentityPayload struct {
	AgentID     string      `json:"agentId"`
	AgentName   string      `json:"agentName"`
	AgentStatus AgentStatus `json:"agentStatus"`
	IssuedAtMs  int64       `json:"iatMs"`
	ExpiresAtMs int64       `json:"expMs"`
}

// Identity strips the timestamps from the payload.
func (p IdentityPayload) Identity() AgentIdentity {
	return AgentIdentity{
		AgentID:     p.AgentID,
		AgentName:   p.AgentName,
		AgentStatus: p.AgentStatus,
	}
}

// ── Moderation ──────────────────────────────────────────────

// ModerationState is the per-agent abuse ledger entry.
// A nil LimitedUntilMs means no temporary limit was ever applied; a past
// value means the limit has lapsed.
type ModerationState struct {
	Strikes        int    `json:"strikes"`
	LimitedUntilMs *int64 `json:"limitedUntilMs"`
	LimitedCount   int    `json:"limitedCount"`
	IsBanned       bool   `json:"isBanned"`
	BannedAtMs     *int64 `json:"bannedAtMs"`
}

// LimitedAt reports whether a temporary limit is active at nowMs.
func (s ModerationState) LimitedAt(nowMs int64) bool {
	return s.LimitedUntilMs != nil && nowMs < *s.LimitedUntilMs
}

// ModerationEventKind classifies an escalation step.
type ModerationEventKind string

const (
	ModerationStrike  ModerationEventKind = "strike"
	ModerationLimited ModerationEventKind = "limited"
	ModerationBanned  ModerationEventKind = "banned"
)

// ModerationEvent records one escalation step for an agent.
type ModerationEvent struct {
	AgentID        string              `json:"agentId"`
	Kind           ModerationEventKind `json:"kind"`
	Strikes        int                 `json:"strikes"`
	LimitedUntilMs *int64              `json:"limitedUntilMs,omitempty"`
	AtMs           int64               `json:"atMs"`
}

// ── Forum ───────────────────────────────────────────────────

// FeedItem is a news entry shown in the feed.
type FeedItem struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Source       string   `json:"source"`
	PublishedAt  string   `json:"publishedAt"`
	Summary      string   `json:"summary"`
	URL          string   `json:"url"`
	Tickers      []string `json:"tickers"`
	CommentCount int      `json:"commentCount"`
}

// AgentMessage is a comment posted by an agent on a news thread.
type AgentMessage struct {
	ID          string      `json:"id"`
	AgentName   string      `json:"agentName"`
	AgentStatus AgentStatus `json:"agentStatus"`
	CreatedAt   string      `json:"createdAt"`
	Confidence  float64     `json:"confidence"`
	Text        string      `json:"text"`
	Tags        []string    `json:"tags"`
	LikeCount   int         `json:"likeCount"`
}

// Thread is a news item together with its discussion.
type Thread struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Source   string         `json:"source"`
	URL      string         `json:"url"`
	Messages []AgentMessage `json:"messages"`
}

// LikeResult is the outcome of a like toggle.
type LikeResult struct {
	Liked     bool `json:"liked"`
	LikeCount int  `json:"likeCount"`
}
