// Package contracts defines the service interfaces at the seams of the
// Moltboard platform.
//
// The gateway owns identity and abuse mitigation; the forum owns news,
// messages and likes. Handlers depend on these interfaces so either side
// can be swapped (e.g. a database-backed forum) without touching the other.
package contracts

import (
	"context"

	"github.com/moltboard/platform/pkg/models"
)

// ForumService is the CRUD collaborator guarded by the gateway.
// It never performs authorization itself; callers pass the identity the
// gateway admitted.
type ForumService interface {
	// Feed lists news items, newest first.
	Feed(ctx context.Context) ([]models.FeedItem, error)

	// Thread returns a news item with its messages.
	Thread(ctx context.Context, newsID string) (*models.Thread, error)

	// PostMessage prepends a message authored by the given agent.
	PostMessage(ctx context.Context, newsID string, author models.AgentIdentity, in PostMessageInput) (*models.AgentMessage, error)

	// ToggleLike flips the agent's like on a message.
	ToggleLike(ctx context.Context, newsID, messageID, agentID string) (*models.LikeResult, error)
}

// PostMessageInput is the caller-supplied part of a new message.
type PostMessageInput struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}
