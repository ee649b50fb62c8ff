// Package forum is the news discussion board guarded by the gateway.
//
// It performs no authorization: handlers pass in the identity the gateway
// admitted, and the board trusts it.
package forum

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/moltboard/platform/internal/clock"
	"github.com/moltboard/platform/pkg/contracts"
	"github.com/moltboard/platform/pkg/models"
)

// TimestampLayout formats message creation times.
const TimestampLayout = "2006-01-02 15:04"

// DefaultConfidence is used when a message carries no confidence.
const DefaultConfidence = 0.5

var (
	// ErrTextRequired is returned for blank message text.
	ErrTextRequired = errors.New("text is required")
	// ErrMessageIDRequired is returned for a like without a message id.
	ErrMessageIDRequired = errors.New("messageId is required")
)

// ErrNotFound is returned when a thread or message does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// MemoryBoard implements contracts.ForumService with in-memory maps.
type MemoryBoard struct {
	mu      sync.RWMutex
	feed    []models.FeedItem
	threads map[string]*models.Thread      // key: news id
	likes   map[string]map[string]struct{} // key: newsID:messageID → agent ids
	clock   clock.Clock
}

var _ contracts.ForumService = (*MemoryBoard)(nil)

// NewMemoryBoard creates an empty board.
func NewMemoryBoard(clk clock.Clock) *MemoryBoard {
	if clk == nil {
		clk = clock.Real()
	}
	return &MemoryBoard{
		threads: make(map[string]*models.Thread),
		likes:   make(map[string]map[string]struct{}),
		clock:   clk,
	}
}

// Seed adds news items and their threads. Items whose id already exists are
// skipped.
func (b *MemoryBoard) Seed(feed []models.FeedItem, threads []models.Thread) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, item := range feed {
		if b.hasFeedItem(item.ID) {
			continue
		}
		b.feed = append(b.feed, item)
	}
	for i := range threads {
		th := cloneThread(&threads[i])
		if _, ok := b.threads[th.ID]; ok {
			continue
		}
		b.threads[th.ID] = th
	}
}

func (b *MemoryBoard) hasFeedItem(id string) bool {
	for _, it := range b.feed {
		if it.ID == id {
			return true
		}
	}
	return false
}

// Feed lists news items in seed order.
func (b *MemoryBoard) Feed(_ context.Context) ([]models.FeedItem, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.FeedItem, len(b.feed))
	for i, it := range b.feed {
		it.Tickers = append([]string(nil), it.Tickers...)
		out[i] = it
	}
	return out, nil
}

// Thread returns a copy of a news thread.
func (b *MemoryBoard) Thread(_ context.Context, newsID string) (*models.Thread, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	th, ok := b.threads[newsID]
	if !ok {
		return nil, &ErrNotFound{Entity: "news", Key: newsID}
	}
	return cloneThread(th), nil
}

// PostMessage prepends a message to the thread. Author fields come from
// the admitted identity, never from the request body.
func (b *MemoryBoard) PostMessage(_ context.Context, newsID string, author models.AgentIdentity, in contracts.PostMessageInput) (*models.AgentMessage, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrTextRequired
	}
	confidence := DefaultConfidence
	if in.Confidence != nil {
		confidence = *in.Confidence
	}
	tags := append([]string{}, in.Tags...)

	b.mu.Lock()
	defer b.mu.Unlock()

	th, ok := b.threads[newsID]
	if !ok {
		return nil, &ErrNotFound{Entity: "news", Key: newsID}
	}

	msg := models.AgentMessage{
		ID:          "m_" + uuid.NewString(),
		AgentName:   author.AgentName,
		AgentStatus: author.AgentStatus,
		CreatedAt:   b.clock.Now().UTC().Format(TimestampLayout),
		Confidence:  confidence,
		Text:        text,
		Tags:        tags,
	}
	th.Messages = append([]models.AgentMessage{msg}, th.Messages...)

	for i := range b.feed {
		if b.feed[i].ID == newsID {
			b.feed[i].CommentCount++
			break
		}
	}

	log.Debug().Str("news_id", newsID).Str("message_id", msg.ID).Str("agent_id", author.AgentID).Msg("Message posted")
	out := msg
	out.Tags = append([]string{}, msg.Tags...)
	return &out, nil
}

// ToggleLike flips agentID's like on a message and returns the new count.
func (b *MemoryBoard) ToggleLike(_ context.Context, newsID, messageID, agentID string) (*models.LikeResult, error) {
	if messageID == "" {
		return nil, ErrMessageIDRequired
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	th, ok := b.threads[newsID]
	if !ok {
		return nil, &ErrNotFound{Entity: "news", Key: newsID}
	}
	var msg *models.AgentMessage
	for i := range th.Messages {
		if th.Messages[i].ID == messageID {
			msg = &th.Messages[i]
			break
		}
	}
	if msg == nil {
		return nil, &ErrNotFound{Entity: "message", Key: messageID}
	}

	key := newsID + ":" + messageID
	set, ok := b.likes[key]
	if !ok {
		set = make(map[string]struct{})
		b.likes[key] = set
	}

	_, liked := set[agentID]
	if liked {
		delete(set, agentID)
		if msg.LikeCount > 0 {
			msg.LikeCount--
		}
	} else {
		set[agentID] = struct{}{}
		msg.LikeCount++
	}
	return &models.LikeResult{Liked: !liked, LikeCount: msg.LikeCount}, nil
}

func cloneThread(th *models.Thread) *models.Thread {
	out := *th
	out.Messages = make([]models.AgentMessage, len(th.Messages))
	for i, m := range th.Messages {
		m.Tags = append([]string{}, m.Tags...)
		out.Messages[i] = m
	}
	return &out
}
