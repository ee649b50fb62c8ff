package moderation

import (
	"sync"

	"github.com/moltboard/platform/pkg/models"
)

// DefaultEventLogSize is the number of events retained when no size is given.
const DefaultEventLogSize = 1024

// EventLog is a thread-safe ring buffer of escalation events that also
// fans new events out to live subscribers.
type EventLog struct {
	mu          sync.RWMutex
	entries     []models.ModerationEvent
	maxEntries  int
	subscribers map[chan models.ModerationEvent]struct{}
}

// NewEventLog creates a log that retains up to maxEntries events.
func NewEventLog(maxEntries int) *EventLog {
	if maxEntries <= 0 {
		maxEntries = DefaultEventLogSize
	}
	return &EventLog{
		entries:     make([]models.ModerationEvent, 0, maxEntries),
		maxEntries:  maxEntries,
		subscribers: make(map[chan models.ModerationEvent]struct{}),
	}
}

// Append stores an event and broadcasts it to all subscribers.
func (el *EventLog) Append(ev models.ModerationEvent) {
	el.mu.Lock()
	defer el.mu.Unlock()

	if len(el.entries) >= el.maxEntries {
		el.entries = el.entries[1:]
	}
	el.entries = append(el.entries, ev)

	for ch := range el.subscribers {
		select {
		case ch <- ev:
		default:
			// slow subscriber, drop
		}
	}
}

// Recent returns up to n of the newest events for agentID, oldest first.
// An empty agentID matches every agent; n <= 0 means all retained.
func (el *EventLog) Recent(agentID string, n int) []models.ModerationEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var out []models.ModerationEvent
	for i := len(el.entries) - 1; i >= 0; i-- {
		if n > 0 && len(out) == n {
			break
		}
		if agentID == "" || el.entries[i].AgentID == agentID {
			out = append(out, el.entries[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if out == nil {
		out = []models.ModerationEvent{}
	}
	return out
}

// Len returns the number of retained events.
func (el *EventLog) Len() int {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return len(el.entries)
}

// Subscribe returns a channel that receives new events as they are
// appended. Call Unsubscribe when done.
func (el *EventLog) Subscribe() chan models.ModerationEvent {
	ch := make(chan models.ModerationEvent, 64)
	el.mu.Lock()
	el.subscribers[ch] = struct{}{}
	el.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (el *EventLog) Unsubscribe(ch chan models.ModerationEvent) {
	el.mu.Lock()
	if _, ok := el.subscribers[ch]; ok {
		delete(el.subscribers, ch)
		close(ch)
	}
	el.mu.Unlock()
}
