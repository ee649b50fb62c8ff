// Package notify forwards moderation escalations to an operator webhook.
//
// The notifier subscribes to the moderation event log and POSTs each
// matching event as JSON, optionally signed with HMAC-SHA256 over the
// body. Delivery is best effort: failures are retried with exponential
// backoff, then logged and counted, and never block the gateway.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/moltboard/platform/internal/metrics"
	"github.com/moltboard/platform/internal/moderation"
	"github.com/moltboard/platform/pkg/models"
)

// Header names set on every delivery.
const (
	HeaderEvent     = "X-Moltboard-Event"
	HeaderSignature = "X-Moltboard-Signature"
)

// Options configures a Notifier.
type Options struct {
	URL    string
	Secret string

	// Kinds selects which events are delivered; empty means all.
	Kinds []models.ModerationEventKind

	Timeout    time.Duration
	MaxRetries int

	// InitialBackoff is the first retry delay; later delays grow
	// exponentially.
	InitialBackoff time.Duration

	Client  *http.Client
	Metrics *metrics.Metrics
}

// Notifier delivers moderation events to a single webhook URL.
type Notifier struct {
	opts   Options
	kinds  map[models.ModerationEventKind]bool
	client *http.Client
}

// New creates a notifier. It fails when no URL is configured.
func New(opts Options) (*Notifier, error) {
	if opts.URL == "" {
		return nil, errors.New("notify: webhook URL is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	kinds := make(map[models.ModerationEventKind]bool, len(opts.Kinds))
	for _, k := range opts.Kinds {
		kinds[k] = true
	}
	return &Notifier{opts: opts, kinds: kinds, client: client}, nil
}

// Wants reports whether ev's kind is selected.
func (n *Notifier) Wants(ev models.ModerationEvent) bool {
	return len(n.kinds) == 0 || n.kinds[ev.Kind]
}

// Start subscribes to el and delivers matching events in the background
// until ctx is cancelled. The subscription is in place when Start returns.
// The returned channel is closed once the delivery loop exits.
func (n *Notifier) Start(ctx context.Context, el *moderation.EventLog) <-chan struct{} {
	ch := el.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer el.Unsubscribe(ch)
		n.run(ctx, ch)
	}()
	log.Info().Str("url", n.opts.URL).Msg("Escalation webhook enabled")
	return done
}

// run sends events one at a time in log order. The log drops events for a
// slow subscriber rather than blocking writers.
func (n *Notifier) run(ctx context.Context, ch <-chan models.ModerationEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if !n.Wants(ev) {
				continue
			}
			if err := n.Send(ctx, ev); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn().Err(err).Str("agent_id", ev.AgentID).Str("kind", string(ev.Kind)).Msg("Escalation webhook failed")
			}
		}
	}
}

// Send posts one event, retrying transport errors and 5xx/429 responses.
func (n *Notifier) Send(ctx context.Context, ev models.ModerationEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.opts.URL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build webhook request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Moltboard-Webhook/1.0")
		req.Header.Set(HeaderEvent, string(ev.Kind))
		if n.opts.Secret != "" {
			req.Header.Set(HeaderSignature, "sha256="+Sign(n.opts.Secret, body))
		}

		resp, err := n.client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("webhook HTTP %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("webhook HTTP %d", resp.StatusCode))
		}
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = n.opts.InitialBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(n.opts.MaxRetries)), ctx)

	if err := backoff.Retry(attempt, policy); err != nil {
		n.opts.Metrics.ObserveWebhook("failed")
		return err
	}
	n.opts.Metrics.ObserveWebhook("delivered")
	log.Debug().Str("agent_id", ev.AgentID).Str("kind", string(ev.Kind)).Msg("Escalation webhook delivered")
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret, as carried in the
// signature header after "sha256=".
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
