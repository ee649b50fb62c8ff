package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltboard/platform/internal/metrics"
	"github.com/moltboard/platform/internal/moderation"
	"github.com/moltboard/platform/internal/notify"
	"github.com/moltboard/platform/pkg/models"
)

type received struct {
	event     models.ModerationEvent
	kind      string
	signature string
}

// sink records deliveries; failFirst makes the first n calls return 503.
type sink struct {
	mu        sync.Mutex
	got       []received
	calls     atomic.Int32
	failFirst int32
	status    int
}

func (s *sink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := s.calls.Add(1)
	if n <= s.failFirst {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if s.status != 0 {
		w.WriteHeader(s.status)
		return
	}
	body, _ := io.ReadAll(r.Body)
	var ev models.ModerationEvent
	_ = json.Unmarshal(body, &ev)

	s.mu.Lock()
	s.got = append(s.got, received{event: ev, kind: r.Header.Get(notify.HeaderEvent), signature: r.Header.Get(notify.HeaderSignature)})
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *sink) deliveries() []received {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]received(nil), s.got...)
}

func newNotifier(t *testing.T, url string, m *metrics.Metrics, kinds ...models.ModerationEventKind) *notify.Notifier {
	t.Helper()
	n, err := notify.New(notify.Options{
		URL:            url,
		Secret:         "hook-secret",
		Kinds:          kinds,
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		Metrics:        m,
	})
	require.NoError(t, err)
	return n
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := notify.New(notify.Options{})
	assert.Error(t, err)
}

func TestSend_SignsBody(t *testing.T) {
	s := &sink{}
	srv := httptest.NewServer(s)
	defer srv.Close()

	m := metrics.New()
	n := newNotifier(t, srv.URL, m)

	until := int64(1_700_003_600_000)
	ev := models.ModerationEvent{AgentID: "a1", Kind: models.ModerationLimited, Strikes: 3, LimitedUntilMs: &until, AtMs: 1_700_000_000_000}
	require.NoError(t, n.Send(context.Background(), ev))

	got := s.deliveries()
	require.Len(t, got, 1)
	assert.Equal(t, ev.AgentID, got[0].event.AgentID)
	assert.Equal(t, "limited", got[0].kind)

	body, _ := json.Marshal(ev)
	assert.Equal(t, "sha256="+notify.Sign("hook-secret", body), got[0].signature)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Webhooks.WithLabelValues("delivered")))
}

func TestSend_RetriesServerErrors(t *testing.T) {
	s := &sink{failFirst: 2}
	srv := httptest.NewServer(s)
	defer srv.Close()

	n := newNotifier(t, srv.URL, nil)
	require.NoError(t, n.Send(context.Background(), models.ModerationEvent{AgentID: "a1", Kind: models.ModerationBanned}))
	assert.Equal(t, int32(3), s.calls.Load())
	assert.Len(t, s.deliveries(), 1)
}

func TestSend_ClientErrorIsPermanent(t *testing.T) {
	s := &sink{status: http.StatusBadRequest}
	srv := httptest.NewServer(s)
	defer srv.Close()

	m := metrics.New()
	n := newNotifier(t, srv.URL, m)
	err := n.Send(context.Background(), models.ModerationEvent{AgentID: "a1", Kind: models.ModerationBanned})
	require.Error(t, err)
	assert.Equal(t, int32(1), s.calls.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Webhooks.WithLabelValues("failed")))
}

func TestStart_FiltersKinds(t *testing.T) {
	s := &sink{}
	srv := httptest.NewServer(s)
	defer srv.Close()

	el := moderation.NewEventLog(16)
	n := newNotifier(t, srv.URL, nil, models.ModerationLimited, models.ModerationBanned)

	ctx, cancel := context.WithCancel(context.Background())
	done := n.Start(ctx, el)

	el.Append(models.ModerationEvent{AgentID: "a1", Kind: models.ModerationStrike, Strikes: 1})
	el.Append(models.ModerationEvent{AgentID: "a1", Kind: models.ModerationLimited, Strikes: 3})

	require.Eventually(t, func() bool {
		for _, d := range s.deliveries() {
			if d.event.AgentID == "a1" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	for _, d := range s.deliveries() {
		assert.NotEqual(t, models.ModerationStrike, d.event.Kind, "strike events must be filtered")
	}
}
