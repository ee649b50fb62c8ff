package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltboard/platform/internal/metrics"
	"github.com/moltboard/platform/pkg/models"
)

func TestObserveDecision(t *testing.T) {
	m := metrics.New()
	m.ObserveDecision(models.ActionPostMessage, "admitted")
	m.ObserveDecision(models.ActionPostMessage, "admitted")
	m.ObserveDecision(models.ActionPostMessage, "quota_exceeded")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Decisions.WithLabelValues("post_message", "admitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("post_message", "quota_exceeded")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.ObserveDecision(models.ActionRead, "admitted")
	m.ObserveEscalation(models.ModerationBanned)
	m.ObserveTokenIssued("cookie")
	m.ObserveTokenRejected("expired")
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m := metrics.New()
	m.ObserveEscalation(models.ModerationLimited)
	m.Gauge("moltboard_test_gauge", "test", func() float64 { return 7 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	assert.True(t, strings.Contains(text, `moltboard_moderation_escalations_total{kind="limited"} 1`))
	assert.True(t, strings.Contains(text, "moltboard_test_gauge 7"))
}
