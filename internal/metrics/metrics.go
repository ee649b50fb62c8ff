// Package metrics exposes Prometheus collectors for the gateway and the
// HTTP surface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moltboard/platform/pkg/models"
)

// Metrics owns a private registry so tests and multiple servers in one
// process never collide on registration.
type Metrics struct {
	Registry *prometheus.Registry

	Decisions       *prometheus.CounterVec
	Escalations     *prometheus.CounterVec
	TokensIssued    *prometheus.CounterVec
	TokenRejections *prometheus.CounterVec
	Webhooks        *prometheus.CounterVec
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates and registers all collectors, plus the Go and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moltboard_gateway_decisions_total",
				Help: "Authorization decisions by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		Escalations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moltboard_moderation_escalations_total",
				Help: "Moderation escalation steps by kind",
			},
			[]string{"kind"},
		),
		TokensIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moltboard_identity_tokens_issued_total",
				Help: "Identity tokens minted, by delivery (bearer or cookie)",
			},
			[]string{"delivery"},
		),
		TokenRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moltboard_identity_token_rejections_total",
				Help: "Identity tokens that failed verification, by reason",
			},
			[]string{"reason"},
		),
		Webhooks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moltboard_moderation_webhooks_total",
				Help: "Escalation webhook deliveries by result",
			},
			[]string{"result"},
		),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moltboard_http_requests_total",
				Help: "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "moltboard_http_request_duration_milliseconds",
				Help:    "HTTP request duration in milliseconds",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
			[]string{"route"},
		),
	}

	m.Registry.MustRegister(
		m.Decisions,
		m.Escalations,
		m.TokensIssued,
		m.TokenRejections,
		m.Webhooks,
		m.Requests,
		m.RequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Gauge registers a gauge whose value is read from fn at scrape time.
func (m *Metrics) Gauge(name, help string, fn func() float64) {
	m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
}

// ObserveDecision counts one authorization decision.
func (m *Metrics) ObserveDecision(action models.Action, outcome string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(string(action), outcome).Inc()
}

// ObserveEscalation counts one escalation step.
func (m *Metrics) ObserveEscalation(kind models.ModerationEventKind) {
	if m == nil {
		return
	}
	m.Escalations.WithLabelValues(string(kind)).Inc()
}

// ObserveTokenIssued counts one minted token.
func (m *Metrics) ObserveTokenIssued(delivery string) {
	if m == nil {
		return
	}
	m.TokensIssued.WithLabelValues(delivery).Inc()
}

// ObserveTokenRejected counts one failed verification.
func (m *Metrics) ObserveTokenRejected(reason string) {
	if m == nil {
		return
	}
	m.TokenRejections.WithLabelValues(reason).Inc()
}

// ObserveWebhook counts one webhook delivery ("delivered" or "failed").
func (m *Metrics) ObserveWebhook(result string) {
	if m == nil {
		return
	}
	m.Webhooks.WithLabelValues(result).Inc()
}
