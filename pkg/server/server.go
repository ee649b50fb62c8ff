// Package server provides the public entry point for initializing the
// Moltboard platform server.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
//	defer srv.ShutdownFunc(ctx)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/moltboard/platform/internal/api"
	"github.com/moltboard/platform/internal/api/handlers"
	"github.com/moltboard/platform/internal/auth"
	"github.com/moltboard/platform/internal/clock"
	"github.com/moltboard/platform/internal/config"
	"github.com/moltboard/platform/internal/directory"
	"github.com/moltboard/platform/internal/forum"
	"github.com/moltboard/platform/internal/gateway"
	"github.com/moltboard/platform/internal/identity"
	"github.com/moltboard/platform/internal/metrics"
	"github.com/moltboard/platform/internal/moderation"
	"github.com/moltboard/platform/internal/notify"
	"github.com/moltboard/platform/internal/ratelimit"
	"github.com/moltboard/platform/internal/telemetry"
)

// Server holds the initialized Moltboard platform.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Gateway is the authorization gateway guarding the forum.
	Gateway *gateway.Gateway

	// Directory holds registered agents.
	Directory *directory.MemoryDirectory

	// Forum is the in-memory news board.
	Forum *forum.MemoryBoard

	// Ledger and Limiter hold the abuse-mitigation state.
	Ledger  *moderation.Ledger
	Limiter *ratelimit.Limiter

	// Metrics owns the Prometheus registry served at /metrics.
	Metrics *metrics.Metrics

	// Config is the server configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc stops background work and flushes telemetry.
	ShutdownFunc func(context.Context) error
}

// Option customizes server construction.
type Option func(*options)

type options struct {
	clock clock.Clock
}

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// New loads configuration from the environment and returns a ready Server.
func New(ctx context.Context, opts ...Option) (*Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg, opts...)
}

// NewWithConfig initializes the platform with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	o := options{clock: clock.Real()}
	for _, opt := range opts {
		opt(&o)
	}
	clk := o.clock

	// Initialize telemetry
	flush, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	codec, err := identity.NewCodec(cfg.Identity.Secret, clk)
	if err != nil {
		return nil, fmt.Errorf("init token codec: %w", err)
	}
	if codec.InsecureDefault() {
		log.Warn().Msg("Using the built-in identity secret; set MOLTBOARD_IDENTITY_SECRET outside development")
	}

	dir := directory.NewMemoryDirectory(clk)
	board := forum.NewMemoryBoard(clk)
	if cfg.SeedDemo {
		dir.Seed(directory.DemoAgent())
		board.Seed(forum.DemoFeed(), forum.DemoThreads())
		log.Info().Msg("✅ Demo agent and feed seeded")
	}

	m := metrics.New()
	events := moderation.NewEventLog(cfg.Moderation.EventLogSize)
	ledger := moderation.NewLedger(cfg.Moderation.Policy, events)
	limiter := ratelimit.New(cfg.RateLimit.Quotas, cfg.RateLimit.Window, clk)

	chain := auth.NewChain(
		auth.NewTokenResolver(codec, m),
		auth.NewAPIKeyResolver(dir),
	)

	gw, err := gateway.New(gateway.Options{
		Resolver: chain,
		Codec:    codec,
		Ledger:   ledger,
		Limiter:  limiter,
		Clock:    clk,
		Metrics:  m,
		TokenTTL: cfg.Identity.TokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("init gateway: %w", err)
	}
	log.Info().Strs("resolvers", chain.Names()).Msg("✅ Authorization gateway initialized")

	m.Gauge("moltboard_rate_buckets", "Live rate-limit buckets.", func() float64 { return float64(limiter.Len()) })
	m.Gauge("moltboard_registered_agents", "Agents known to the directory.", func() float64 { return float64(dir.Count()) })
	m.Gauge("moltboard_moderation_events_buffered", "Moderation events held in the event log.", func() float64 { return float64(events.Len()) })

	// Background bucket reclaim; correctness does not depend on it.
	bgCtx, cancel := context.WithCancel(ctx)
	go limiter.Run(bgCtx, cfg.RateLimit.SweepInterval)

	if cfg.Notify.WebhookURL != "" {
		notifier, err := notify.New(notify.Options{
			URL:        cfg.Notify.WebhookURL,
			Secret:     cfg.Notify.WebhookSecret,
			Kinds:      cfg.Notify.Events,
			Timeout:    cfg.Notify.Timeout,
			MaxRetries: cfg.Notify.MaxRetries,
			Metrics:    m,
		})
		if err != nil {
			cancel()
			return nil, fmt.Errorf("init webhook notifier: %w", err)
		}
		notifier.Start(bgCtx, events)
	}

	h := handlers.New(gw, dir, board, m, cfg.Identity.CookieName, cfg.Identity.CookieSecure)
	router := api.NewRouter(cfg, h, gw, m)

	return &Server{
		Handler:   router,
		Gateway:   gw,
		Directory: dir,
		Forum:     board,
		Ledger:    ledger,
		Limiter:   limiter,
		Metrics:   m,
		Config:    cfg,
		Port:      cfg.Port,
		ShutdownFunc: func(ctx context.Context) error {
			cancel()
			return flush(ctx)
		},
	}, nil
}
