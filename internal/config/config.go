package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/moltboard/platform/internal/identity"
	"github.com/moltboard/platform/internal/moderation"
	"github.com/moltboard/platform/internal/ratelimit"
	"github.com/moltboard/platform/pkg/models"
)

// envPrefix namespaces every variable read by Load.
const envPrefix = "MOLTBOARD_"

// Config holds all configuration for the Moltboard platform server.
type Config struct {
	Port       int
	Version    string
	LogLevel   string
	SeedDemo   bool
	CORS       CORSConfig
	Identity   IdentityConfig
	RateLimit  RateLimitConfig
	Moderation ModerationConfig
	Notify     NotifyConfig
	Telemetry  TelemetryConfig
}

// CORSConfig lists the browser origins allowed to call the API. Empty
// means same-origin only and no CORS headers are emitted.
type CORSConfig struct {
	AllowedOrigins []string
}

// Enabled reports whether any cross-origin access is configured.
func (c CORSConfig) Enabled() bool {
	return len(c.AllowedOrigins) > 0
}

// AllowCredentials reports whether cross-origin requests may carry the
// session cookie. A wildcard origin never does.
func (c CORSConfig) AllowCredentials() bool {
	if !c.Enabled() {
		return false
	}
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			return false
		}
	}
	return true
}

type IdentityConfig struct {
	Secret       string
	TokenTTL     time.Duration
	CookieName   string
	CookieSecure bool
}

// InsecureSecret reports whether the built-in development secret is in use.
func (c IdentityConfig) InsecureSecret() bool {
	return c.Secret == identity.DefaultSecret
}

type RateLimitConfig struct {
	Window        time.Duration
	SweepInterval time.Duration
	QuotaFile     string
	Quotas        ratelimit.Quotas
}

type ModerationConfig struct {
	Policy       moderation.Policy
	EventLogSize int
}

// NotifyConfig configures the escalation webhook. An empty URL disables it.
type NotifyConfig struct {
	WebhookURL    string
	WebhookSecret string
	Events        []models.ModerationEventKind
	Timeout       time.Duration
	MaxRetries    int
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible
// defaults. The quota table starts from the reference policy, is merged
// with MOLTBOARD_QUOTA_FILE when set, then with per-entry env overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Port:     envInt(envPrefix+"PORT", 8080),
		Version:  envStr(envPrefix+"VERSION", "0.1.0"),
		LogLevel: envStr(envPrefix+"LOG_LEVEL", "info"),
		SeedDemo: envBool(envPrefix+"SEED_DEMO", true),
		CORS: CORSConfig{
			AllowedOrigins: envList(envPrefix+"CORS_ORIGINS", nil),
		},
		Identity: IdentityConfig{
			Secret:       envStr(envPrefix+"IDENTITY_SECRET", envStr("PLATFORM_IDENTITY_SECRET", identity.DefaultSecret)),
			TokenTTL:     envDuration(envPrefix+"TOKEN_TTL", 15*time.Minute),
			CookieName:   envStr(envPrefix+"COOKIE_NAME", "platform_it"),
			CookieSecure: envBool(envPrefix+"COOKIE_SECURE", false),
		},
		RateLimit: RateLimitConfig{
			Window:        envDuration(envPrefix+"RATE_WINDOW", time.Hour),
			SweepInterval: envDuration(envPrefix+"SWEEP_INTERVAL", 10*time.Minute),
			QuotaFile:     envStr(envPrefix+"QUOTA_FILE", ""),
		},
		Moderation: ModerationConfig{
			Policy: moderation.Policy{
				LimitThreshold: envInt(envPrefix+"STRIKE_LIMIT_THRESHOLD", 3),
				BanThreshold:   envInt(envPrefix+"STRIKE_BAN_THRESHOLD", 9),
				LimitDuration:  envDuration(envPrefix+"LIMIT_DURATION", time.Hour),
			},
			EventLogSize: envInt(envPrefix+"EVENT_LOG_SIZE", moderation.DefaultEventLogSize),
		},
		Notify: NotifyConfig{
			WebhookURL:    envStr(envPrefix+"WEBHOOK_URL", ""),
			WebhookSecret: envStr(envPrefix+"WEBHOOK_SECRET", ""),
			Events:        eventKinds(envList(envPrefix+"WEBHOOK_EVENTS", []string{"limited", "banned"})),
			Timeout:       envDuration(envPrefix+"WEBHOOK_TIMEOUT", 10*time.Second),
			MaxRetries:    envInt(envPrefix+"WEBHOOK_MAX_RETRIES", 2),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "moltboard-platform"),
		},
	}

	quotas := ratelimit.DefaultQuotas()
	if cfg.RateLimit.QuotaFile != "" {
		qf, err := LoadQuotaFile(cfg.RateLimit.QuotaFile)
		if err != nil {
			return nil, err
		}
		qf.MergeInto(quotas)
		if qf.Window > 0 {
			cfg.RateLimit.Window = qf.Window
		}
	}
	applyQuotaEnv(quotas)
	if err := quotas.Validate(); err != nil {
		return nil, fmt.Errorf("quota table: %w", err)
	}
	cfg.RateLimit.Quotas = quotas

	if p := cfg.Moderation.Policy; p.BanThreshold < p.LimitThreshold {
		log.Warn().
			Int("limit_threshold", p.LimitThreshold).
			Int("ban_threshold", p.BanThreshold).
			Msg("Ban threshold below limit threshold, agents are banned before they are ever limited")
	}
	return cfg, nil
}

// applyQuotaEnv reads MOLTBOARD_QUOTA_<TIER>_<ACTION> overrides,
// e.g. MOLTBOARD_QUOTA_PROBATION_POST_MESSAGE=5.
func applyQuotaEnv(q ratelimit.Quotas) {
	for _, tier := range []models.AgentStatus{models.AgentStatusProbation, models.AgentStatusFull} {
		for _, action := range models.AllActions {
			key := envPrefix + "QUOTA_" + strings.ToUpper(string(tier)) + "_" + strings.ToUpper(string(action))
			cur, _ := q.Limit(tier, action)
			if v := envInt(key, cur); v != cur {
				q.Set(tier, action, v)
			}
		}
	}
}

// eventKinds keeps the recognized moderation event kinds.
func eventKinds(names []string) []models.ModerationEventKind {
	var out []models.ModerationEventKind
	for _, n := range names {
		switch k := models.ModerationEventKind(strings.ToLower(n)); k {
		case models.ModerationStrike, models.ModerationLimited, models.ModerationBanned:
			out = append(out, k)
		default:
			log.Warn().Str("kind", n).Msg("Unknown webhook event kind, ignoring")
		}
	}
	return out
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid integer, using default")
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid boolean, using default")
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid duration, using default")
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
