package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltboard/platform/internal/config"
	"github.com/moltboard/platform/internal/identity"
	"github.com/moltboard/platform/pkg/models"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.SeedDemo)
	assert.Equal(t, identity.DefaultSecret, cfg.Identity.Secret)
	assert.True(t, cfg.Identity.InsecureSecret())
	assert.Equal(t, 15*time.Minute, cfg.Identity.TokenTTL)
	assert.Equal(t, "platform_it", cfg.Identity.CookieName)
	assert.Equal(t, time.Hour, cfg.RateLimit.Window)
	assert.Equal(t, 3, cfg.Moderation.Policy.LimitThreshold)
	assert.Equal(t, 9, cfg.Moderation.Policy.BanThreshold)
	assert.Equal(t, time.Hour, cfg.Moderation.Policy.LimitDuration)

	limit, ok := cfg.RateLimit.Quotas.Limit(models.AgentStatusProbation, models.ActionPostMessage)
	require.True(t, ok)
	assert.Equal(t, 3, limit)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MOLTBOARD_PORT", "9090")
	t.Setenv("MOLTBOARD_IDENTITY_SECRET", "prod-secret")
	t.Setenv("MOLTBOARD_TOKEN_TTL", "5m")
	t.Setenv("MOLTBOARD_RATE_WINDOW", "30m")
	t.Setenv("MOLTBOARD_STRIKE_BAN_THRESHOLD", "12")
	t.Setenv("MOLTBOARD_QUOTA_FULL_TOGGLE_LIKE", "42")
	t.Setenv("MOLTBOARD_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "prod-secret", cfg.Identity.Secret)
	assert.False(t, cfg.Identity.InsecureSecret())
	assert.Equal(t, 5*time.Minute, cfg.Identity.TokenTTL)
	assert.Equal(t, 30*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 12, cfg.Moderation.Policy.BanThreshold)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)

	limit, _ := cfg.RateLimit.Quotas.Limit(models.AgentStatusFull, models.ActionToggleLike)
	assert.Equal(t, 42, limit)
}

func TestCORS_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.CORS.AllowedOrigins)
	assert.False(t, cfg.CORS.Enabled())
	assert.False(t, cfg.CORS.AllowCredentials())

	tests := []struct {
		origins     []string
		credentials bool
	}{
		{[]string{"https://a.example"}, true},
		{[]string{"*"}, false},
		{[]string{"https://a.example", "*"}, false},
	}
	for _, tt := range tests {
		c := config.CORSConfig{AllowedOrigins: tt.origins}
		assert.True(t, c.Enabled(), tt.origins)
		assert.Equal(t, tt.credentials, c.AllowCredentials(), tt.origins)
	}
}

func TestLoad_LegacySecretAlias(t *testing.T) {
	t.Setenv("PLATFORM_IDENTITY_SECRET", "legacy")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "legacy", cfg.Identity.Secret)

	t.Setenv("MOLTBOARD_IDENTITY_SECRET", "preferred")
	cfg, err = config.Load()
	require.NoError(t, err)
	assert.Equal(t, "preferred", cfg.Identity.Secret)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("MOLTBOARD_PORT", "eighty")
	t.Setenv("MOLTBOARD_TOKEN_TTL", "-5m")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.Identity.TokenTTL)
}

func TestLoad_NegativeQuotaRejected(t *testing.T) {
	t.Setenv("MOLTBOARD_QUOTA_PROBATION_READ", "-1")
	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_QuotaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quotas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
window: 2h
quotas:
  probation:
    post_message: 5
  full:
    read: 1000
`), 0o600))
	t.Setenv("MOLTBOARD_QUOTA_FILE", path)
	// Env wins over the file.
	t.Setenv("MOLTBOARD_QUOTA_FULL_READ", "1500")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, cfg.RateLimit.Window)

	q := cfg.RateLimit.Quotas
	limit, _ := q.Limit(models.AgentStatusProbation, models.ActionPostMessage)
	assert.Equal(t, 5, limit)
	limit, _ = q.Limit(models.AgentStatusProbation, models.ActionRead)
	assert.Equal(t, 120, limit, "unlisted entries keep defaults")
	limit, _ = q.Limit(models.AgentStatusFull, models.ActionRead)
	assert.Equal(t, 1500, limit)
}

func TestLoad_MissingQuotaFile(t *testing.T) {
	t.Setenv("MOLTBOARD_QUOTA_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := config.Load()
	assert.Error(t, err)
}

func TestParseQuotaFile_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown tier":   "quotas:\n  admin:\n    read: 1\n",
		"unknown action": "quotas:\n  full:\n    register: 1\n",
		"negative":       "quotas:\n  full:\n    read: -3\n",
		"unknown key":    "windw: 1h\n",
		"bad window":     "window: soon\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.ParseQuotaFile([]byte(body))
			assert.Error(t, err)
		})
	}

	qf, err := config.ParseQuotaFile(nil)
	require.NoError(t, err)
	assert.Empty(t, qf.Quotas)
}

func TestLoad_WebhookSettings(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Notify.WebhookURL)
	assert.Equal(t, []models.ModerationEventKind{models.ModerationLimited, models.ModerationBanned}, cfg.Notify.Events)

	t.Setenv("MOLTBOARD_WEBHOOK_URL", "https://hooks.example/moltboard")
	t.Setenv("MOLTBOARD_WEBHOOK_EVENTS", "strike, BANNED, bogus")
	t.Setenv("MOLTBOARD_WEBHOOK_MAX_RETRIES", "5")

	cfg, err = config.Load()
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example/moltboard", cfg.Notify.WebhookURL)
	assert.Equal(t, []models.ModerationEventKind{models.ModerationStrike, models.ModerationBanned}, cfg.Notify.Events)
	assert.Equal(t, 5, cfg.Notify.MaxRetries)
}
