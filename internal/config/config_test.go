package config

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_WithDefaults(t *testing.T) {
	os.Clearenv()

	config, err := Load()
	require.NoError(t, err)
	require.NotNil(t, config)

	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, "info", config.LogLevel)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, config.Server.AllowedOrigins)

	assert.Equal(t, "localhost", config.Database.Host)
	assert.Equal(t, 5432, config.Database.Port)
	assert.Equal(t, "swapfolio", config.Database.DBName)
	assert.Equal(t, 25, config.Database.MaxOpenConns)

	assert.Equal(t, "localhost", config.Redis.Host)
	assert.Equal(t, 6379, config.Redis.Port)

	assert.Equal(t, 180, config.Cache.TTLSeconds)
	assert.Equal(t, "signal", config.Cache.KeyPrefix)

	assert.Equal(t, "http://localhost:3100", config.Upstream.Security.BaseURL)
	assert.Equal(t, "http://localhost:3200", config.Upstream.Liquidity.BaseURL)
	assert.Equal(t, 5, config.Upstream.Breaker.FailureThreshold)
	assert.Equal(t, 60, config.Upstream.Breaker.ResetTimeoutSeconds)

	assert.Equal(t, 10, config.Signals.DedupWindowMinutes)
	assert.Equal(t, 30, config.Signals.CooldownCriticalMinutes)
	assert.Equal(t, 60, config.Signals.CooldownDangerMinutes)
	assert.Equal(t, 120, config.Signals.CooldownWarningMinutes)
	assert.Equal(t, 24, config.Signals.RecurrenceWindowHours)
	assert.Equal(t, 5.0, config.Signals.RecurrenceMargin)
	assert.Equal(t, 500, config.Signals.RecurrenceMaxEntries)

	assert.Equal(t, 0.15, config.Escalation.ConfidenceDelta)
	assert.Equal(t, 10.0, config.Escalation.LiquidityWorsenPct)
	assert.Equal(t, 7, config.Escalation.AlertIdleDays)

	assert.Equal(t, 30, config.Notifications.ChannelCooldownMinutes)
	assert.False(t, config.Notifications.DryRun)

	assert.Equal(t, 10, config.Sweeper.IntervalMinutes)
	assert.Equal(t, 30, config.Sweeper.RetentionDays)

	assert.Equal(t, "24h", config.Security.JWTExpiry)
	assert.Equal(t, 12, config.Security.BcryptCost)

	assert.False(t, config.Telemetry.Enabled)
	assert.Equal(t, "swapfolio-go", config.Telemetry.ServiceName)
}

func TestLoad_WithEnvironmentVariables(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("DATABASE_HOST", "prod-db.example.com")
	t.Setenv("REDIS_HOST", "prod-redis.example.com")
	t.Setenv("CACHE_TTL_SECONDS", "240")
	t.Setenv("UPSTREAM_SECURITY_BASE_URL", "http://scanner.internal:3100")
	t.Setenv("UPSTREAM_LIQUIDITY_BASE_URL", "http://liquidity.internal:3200")
	t.Setenv("SIGNALS_DEDUP_WINDOW_MINUTES", "15")
	t.Setenv("SWEEPER_INTERVAL_MINUTES", "5")
	t.Setenv("JWT_SECRET", "prod-secret")
	t.Setenv("TELEGRAM_BOT_TOKEN", "prod_bot_token")
	t.Setenv("ADMIN_API_KEY_HASH", "$2a$12$abcdefghijklmnopqrstuv")

	config, err := Load()
	require.NoError(t, err)
	require.NotNil(t, config)

	assert.Equal(t, "production", config.Environment)
	assert.Equal(t, "error", config.LogLevel)
	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, "prod-db.example.com", config.Database.Host)
	assert.Equal(t, "prod-redis.example.com", config.Redis.Host)
	assert.Equal(t, 240, config.Cache.TTLSeconds)
	assert.Equal(t, "http://scanner.internal:3100", config.Upstream.Security.BaseURL)
	assert.Equal(t, "http://liquidity.internal:3200", config.Upstream.Liquidity.BaseURL)
	assert.Equal(t, 15, config.Signals.DedupWindowMinutes)
	assert.Equal(t, 5, config.Sweeper.IntervalMinutes)
	assert.Equal(t, "prod-secret", config.Security.JWTSecret)
	assert.Equal(t, "prod_bot_token", config.Telegram.BotToken)
	assert.Equal(t, "$2a$12$abcdefghijklmnopqrstuv", config.Security.AdminAPIKeyHash)
}

func TestLoad_NormalizesEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "PRODUCTION")
	t.Setenv("JWT_SECRET", "secret")

	config, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "production", config.Environment)
}

func TestLoad_RequiresJWTSecretOutsideDevelopment(t *testing.T) {
	os.Clearenv()
	t.Setenv("ENVIRONMENT", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoad_RejectsInvalidJWTExpiry(t *testing.T) {
	t.Setenv("SECURITY_JWT_EXPIRY", "not-a-duration")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT expiry")
}

func TestLoad_RejectsBcryptCostOutOfRange(t *testing.T) {
	t.Setenv("SECURITY_BCRYPT_COST", "99")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bcrypt cost")
}

func TestLoad_RejectsConfidenceDeltaOutOfRange(t *testing.T) {
	t.Setenv("ESCALATION_CONFIDENCE_DELTA", "1.5")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "confidence delta")
}

func TestCacheConfig_TTLClampsToWindow(t *testing.T) {
	assert.Equal(t, 120*time.Second, CacheConfig{TTLSeconds: 30}.TTL())
	assert.Equal(t, 180*time.Second, CacheConfig{TTLSeconds: 180}.TTL())
	assert.Equal(t, 300*time.Second, CacheConfig{TTLSeconds: 900}.TTL())
}

func TestUpstreamServiceConfig_TimeoutDefault(t *testing.T) {
	assert.Equal(t, 10*time.Second, UpstreamServiceConfig{}.Timeout())
	assert.Equal(t, 3*time.Second, UpstreamServiceConfig{TimeoutSeconds: 3}.Timeout())
}

func TestSweeperConfig_Durations(t *testing.T) {
	assert.Equal(t, 10*time.Minute, SweeperConfig{}.Interval())
	assert.Equal(t, 5*time.Minute, SweeperConfig{IntervalMinutes: 5}.Interval())
	assert.Equal(t, 30*24*time.Hour, SweeperConfig{}.Retention())
	assert.Equal(t, 7*24*time.Hour, SweeperConfig{RetentionDays: 7}.Retention())
}

func TestSecurityConfig_SecretsStayOutOfJSON(t *testing.T) {
	cfg := SecurityConfig{
		JWTSecret:       "s3cret-value",
		JWTExpiry:       "24h",
		BcryptCost:      12,
		AdminAPIKeyHash: "$2a$12$somehash",
	}

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "s3cret-value")
	assert.NotContains(t, string(data), "somehash")
	assert.Contains(t, string(data), "24h")
}
