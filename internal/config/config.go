package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Upstream      UpstreamConfig      `mapstructure:"upstream"`
	Signals       SignalsConfig       `mapstructure:"signals"`
	Escalation    EscalationConfig    `mapstructure:"escalation"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Telegram      TelegramConfig      `mapstructure:"telegram"`
	Sweeper       SweeperConfig       `mapstructure:"sweeper"`
	Security      SecurityConfig      `mapstructure:"security"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	DatabaseURL     string `mapstructure:"database_url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime string `mapstructure:"conn_max_idle_time"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig bounds the result cache. TTLSeconds is clamped to the
// 120-300 s range the upstream rate limits assume.
type CacheConfig struct {
	TTLSeconds int    `mapstructure:"ttl_seconds"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

// TTL returns the memoization window as a duration.
func (c CacheConfig) TTL() time.Duration {
	ttl := c.TTLSeconds
	if ttl < 120 {
		ttl = 120
	}
	if ttl > 300 {
		ttl = 300
	}
	return time.Duration(ttl) * time.Second
}

type UpstreamConfig struct {
	Security  UpstreamServiceConfig `mapstructure:"security"`
	Liquidity UpstreamServiceConfig `mapstructure:"liquidity"`
	Breaker   BreakerConfig         `mapstructure:"breaker"`
}

type UpstreamServiceConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Timeout returns the per-request client timeout.
func (c UpstreamServiceConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type BreakerConfig struct {
	FailureThreshold    int `mapstructure:"failure_threshold"`
	ResetTimeoutSeconds int `mapstructure:"reset_timeout_seconds"`
}

type SignalsConfig struct {
	DedupWindowMinutes      int     `mapstructure:"dedup_window_minutes"`
	CooldownCriticalMinutes int     `mapstructure:"cooldown_critical_minutes"`
	CooldownDangerMinutes   int     `mapstructure:"cooldown_danger_minutes"`
	CooldownWarningMinutes  int     `mapstructure:"cooldown_warning_minutes"`
	RecurrenceWindowHours   int     `mapstructure:"recurrence_window_hours"`
	RecurrenceMargin        float64 `mapstructure:"recurrence_margin"`
	RecurrenceMaxEntries    int     `mapstructure:"recurrence_max_entries"`
}

type EscalationConfig struct {
	ConfidenceDelta    float64 `mapstructure:"confidence_delta"`
	LiquidityWorsenPct float64 `mapstructure:"liquidity_worsen_pct"`
	AlertIdleDays      int     `mapstructure:"alert_idle_days"`
}

type NotificationsConfig struct {
	ChannelCooldownMinutes int  `mapstructure:"channel_cooldown_minutes"`
	DryRun                 bool `mapstructure:"dry_run"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
}

type SweeperConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
	RetentionDays   int `mapstructure:"retention_days"`
}

// Interval returns the sweep cadence as a duration.
func (c SweeperConfig) Interval() time.Duration {
	if c.IntervalMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Retention returns how long delivered-notification audit rows are kept.
func (c SweeperConfig) Retention() time.Duration {
	days := c.RetentionDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}

type SecurityConfig struct {
	JWTSecret       string `mapstructure:"jwt_secret" json:"-" yaml:"-"`
	JWTExpiry       string `mapstructure:"jwt_expiry"`
	BcryptCost      int    `mapstructure:"bcrypt_cost"`
	AdminAPIKeyHash string `mapstructure:"admin_api_key_hash" json:"-" yaml:"-"`
}

type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	LogLevel       string `mapstructure:"log_level"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Bind specific environment variables
	if err := viper.BindEnv("security.jwt_secret", "JWT_SECRET"); err != nil {
		return nil, fmt.Errorf("failed to bind JWT_SECRET environment variable: %w", err)
	}
	if err := viper.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind TELEGRAM_BOT_TOKEN environment variable: %w", err)
	}
	if err := viper.BindEnv("security.admin_api_key_hash", "ADMIN_API_KEY_HASH"); err != nil {
		return nil, fmt.Errorf("failed to bind ADMIN_API_KEY_HASH environment variable: %w", err)
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Normalize environment to lowercase for consistent comparison
	environment := strings.ToLower(config.Environment)

	// Validate JWT secret in non-development environments
	if environment != "development" && config.Security.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable is required in non-development environments")
	}

	// Validate JWT expiry duration
	if config.Security.JWTExpiry != "" {
		if _, err := time.ParseDuration(config.Security.JWTExpiry); err != nil {
			return nil, fmt.Errorf("invalid JWT expiry duration: %w", err)
		}
	}

	// Validate bcrypt cost parameter
	if config.Security.BcryptCost < bcrypt.MinCost || config.Security.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, config.Security.BcryptCost)
	}

	if config.Escalation.ConfidenceDelta <= 0 || config.Escalation.ConfidenceDelta > 1 {
		return nil, fmt.Errorf("escalation confidence delta must be in (0,1], got %f",
			config.Escalation.ConfidenceDelta)
	}

	// Update config with normalized environment
	config.Environment = environment

	return &config, nil
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Database
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "swapfolio")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.database_url", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "300s")
	viper.SetDefault("database.conn_max_idle_time", "60s")

	// Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Result cache
	viper.SetDefault("cache.ttl_seconds", 180)
	viper.SetDefault("cache.key_prefix", "signal")

	// Upstream sidecars
	viper.SetDefault("upstream.security.base_url", "http://localhost:3100")
	viper.SetDefault("upstream.security.timeout_seconds", 10)
	viper.SetDefault("upstream.liquidity.base_url", "http://localhost:3200")
	viper.SetDefault("upstream.liquidity.timeout_seconds", 10)
	viper.SetDefault("upstream.breaker.failure_threshold", 5)
	viper.SetDefault("upstream.breaker.reset_timeout_seconds", 60)

	// Signal-level suppression
	viper.SetDefault("signals.dedup_window_minutes", 10)
	viper.SetDefault("signals.cooldown_critical_minutes", 30)
	viper.SetDefault("signals.cooldown_danger_minutes", 60)
	viper.SetDefault("signals.cooldown_warning_minutes", 120)
	viper.SetDefault("signals.recurrence_window_hours", 24)
	viper.SetDefault("signals.recurrence_margin", 5.0)
	viper.SetDefault("signals.recurrence_max_entries", 500)

	// Escalation
	viper.SetDefault("escalation.confidence_delta", 0.15)
	viper.SetDefault("escalation.liquidity_worsen_pct", 10.0)
	viper.SetDefault("escalation.alert_idle_days", 7)

	// Notifications
	viper.SetDefault("notifications.channel_cooldown_minutes", 30)
	viper.SetDefault("notifications.dry_run", false)

	// Telegram
	viper.SetDefault("telegram.bot_token", "")

	// Sweeper
	viper.SetDefault("sweeper.interval_minutes", 10)
	viper.SetDefault("sweeper.retention_days", 30)

	// Security
	viper.SetDefault("security.jwt_secret", "")
	viper.SetDefault("security.jwt_expiry", "24h")
	viper.SetDefault("security.bcrypt_cost", 12)
	viper.SetDefault("security.admin_api_key_hash", "")

	// Telemetry
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	viper.SetDefault("telemetry.service_name", "swapfolio-go")
	viper.SetDefault("telemetry.service_version", "1.0.0")
	viper.SetDefault("telemetry.log_level", "info")
}
