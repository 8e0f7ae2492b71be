// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/artpar/relayledger/domain/billing"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RELAYLEDGER_"

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Billing  BillingConfig  `yaml:"billing"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Notify   NotifyConfig   `yaml:"notify"`
	Redis    RedisConfig    `yaml:"redis"`
	Stripe   StripeConfig   `yaml:"stripe"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	AdminKey        string        `yaml:"admin_key"` // guards /v1 when set
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig configures the store.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // "sqlite", "postgres" or "memory"
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// BillingConfig configures the payment status engine.
type BillingConfig struct {
	Thresholds billing.Thresholds `yaml:"thresholds"`
	Currency   string             `yaml:"currency"`
	LockTTL    time.Duration      `yaml:"lock_ttl"` // per-org lock lease
}

// SweepConfig configures the periodic suspension sweep.
type SweepConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Schedule    string        `yaml:"schedule"` // cron spec or descriptor, e.g. "@hourly"
	Concurrency int           `yaml:"concurrency"`
	LockTTL     time.Duration `yaml:"lock_ttl"`
}

// NotifyConfig configures suspension and reinstatement emails.
// Provider is "none", "mock", "smtp" or "ses".
type NotifyConfig struct {
	Provider  string        `yaml:"provider"`
	AppName   string        `yaml:"app_name"`
	PortalURL string        `yaml:"portal_url"`
	Timeout   time.Duration `yaml:"timeout"`
	SMTP      SMTPConfig    `yaml:"smtp"`
	SES       SESConfig     `yaml:"ses"`
}

// SMTPConfig configures the SMTP transport.
type SMTPConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	From        string `yaml:"from"`
	FromName    string `yaml:"from_name"`
	UseTLS      bool   `yaml:"use_tls"`
	UseImplicit bool   `yaml:"use_implicit"`
	SkipVerify  bool   `yaml:"skip_verify"`
}

// SESConfig configures the AWS SES transport. Credentials come from the
// default AWS chain.
type SESConfig struct {
	Region           string `yaml:"region"`
	From             string `yaml:"from"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// RedisConfig configures the lock backend. An empty Addr disables locking.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"` // namespace for a shared Redis
}

// StripeConfig configures the Stripe webhook endpoint. An empty secret
// disables it.
type StripeConfig struct {
	WebhookSecret string `yaml:"webhook_secret"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // Enable /metrics endpoint
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse builds configuration from YAML bytes, applying ${VAR} expansion,
// environment overrides, defaults and validation in that order.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	cfg := Config{Metrics: MetricsConfig{Enabled: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	RELAYLEDGER_SERVER_HOST          - Server host (default: 0.0.0.0)
//	RELAYLEDGER_SERVER_PORT          - Server port (default: 8080)
//	RELAYLEDGER_ADMIN_KEY            - Required X-Admin-Key for /v1
//	RELAYLEDGER_DATABASE_DRIVER      - sqlite, postgres or memory (default: sqlite)
//	RELAYLEDGER_DATABASE_DSN         - Database path or URL (default: relayledger.db)
//	RELAYLEDGER_BILLING_GRACE_DAYS   - Grace threshold in days (default: 30)
//	RELAYLEDGER_SWEEP_ENABLED        - Run the scheduled sweep (default: false)
//	RELAYLEDGER_SWEEP_SCHEDULE       - Cron schedule (default: @hourly)
//	RELAYLEDGER_NOTIFY_PROVIDER      - none, mock, smtp or ses (default: none)
//	RELAYLEDGER_REDIS_ADDR           - Redis address for locks (default: disabled)
//	RELAYLEDGER_STRIPE_WEBHOOK_SECRET - Stripe signing secret
//	RELAYLEDGER_LOG_LEVEL            - debug, info, warn, error (default: info)
//	RELAYLEDGER_LOG_FORMAT           - json or console (default: json)
//	RELAYLEDGER_METRICS_ENABLED      - Enable /metrics (default: true)
func LoadFromEnv() (*Config, error) {
	return Parse(nil)
}

// LoadWithFallback loads path when it exists and falls back to the
// environment otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies RELAYLEDGER_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	envString("SERVER_HOST", &cfg.Server.Host)
	envInt("SERVER_PORT", &cfg.Server.Port)
	envString("ADMIN_KEY", &cfg.Server.AdminKey)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)

	// Database configuration
	envString("DATABASE_DRIVER", &cfg.Database.Driver)
	envString("DATABASE_DSN", &cfg.Database.DSN)
	envInt("DATABASE_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)

	// Billing configuration
	envInt("BILLING_GRACE_DAYS", &cfg.Billing.Thresholds.Grace)
	envInt("BILLING_PAST_DUE_DAYS", &cfg.Billing.Thresholds.PastDue)
	envInt("BILLING_FINAL_WARNING_DAYS", &cfg.Billing.Thresholds.FinalWarning)
	envInt("BILLING_DELINQUENT_DAYS", &cfg.Billing.Thresholds.Delinquent)
	envString("BILLING_CURRENCY", &cfg.Billing.Currency)

	// Sweep configuration
	envBool("SWEEP_ENABLED", &cfg.Sweep.Enabled)
	envString("SWEEP_SCHEDULE", &cfg.Sweep.Schedule)
	envInt("SWEEP_CONCURRENCY", &cfg.Sweep.Concurrency)

	// Notify configuration
	envString("NOTIFY_PROVIDER", &cfg.Notify.Provider)
	envString("NOTIFY_PORTAL_URL", &cfg.Notify.PortalURL)
	envString("SMTP_HOST", &cfg.Notify.SMTP.Host)
	envInt("SMTP_PORT", &cfg.Notify.SMTP.Port)
	envString("SMTP_USERNAME", &cfg.Notify.SMTP.Username)
	envString("SMTP_PASSWORD", &cfg.Notify.SMTP.Password)
	envString("SMTP_FROM", &cfg.Notify.SMTP.From)
	envString("SES_REGION", &cfg.Notify.SES.Region)
	envString("SES_FROM", &cfg.Notify.SES.From)

	// Redis configuration
	envString("REDIS_ADDR", &cfg.Redis.Addr)
	envString("REDIS_PASSWORD", &cfg.Redis.Password)
	envInt("REDIS_DB", &cfg.Redis.DB)

	envString("STRIPE_WEBHOOK_SECRET", &cfg.Stripe.WebhookSecret)

	// Logging configuration
	envString("LOG_LEVEL", &cfg.Logging.Level)
	envString("LOG_FORMAT", &cfg.Logging.Format)

	envBool("METRICS_ENABLED", &cfg.Metrics.Enabled)
}

func envString(name string, dst *string) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		*dst = parseBool(v)
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "relayledger.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}

	if cfg.Billing.Thresholds == (billing.Thresholds{}) {
		cfg.Billing.Thresholds = billing.DefaultThresholds()
	}
	if cfg.Billing.Currency == "" {
		cfg.Billing.Currency = "usd"
	}
	if cfg.Billing.LockTTL == 0 {
		cfg.Billing.LockTTL = 30 * time.Second
	}

	if cfg.Sweep.Schedule == "" {
		cfg.Sweep.Schedule = "@hourly"
	}
	if cfg.Sweep.Concurrency == 0 {
		cfg.Sweep.Concurrency = 4
	}
	if cfg.Sweep.LockTTL == 0 {
		cfg.Sweep.LockTTL = 30 * time.Minute
	}

	if cfg.Notify.Provider == "" {
		cfg.Notify.Provider = "none"
	}
	if cfg.Notify.AppName == "" {
		cfg.Notify.AppName = "RelayLedger"
	}
	if cfg.Notify.Timeout == 0 {
		cfg.Notify.Timeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	switch cfg.Database.Driver {
	case "sqlite", "postgres":
		if cfg.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %q", cfg.Database.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be 'sqlite', 'postgres' or 'memory', got %q", cfg.Database.Driver)
	}

	if err := cfg.Billing.Thresholds.Validate(); err != nil {
		return fmt.Errorf("billing.thresholds: %w", err)
	}

	if cfg.Sweep.Concurrency < 1 {
		return fmt.Errorf("sweep.concurrency must be positive, got %d", cfg.Sweep.Concurrency)
	}
	if _, err := cron.ParseStandard(cfg.Sweep.Schedule); err != nil {
		return fmt.Errorf("sweep.schedule %q: %w", cfg.Sweep.Schedule, err)
	}

	switch cfg.Notify.Provider {
	case "none", "mock":
	case "smtp":
		if cfg.Notify.SMTP.Host == "" {
			return fmt.Errorf("notify.smtp.host is required when notify.provider is 'smtp'")
		}
		if cfg.Notify.SMTP.From == "" {
			return fmt.Errorf("notify.smtp.from is required when notify.provider is 'smtp'")
		}
	case "ses":
		if cfg.Notify.SES.From == "" {
			return fmt.Errorf("notify.ses.from is required when notify.provider is 'ses'")
		}
	default:
		return fmt.Errorf("notify.provider must be one of: none, mock, smtp, ses")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	return nil
}
