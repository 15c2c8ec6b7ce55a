// Package config loads application configuration from defaults, an optional
// YAML file and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by Load.
// PNWDEALS_NEWSLETTER__SEND_TIMEOUT maps to newsletter.send_timeout.
const EnvPrefix = "PNWDEALS_"

// Supported newsletter providers.
const (
	ProviderResend = "resend"
	ProviderSES    = "ses"
	ProviderSMTP   = "smtp"
)

// Config is the root application configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Log        LogConfig        `koanf:"log"`
	CORS       CORSConfig       `koanf:"cors"`
	Admin      AdminConfig      `koanf:"admin"`
	Newsletter NewsletterConfig `koanf:"newsletter"`
	Resend     ResendConfig     `koanf:"resend"`
	SES        SESConfig        `koanf:"ses"`
	SMTP       SMTPConfig       `koanf:"smtp"`
	Stripe     StripeConfig     `koanf:"stripe"`
	Redis      RedisConfig      `koanf:"redis"`
}

// ServerConfig configures the HTTP servers.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
}

// LogConfig configures the default logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig configures cross-origin requests.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// AdminConfig configures operator endpoints. An empty token disables them.
type AdminConfig struct {
	Token string `koanf:"token"`
}

// NewsletterConfig configures the weekly newsletter.
type NewsletterConfig struct {
	WindowDays  int            `koanf:"window_days"`
	BaseURL     string         `koanf:"base_url"`
	From        string         `koanf:"from"`
	Subject     string         `koanf:"subject"`
	Concurrency int            `koanf:"concurrency"`
	SendTimeout time.Duration  `koanf:"send_timeout"`
	RateLimit   float64        `koanf:"rate_limit"`
	Provider    string         `koanf:"provider"`
	LinkSecret  string         `koanf:"link_secret"`
	LinkTTL     time.Duration  `koanf:"link_ttl"`
	LockTTL     time.Duration  `koanf:"lock_ttl"`
	Schedule    ScheduleConfig `koanf:"schedule"`
}

// ScheduleConfig configures the in-process weekly trigger.
type ScheduleConfig struct {
	Enabled bool   `koanf:"enabled"`
	Weekday string `koanf:"weekday"`
	Hour    int    `koanf:"hour"`
	Minute  int    `koanf:"minute"`
}

// ResendConfig configures the Resend provider.
type ResendConfig struct {
	APIKey string `koanf:"api_key"`
}

// SESConfig configures the Amazon SES provider.
type SESConfig struct {
	Region           string `koanf:"region"`
	AccessKeyID      string `koanf:"access_key_id"`
	SecretAccessKey  string `koanf:"secret_access_key"`
	ConfigurationSet string `koanf:"configuration_set"`
}

// SMTPConfig configures the SMTP provider.
type SMTPConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	User       string `koanf:"user"`
	Password   string `koanf:"password"`
	DisableTLS bool   `koanf:"disable_tls"`
}

// StripeConfig configures billing. Billing routes are mounted only when
// SecretKey is set.
type StripeConfig struct {
	SecretKey     string `koanf:"secret_key"`
	WebhookSecret string `koanf:"webhook_secret"`
	APIURL        string `koanf:"api_url"`
}

// RedisConfig configures the Redis client used for run locks.
type RedisConfig struct {
	URL string `koanf:"url"`
}

// BillingEnabled reports whether Stripe is configured.
func (c *Config) BillingEnabled() bool {
	return c.Stripe.SecretKey != ""
}

var defaults = map[string]interface{}{
	"server.host":                "0.0.0.0",
	"server.port":                "8080",
	"server.metrics_port":        "9090",
	"server.read_timeout":        "15s",
	"server.read_header_timeout": "5s",
	"server.write_timeout":       "90s",
	"server.idle_timeout":        "60s",

	"database.max_open_conns":    10,
	"database.max_idle_conns":    2,
	"database.conn_max_lifetime": "30m",
	"database.connect_attempts":  5,
	"database.connect_timeout":   "60s",

	"log.level":  "info",
	"log.format": "json",

	"newsletter.window_days":      7,
	"newsletter.base_url":         "http://localhost:3000",
	"newsletter.from":             "PNW Deals <deals@pnwdeals.local>",
	"newsletter.concurrency":      1,
	"newsletter.send_timeout":     "30s",
	"newsletter.rate_limit":       0,
	"newsletter.provider":         ProviderResend,
	"newsletter.link_ttl":         "720h",
	"newsletter.lock_ttl":         "1h",
	"newsletter.schedule.enabled": false,
	"newsletter.schedule.weekday": "monday",
	"newsletter.schedule.hour":    9,
	"newsletter.schedule.minute":  0,

	"ses.region": "us-east-1",
	"smtp.port":  587,
}

// legacyEnv maps well-known unprefixed variables onto config keys.
var legacyEnv = map[string]string{
	"DATABASE_URL":          "database.url",
	"APP_URL":               "newsletter.base_url",
	"RESEND_API_KEY":        "resend.api_key",
	"STRIPE_SECRET_KEY":     "stripe.secret_key",
	"STRIPE_WEBHOOK_SECRET": "stripe.webhook_secret",
	"REDIS_URL":             "redis.url",
}

// Load reads configuration. Later sources override earlier ones:
// defaults, the YAML file at path (if not empty), legacy variables and
// finally PNWDEALS_* variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	for name, key := range legacyEnv {
		if value, ok := os.LookupEnv(name); ok && value != "" {
			if err := k.Set(key, value); err != nil {
				return nil, fmt.Errorf("set %s from %s: %w", key, name, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}

	n := c.Newsletter
	if n.WindowDays <= 0 {
		errs = append(errs, fmt.Errorf("newsletter.window_days must be positive, got %d", n.WindowDays))
	}
	if n.BaseURL == "" {
		errs = append(errs, errors.New("newsletter.base_url is required"))
	}
	if n.From == "" {
		errs = append(errs, errors.New("newsletter.from is required"))
	}
	if n.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("newsletter.concurrency must be at least 1, got %d", n.Concurrency))
	}
	if n.SendTimeout <= 0 {
		errs = append(errs, errors.New("newsletter.send_timeout must be positive"))
	}
	if n.RateLimit < 0 {
		errs = append(errs, errors.New("newsletter.rate_limit must not be negative"))
	}
	switch n.Provider {
	case ProviderResend, ProviderSES, ProviderSMTP:
	default:
		errs = append(errs, fmt.Errorf("newsletter.provider must be one of resend, ses, smtp, got %q", n.Provider))
	}
	if n.Schedule.Hour < 0 || n.Schedule.Hour > 23 {
		errs = append(errs, fmt.Errorf("newsletter.schedule.hour out of range: %d", n.Schedule.Hour))
	}
	if n.Schedule.Minute < 0 || n.Schedule.Minute > 59 {
		errs = append(errs, fmt.Errorf("newsletter.schedule.minute out of range: %d", n.Schedule.Minute))
	}

	if (c.Stripe.SecretKey == "") != (c.Stripe.WebhookSecret == "") {
		errs = append(errs, errors.New("stripe.secret_key and stripe.webhook_secret must be set together"))
	}

	return errors.Join(errs...)
}
