// Package config builds the immutable process configuration once at start.
// Components receive the values they need explicitly; nothing reads the
// environment after Load returns.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full process configuration.
type Config struct {
	Addr     string `env:"LIKENESS_ADDR" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// DatabaseURL empty selects in-memory stores.
	DatabaseURL string `env:"LIKENESS_DATABASE_URL"`
	// RedisURL empty selects the in-process last-used throttle.
	RedisURL string `env:"LIKENESS_REDIS_URL"`

	CORSOrigin        string `env:"LIKENESS_CORS_ORIGIN"`
	SessionSigningKey string `env:"LIKENESS_SESSION_SIGNING_KEY,required"`
	SessionIssuer     string `env:"LIKENESS_SESSION_ISSUER" envDefault:"likeness"`
	AdminToken        string `env:"LIKENESS_ADMIN_TOKEN"`

	Webhook      Webhook
	Kafka        Kafka
	Verification Verification
	Platform     Platform

	OTELEndpoint string `env:"OTEL_ENDPOINT"`
}

// Webhook configures the outbox worker.
type Webhook struct {
	// Endpoints maps an event family ("registry", "contributor", "bounty",
	// "usage", or "*" as fallback) to its subscriber URL.
	Endpoints    map[string]string `env:"LIKENESS_WEBHOOK_ENDPOINTS" envKeyValSeparator:"="`
	Secret       string            `env:"LIKENESS_WEBHOOK_SECRET"`
	MaxAttempts  int               `env:"LIKENESS_WEBHOOK_MAX_ATTEMPTS" envDefault:"8"`
	PollInterval time.Duration     `env:"LIKENESS_WEBHOOK_POLL_INTERVAL" envDefault:"2s"`
	Timeout      time.Duration     `env:"LIKENESS_WEBHOOK_TIMEOUT" envDefault:"10s"`
	// AllowPrivateTargets disables the SSRF guard (local development only).
	AllowPrivateTargets bool `env:"LIKENESS_WEBHOOK_ALLOW_PRIVATE" envDefault:"false"`
}

// Kafka configures the optional event mirror.
type Kafka struct {
	Brokers []string `env:"LIKENESS_KAFKA_BROKERS" envSeparator:","`
	Topic   string   `env:"LIKENESS_KAFKA_TOPIC" envDefault:"likeness.events"`
}

// Verification configures the identity-verification provider.
type Verification struct {
	BaseURL         string        `env:"LIKENESS_VERIFICATION_BASE_URL"`
	APIKey          string        `env:"LIKENESS_VERIFICATION_API_KEY"`
	WebhookSecret   string        `env:"LIKENESS_VERIFICATION_WEBHOOK_SECRET"`
	UpstreamTimeout time.Duration `env:"LIKENESS_UPSTREAM_TIMEOUT" envDefault:"5s"`
}

// Platform configures the external API surface.
type Platform struct {
	BulkMaxItems     int           `env:"LIKENESS_BULK_MAX_ITEMS" envDefault:"1000"`
	KeyTouchInterval time.Duration `env:"LIKENESS_KEY_TOUCH_INTERVAL" envDefault:"1m"`
	RatePerSec       float64       `env:"LIKENESS_PLATFORM_RATE_PER_SEC" envDefault:"50"`
	Burst            int           `env:"LIKENESS_PLATFORM_BURST" envDefault:"100"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c Config) Validate() error {
	if len(c.SessionSigningKey) < 32 {
		return fmt.Errorf("LIKENESS_SESSION_SIGNING_KEY must be at least 32 bytes")
	}
	if c.CORSOrigin != "" {
		u, err := url.Parse(c.CORSOrigin)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || strings.Trim(u.Path, "/") != "" {
			return fmt.Errorf("LIKENESS_CORS_ORIGIN must be a bare http(s) origin, got %q", c.CORSOrigin)
		}
	}
	for family, target := range c.Webhook.Endpoints {
		u, err := url.Parse(target)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("LIKENESS_WEBHOOK_ENDPOINTS: invalid url for %q", family)
		}
	}
	if len(c.Webhook.Endpoints) > 0 && c.Webhook.Secret == "" {
		return fmt.Errorf("LIKENESS_WEBHOOK_SECRET is required when webhook endpoints are configured")
	}
	if c.Webhook.MaxAttempts < 1 {
		return fmt.Errorf("LIKENESS_WEBHOOK_MAX_ATTEMPTS must be positive")
	}
	if c.Platform.BulkMaxItems < 1 {
		return fmt.Errorf("LIKENESS_BULK_MAX_ITEMS must be positive")
	}
	if c.Platform.RatePerSec <= 0 || c.Platform.Burst < 1 {
		return fmt.Errorf("platform rate limit must be positive")
	}
	if c.Verification.UpstreamTimeout <= 0 {
		return fmt.Errorf("LIKENESS_UPSTREAM_TIMEOUT must be positive")
	}
	return nil
}
