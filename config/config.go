package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT" envDefault:"8080" validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	RedisURL    string `env:"REDIS_URL,required" validate:"required"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	OTPExpirySec         int    `env:"OTP_EXPIRY" envDefault:"300" validate:"min=2,max=86400"`
	OTPSecret            string `env:"OTP_SECRET,required" validate:"required,min=32"`
	OTPSingleUse         bool   `env:"OTP_SINGLE_USE" envDefault:"true"`
	OTPMaxFailedAttempts int    `env:"OTP_MAX_FAILED_ATTEMPTS" envDefault:"5" validate:"min=1,max=100"`
	MailSuffix           string `env:"MAIL_SUFFIX" envDefault:"*.gov.sg" validate:"required"`
	AppHost              string `env:"APP_HOST" envDefault:"default.gov.sg" validate:"required"`

	SessionSecret    string `env:"SESSION_SECRET,required" validate:"required,min=32"`
	CookieMaxAgeMS   int64  `env:"COOKIE_MAX_AGE" envDefault:"86400000" validate:"min=1000"`
	ProjectName      string `env:"PROJECT_NAME" envDefault:"otp-auth" validate:"required"`
	SessionSweepCron string `env:"SESSION_SWEEP_CRON" envDefault:"*/15 * * * *" validate:"required"`

	RateLimitPerMinute    int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"20" validate:"min=1"`
	AuthResponseFloorMS   int `env:"AUTH_RESPONSE_FLOOR_MS" envDefault:"400" validate:"min=0,max=10000"`
	MailDeliveryTimeoutMS int `env:"MAIL_DELIVERY_TIMEOUT_MS" envDefault:"15000" validate:"min=1000,max=120000"`

	// TrustedProxies lists the proxy IPs or CIDRs whose X-Forwarded-For is
	// believed when resolving the client IP. Ignored when Env is local.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:"," validate:"dive,cidr|ip"`

	ResendAPIKey string `env:"RESEND_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom   string `env:"RESEND_FROM"    validate:"required_if=Env production,required_if=Env staging"`
}

// Load reads .env if present, then the process environment, and validates
// the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) OTPValidity() time.Duration {
	return time.Duration(c.OTPExpirySec) * time.Second
}

func (c *Config) SessionMaxAge() time.Duration {
	return time.Duration(c.CookieMaxAgeMS) * time.Millisecond
}

// SecureCookies is true outside local development.
func (c *Config) SecureCookies() bool {
	return c.Env != "local"
}

func (c *Config) ResponseFloor() time.Duration {
	return time.Duration(c.AuthResponseFloorMS) * time.Millisecond
}

func (c *Config) MailDeliveryTimeout() time.Duration {
	return time.Duration(c.MailDeliveryTimeoutMS) * time.Millisecond
}

// ProxiesToTrust is nil for local development, so the client IP is always
// the socket peer there.
func (c *Config) ProxiesToTrust() []string {
	if c.Env == "local" {
		return nil
	}
	return c.TrustedProxies
}
