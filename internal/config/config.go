// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mbd888/riskgate/internal/risk"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "json" or "text"
	LogFile   string // rotated file output in addition to stdout (optional)

	// Downstream services
	PaymentServiceURL      string
	AccountServiceURL      string
	VerificationServiceURL string
	DownstreamTimeout      time.Duration

	// Circuit breaker, per downstream service
	BreakerThreshold    int
	BreakerOpenDuration time.Duration

	// Risk engine housekeeping
	SweepSchedule string // cron spec
	ActivityTTL   time.Duration

	// Requests per minute per client on the admin endpoints; 0 disables.
	AdminRateLimitRPM int

	// OTLP gRPC collector; empty disables tracing.
	OTLPEndpoint string

	// Browser origins allowed by CORS; empty allows all.
	CORSAllowedOrigins []string

	// Proxy IPs or CIDRs whose X-Forwarded-For is honoured. Empty means the
	// client IP is always the socket peer.
	TrustedProxies []string
}

const (
	DefaultPort                   = "4000"
	DefaultEnv                    = "development"
	DefaultLogLevel               = "info"
	DefaultLogFormat              = "json"
	DefaultPaymentServiceURL      = "http://localhost:3001"
	DefaultAccountServiceURL      = "http://localhost:3002"
	DefaultVerificationServiceURL = "http://localhost:3003"
	DefaultDownstreamTimeout      = 10 * time.Second
	DefaultBreakerThreshold       = 5
	DefaultBreakerOpenDuration    = 30 * time.Second
	DefaultActivityTTL            = time.Hour
	DefaultAdminRateLimitRPM      = 60
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                   getEnv("PORT", DefaultPort),
		Env:                    getEnv("ENV", DefaultEnv),
		LogLevel:               getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:              getEnv("LOG_FORMAT", DefaultLogFormat),
		LogFile:                os.Getenv("LOG_FILE"),
		PaymentServiceURL:      getEnv("PAYMENT_SERVICE_URL", DefaultPaymentServiceURL),
		AccountServiceURL:      getEnv("ACCOUNT_SERVICE_URL", DefaultAccountServiceURL),
		VerificationServiceURL: getEnv("VERIFICATION_SERVICE_URL", DefaultVerificationServiceURL),
		DownstreamTimeout:      getEnvDuration("DOWNSTREAM_TIMEOUT", DefaultDownstreamTimeout),
		BreakerThreshold:       int(getEnvInt64("BREAKER_THRESHOLD", DefaultBreakerThreshold)),
		BreakerOpenDuration:    getEnvDuration("BREAKER_OPEN_DURATION", DefaultBreakerOpenDuration),
		SweepSchedule:          getEnv("SWEEP_SCHEDULE", risk.DefaultSweepSchedule),
		ActivityTTL:            getEnvDuration("ACTIVITY_TTL", DefaultActivityTTL),
		AdminRateLimitRPM:      int(getEnvInt64("ADMIN_RATE_LIMIT_RPM", DefaultAdminRateLimitRPM)),
		OTLPEndpoint:           os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		CORSAllowedOrigins:     getEnvList("CORS_ALLOWED_ORIGINS"),
		TrustedProxies:         getEnvList("TRUSTED_PROXIES"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if p, err := strconv.Atoi(c.Port); err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", c.Port)
	}

	for _, svc := range []struct{ key, value string }{
		{"PAYMENT_SERVICE_URL", c.PaymentServiceURL},
		{"ACCOUNT_SERVICE_URL", c.AccountServiceURL},
		{"VERIFICATION_SERVICE_URL", c.VerificationServiceURL},
	} {
		if err := validateURL(svc.value); err != nil {
			return fmt.Errorf("%s: %w", svc.key, err)
		}
	}

	if c.DownstreamTimeout <= 0 {
		return fmt.Errorf("DOWNSTREAM_TIMEOUT must be positive")
	}
	if c.BreakerThreshold <= 0 {
		return fmt.Errorf("BREAKER_THRESHOLD must be positive")
	}
	if c.BreakerOpenDuration <= 0 {
		return fmt.Errorf("BREAKER_OPEN_DURATION must be positive")
	}
	if c.ActivityTTL <= 0 {
		return fmt.Errorf("ACTIVITY_TTL must be positive")
	}
	if c.AdminRateLimitRPM < 0 {
		return fmt.Errorf("ADMIN_RATE_LIMIT_RPM must not be negative")
	}
	if err := risk.ValidateSchedule(c.SweepSchedule); err != nil {
		return fmt.Errorf("SWEEP_SCHEDULE: %w", err)
	}

	for _, p := range c.TrustedProxies {
		if err := validateProxy(p); err != nil {
			return fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid URL %q: must be absolute http(s)", raw)
	}
	return nil
}

func validateProxy(p string) error {
	if strings.Contains(p, "/") {
		if _, _, err := net.ParseCIDR(p); err != nil {
			return fmt.Errorf("invalid CIDR %q", p)
		}
		return nil
	}
	if net.ParseIP(p) == nil {
		return fmt.Errorf("invalid IP %q", p)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvDuration accepts Go durations ("30s") or a bare number of milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
