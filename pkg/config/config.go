package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/edpsych-connect/connect/pkg/observability"
)

// Billing providers
const (
	ProviderSimulated = "simulated"
	ProviderStripe    = "stripe"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage"`

	Billing   BillingConfig   `yaml:"billing"`
	Tenants   TenantsConfig   `yaml:"tenants"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes"`
}

// Addr is the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// StorageConfig selects the backing stores. Without a PostgreSQL URL users,
// invitations and subscriptions live in memory; without a Redis URL so do
// sessions and rate limits.
type StorageConfig struct {
	PostgresURL      string        `yaml:"postgresUrl"`
	PostgresMaxConns int           `yaml:"postgresMaxConns"`
	PostgresMinConns int           `yaml:"postgresMinConns"`
	PostgresTimeout  time.Duration `yaml:"postgresTimeout"`

	RedisURL        string `yaml:"redisUrl"`
	RedisPassword   string `yaml:"redisPassword"`
	RedisDB         int    `yaml:"redisDb"`
	RedisMaxRetries int    `yaml:"redisMaxRetries"`
	RedisPoolSize   int    `yaml:"redisPoolSize"`
}

// BillingConfig holds billing provider settings
type BillingConfig struct {
	Provider            string `yaml:"provider"`
	StripeSecretKey     string `yaml:"stripeSecretKey"`
	StripeWebhookSecret string `yaml:"stripeWebhookSecret"`
	// PriceIDs maps <plan>_<interval> to provider price ids
	PriceIDs        map[string]string `yaml:"priceIds"`
	PortalReturnURL string            `yaml:"portalReturnUrl"`
	CatalogTTL      time.Duration     `yaml:"catalogTtl"`

	// Simulated provider only
	SimulatedWebhookSecret string        `yaml:"simulatedWebhookSecret"`
	TrialPeriod            time.Duration `yaml:"trialPeriod"`
	SimulatedTickSchedule  string        `yaml:"simulatedTickSchedule"`
}

// TenantsConfig holds tenant user and invitation settings
type TenantsConfig struct {
	InvitationTTL time.Duration `yaml:"invitationTtl"`
	AcceptURL     string        `yaml:"acceptUrl"`
	SweepSchedule string        `yaml:"sweepSchedule"`
	BulkWorkers   int           `yaml:"bulkWorkers"`
}

// SessionsConfig holds session cookie settings
type SessionsConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SecureCookies bool          `yaml:"secureCookies"`
	DevLogin      bool          `yaml:"devLogin"`
}

// RateLimitConfig holds request rate limit settings
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerWindow int           `yaml:"requestsPerWindow"`
	Window            time.Duration `yaml:"window"`
	Burst             int           `yaml:"burst"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string `yaml:"logLevel"`

	// Metrics
	MetricsEnabled bool `yaml:"metricsEnabled"`

	// OpenTelemetry
	OTelEnabled        bool   `yaml:"otelEnabled"`
	OTelEndpoint       string `yaml:"otelEndpoint"`
	OTelServiceName    string `yaml:"otelServiceName"`
	OTelServiceVersion string `yaml:"otelServiceVersion"`
	OTelInsecure       bool   `yaml:"otelInsecure"` // Use insecure gRPC connection
}

// Level is the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return parseLogLevel(o.LogLevel)
}

// Default returns the configuration used when nothing is set: an in-memory
// development server on :8080 with the simulated billing provider.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Storage: StorageConfig{
			PostgresMaxConns: 25,
			PostgresMinConns: 5,
			PostgresTimeout:  10 * time.Second,
			RedisMaxRetries:  3,
			RedisPoolSize:    10,
		},
		Billing: BillingConfig{
			Provider:              ProviderSimulated,
			CatalogTTL:            5 * time.Minute,
			SimulatedTickSchedule: "@every 1m",
		},
		Tenants: TenantsConfig{
			InvitationTTL: 7 * 24 * time.Hour,
			SweepSchedule: "@every 5m",
			BulkWorkers:   8,
		},
		Sessions: SessionsConfig{
			TTL: 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerWindow: 300,
			Window:            time.Minute,
			Burst:             30,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "connect-api",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// LoadConfig loads the defaults, then the YAML file named by
// CONNECT_CONFIG_FILE when set, then CONNECT_* environment variables, and
// validates the result
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONNECT_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile overlays the YAML file at path; keys it omits keep their values
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("CONNECT_HOST", s.Host)
	s.Port = getEnv("CONNECT_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("CONNECT_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("CONNECT_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("CONNECT_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("CONNECT_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.CORSOrigins = getEnvList("CONNECT_CORS_ORIGINS", s.CORSOrigins)
	s.MaxBodyBytes = getEnvInt64("CONNECT_MAX_BODY_BYTES", s.MaxBodyBytes)

	st := &c.Storage
	st.PostgresURL = getEnv("CONNECT_POSTGRES_URL", st.PostgresURL)
	st.PostgresMaxConns = getEnvInt("CONNECT_POSTGRES_MAX_CONNS", st.PostgresMaxConns)
	st.PostgresMinConns = getEnvInt("CONNECT_POSTGRES_MIN_CONNS", st.PostgresMinConns)
	st.PostgresTimeout = getEnvDuration("CONNECT_POSTGRES_TIMEOUT", st.PostgresTimeout)
	st.RedisURL = getEnv("CONNECT_REDIS_URL", st.RedisURL)
	st.RedisPassword = getEnv("CONNECT_REDIS_PASSWORD", st.RedisPassword)
	st.RedisDB = getEnvInt("CONNECT_REDIS_DB", st.RedisDB)
	st.RedisMaxRetries = getEnvInt("CONNECT_REDIS_MAX_RETRIES", st.RedisMaxRetries)
	st.RedisPoolSize = getEnvInt("CONNECT_REDIS_POOL_SIZE", st.RedisPoolSize)

	b := &c.Billing
	b.Provider = strings.ToLower(getEnv("CONNECT_BILLING_PROVIDER", b.Provider))
	b.StripeSecretKey = getEnv("CONNECT_STRIPE_SECRET_KEY", b.StripeSecretKey)
	b.StripeWebhookSecret = getEnv("CONNECT_STRIPE_WEBHOOK_SECRET", b.StripeWebhookSecret)
	b.PriceIDs = getEnvMap("CONNECT_STRIPE_PRICE_IDS", b.PriceIDs)
	b.PortalReturnURL = getEnv("CONNECT_PORTAL_RETURN_URL", b.PortalReturnURL)
	b.CatalogTTL = getEnvDuration("CONNECT_CATALOG_TTL", b.CatalogTTL)
	b.SimulatedWebhookSecret = getEnv("CONNECT_SIMULATED_WEBHOOK_SECRET", b.SimulatedWebhookSecret)
	b.TrialPeriod = getEnvDuration("CONNECT_TRIAL_PERIOD", b.TrialPeriod)
	b.SimulatedTickSchedule = getEnv("CONNECT_SIMULATED_TICK_SCHEDULE", b.SimulatedTickSchedule)

	t := &c.Tenants
	t.InvitationTTL = getEnvDuration("CONNECT_INVITATION_TTL", t.InvitationTTL)
	t.AcceptURL = getEnv("CONNECT_INVITATION_ACCEPT_URL", t.AcceptURL)
	t.SweepSchedule = getEnv("CONNECT_SWEEP_SCHEDULE", t.SweepSchedule)
	t.BulkWorkers = getEnvInt("CONNECT_BULK_WORKERS", t.BulkWorkers)

	se := &c.Sessions
	se.TTL = getEnvDuration("CONNECT_SESSION_TTL", se.TTL)
	se.SecureCookies = getEnvBool("CONNECT_SECURE_COOKIES", se.SecureCookies)
	se.DevLogin = getEnvBool("CONNECT_DEV_LOGIN", se.DevLogin)

	r := &c.RateLimit
	r.Enabled = getEnvBool("CONNECT_RATE_LIMIT_ENABLED", r.Enabled)
	r.RequestsPerWindow = getEnvInt("CONNECT_RATE_LIMIT_REQUESTS", r.RequestsPerWindow)
	r.Window = getEnvDuration("CONNECT_RATE_LIMIT_WINDOW", r.Window)
	r.Burst = getEnvInt("CONNECT_RATE_LIMIT_BURST", r.Burst)

	o := &c.Observability
	o.LogLevel = getEnv("CONNECT_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("CONNECT_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("CONNECT_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("CONNECT_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("CONNECT_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("CONNECT_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("CONNECT_OTEL_INSECURE", o.OTelInsecure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}

	switch c.Billing.Provider {
	case ProviderSimulated:
		if _, err := cron.ParseStandard(c.Billing.SimulatedTickSchedule); err != nil {
			return fmt.Errorf("invalid simulated tick schedule %q: %w", c.Billing.SimulatedTickSchedule, err)
		}
	case ProviderStripe:
		if c.Billing.StripeSecretKey == "" {
			return fmt.Errorf("stripe secret key is required for the stripe provider")
		}
		if c.Billing.StripeWebhookSecret == "" {
			return fmt.Errorf("stripe webhook secret is required for the stripe provider")
		}
	default:
		return fmt.Errorf("invalid billing provider: %s (must be simulated or stripe)", c.Billing.Provider)
	}

	if c.Tenants.InvitationTTL <= 0 {
		return fmt.Errorf("invitation TTL must be positive")
	}
	if _, err := cron.ParseStandard(c.Tenants.SweepSchedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", c.Tenants.SweepSchedule, err)
	}
	if c.Sessions.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.Sessions.DevLogin && c.Billing.Provider == ProviderStripe {
		return fmt.Errorf("dev login cannot be combined with the stripe provider")
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate limit requests and window must be positive when enabled")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvMap parses key=value pairs separated by commas. Pairs without "="
// are skipped.
func getEnvMap(key string, defaultValue map[string]string) map[string]string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(value, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if k = strings.TrimSpace(k); k != "" {
			out[k] = strings.TrimSpace(v)
		}
	}
	return out
}
