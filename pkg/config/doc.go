// Package config provides application configuration from defaults, an
// optional YAML file and environment variables.
//
// # Overview
//
// LoadConfig starts from Default, overlays the YAML file named by
// CONNECT_CONFIG_FILE, then applies CONNECT_* environment variables, and
// validates the result. Every setting has a default, so an empty environment
// runs an in-memory development server with the simulated billing provider.
//
// # Configuration Structure
//
// Server settings:
//
//	CONNECT_HOST="0.0.0.0"
//	CONNECT_PORT="8080"
//	CONNECT_READ_TIMEOUT="15s"
//	CONNECT_CORS_ORIGINS="https://app.example.com,https://admin.example.com"
//
// Storage settings (memory stores when unset):
//
//	CONNECT_POSTGRES_URL="postgres://connect@localhost/connect?sslmode=disable"
//	CONNECT_REDIS_URL="redis://localhost:6379/0"
//
// Billing settings:
//
//	CONNECT_BILLING_PROVIDER="stripe"  # simulated, stripe
//	CONNECT_STRIPE_SECRET_KEY="sk_live_..."
//	CONNECT_STRIPE_WEBHOOK_SECRET="whsec_..."
//	CONNECT_STRIPE_PRICE_IDS="standard_monthly=price_123,standard_annual=price_456"
//
// Tenant and session settings:
//
//	CONNECT_INVITATION_TTL="168h"
//	CONNECT_INVITATION_ACCEPT_URL="https://app.example.com/invite"
//	CONNECT_SWEEP_SCHEDULE="@every 5m"
//	CONNECT_SESSION_TTL="24h"
//	CONNECT_DEV_LOGIN="true"
//
// Observability settings:
//
//	CONNECT_LOG_LEVEL="info"  # debug, info, warn, error
//	CONNECT_METRICS_ENABLED="true"
//	CONNECT_OTEL_ENABLED="true"
//	CONNECT_OTEL_ENDPOINT="otel-collector:4317"
//
// The same settings in YAML:
//
//	server:
//	  port: "8080"
//	  corsOrigins: ["https://app.example.com"]
//	billing:
//	  provider: stripe
//	  priceIds:
//	    standard_monthly: price_123
//	tenants:
//	  invitationTtl: 168h
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout)
//
// # Related Packages
//
//   - pkg/storage: Uses storage configuration
//   - pkg/observability: Uses observability configuration
package config
