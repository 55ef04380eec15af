// Package middleware provides the HTTP middleware that guards the tenant API.
//
// # Middleware Components
//
// RequireSession: session cookie authentication
//
//	api.Use(middleware.RequireSession(sessionStore))
//	// Reads connect_session, loads the session, 401 {"message"} when absent or expired
//
// TenantContext: copies {tenantId} from the route into the request context
//
//	tenantRouter.Use(middleware.TenantContext)
//
// RateLimit: per-user (or per-address) request limiting
//
//	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
//	// or middleware.NewDistributedRateLimiter(redisClient, cfg, "") across instances
//	api.Use(middleware.RateLimit(limiter))
//
// # Rate Limiting
//
// The in-memory limiter is a token bucket of RequestsPerWindow+BurstSize
// tokens refilled at RequestsPerWindow per window. The Redis limiter counts
// requests in fixed windows. Both fail open.
//
// # Related Packages
//
//   - pkg/sessions: session stores
//   - pkg/contextkeys: where the session, user and tenant ids are stored
package middleware
