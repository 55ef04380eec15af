package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/edpsych-connect/connect/pkg/billing"
	"github.com/edpsych-connect/connect/pkg/httputil"
	"github.com/edpsych-connect/connect/pkg/middleware"
	"github.com/edpsych-connect/connect/pkg/observability"
	"github.com/edpsych-connect/connect/pkg/sessions"
	"github.com/edpsych-connect/connect/pkg/tenants"
)

const defaultMaxBodyBytes = 1 << 20

// Deps are the collaborators the API server routes requests to. Billing,
// Tenants and Sessions are required.
type Deps struct {
	Billing  *billing.Manager
	Tenants  *tenants.Manager
	Sessions sessions.Store

	// Limiter is optional; without it requests are not rate limited
	Limiter middleware.Limiter
	// Health is optional; without it /healthz and /readyz are not served
	Health *observability.HealthChecker
	// Registry and Metrics are optional; /metrics is served when Registry is set
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Logger   *observability.Logger

	CORSOrigins  []string
	MaxBodyBytes int64

	// SessionTTL is the lifetime of sessions opened by POST /api/auth/session
	SessionTTL time.Duration
	// SecureCookies marks the session cookie Secure
	SecureCookies bool
	// DevLogin enables POST /api/auth/session, which signs in any user id
	// without credentials
	DevLogin bool
	// Tracing wraps the handler with OpenTelemetry spans
	Tracing bool
}

// Server is the HTTP API of the subscription and tenant user services
type Server struct {
	deps    Deps
	router  *mux.Router
	handler http.Handler
}

// NewServer creates the API server and registers every route
func NewServer(deps Deps) (*Server, error) {
	if deps.Billing == nil || deps.Tenants == nil || deps.Sessions == nil {
		return nil, errors.New("billing, tenants and sessions are required")
	}
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = defaultMaxBodyBytes
	}
	if deps.SessionTTL <= 0 {
		deps.SessionTTL = sessions.DefaultTTL
	}

	s := &Server{
		deps:   deps,
		router: mux.NewRouter(),
	}
	s.setupRoutes()

	var handler http.Handler = s.router
	handler = httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(deps.Logger),
		httputil.RecoveryMiddleware,
		httputil.CORSMiddleware(deps.CORSOrigins),
		httputil.MaxBytesMiddleware(deps.MaxBodyBytes),
		httputil.ContentTypeMiddleware,
	)(handler)
	if deps.Tracing {
		handler = otelhttp.NewHandler(handler, "connect-api")
	}
	s.handler = handler
	return s, nil
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	if s.deps.Metrics != nil {
		// route templates are only known once mux has matched
		s.router.Use(observability.HTTPMetricsMiddleware(s.deps.Metrics))
	}

	if s.deps.Health != nil {
		s.router.HandleFunc("/healthz", s.deps.Health.Liveness).Methods("GET")
		s.router.HandleFunc("/readyz", s.deps.Health.Readiness).Methods("GET")
	}
	if s.deps.Registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(s.deps.Registry)).Methods("GET")
	}

	api := s.router.PathPrefix("/api").Subrouter()

	subscriptionHandlers := NewSubscriptionHandlers(s.deps.Billing)
	tenantHandlers := NewTenantHandlers(s.deps.Tenants)
	sessionHandlers := NewSessionHandlers(s.deps.Sessions, SessionSettings{
		TTL:      s.deps.SessionTTL,
		Secure:   s.deps.SecureCookies,
		DevLogin: s.deps.DevLogin,
	})

	// the provider signs its deliveries, so the webhook sits outside the
	// session and rate limit guards
	api.HandleFunc("/subscriptions/webhook", subscriptionHandlers.HandleWebhook).Methods("POST")

	public := api.NewRoute().Subrouter()
	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.RequireSession(s.deps.Sessions))
	if s.deps.Limiter != nil {
		public.Use(middleware.RateLimit(s.deps.Limiter))
		protected.Use(middleware.RateLimit(s.deps.Limiter))
	}

	subscriptionHandlers.RegisterPublicRoutes(public)
	sessionHandlers.RegisterRoutes(public)
	tenantHandlers.RegisterPublicRoutes(public)

	subscriptionTenant := protected.PathPrefix("/subscriptions/tenants/{" + middleware.TenantVar + "}").Subrouter()
	subscriptionTenant.Use(middleware.TenantContext)
	subscriptionHandlers.RegisterRoutes(subscriptionTenant)

	tenant := protected.PathPrefix("/tenants/{" + middleware.TenantVar + "}").Subrouter()
	tenant.Use(middleware.TenantContext)
	tenantHandlers.RegisterRoutes(tenant)
}

// Router returns the route table, for callers that mount extra routes
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the router wrapped in the global middleware
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
