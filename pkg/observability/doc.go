// Package observability provides logging, metrics, tracing, health checks
// and shutdown coordination for the connect server.
//
// # Logging
//
// Logger wraps logrus with a JSON formatter. Request handlers pull a
// request-scoped logger out of the context:
//
//	logger := observability.FromContext(r.Context())
//	logger.WithField("plan", plan).Info("Checkout session created")
//
// # Metrics
//
// NewMetrics registers the connect_* collectors on a registry.
// HTTPMetricsMiddleware labels requests with the mux route template.
//
// # Health
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	router.HandleFunc("/healthz", checker.Liveness)
//	router.HandleFunc("/readyz", checker.Readiness)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "connect-server",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
