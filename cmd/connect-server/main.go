package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/edpsych-connect/connect/pkg/api"
	"github.com/edpsych-connect/connect/pkg/billing"
	"github.com/edpsych-connect/connect/pkg/config"
	"github.com/edpsych-connect/connect/pkg/middleware"
	"github.com/edpsych-connect/connect/pkg/observability"
	"github.com/edpsych-connect/connect/pkg/sessions"
	"github.com/edpsych-connect/connect/pkg/storage"
	"github.com/edpsych-connect/connect/pkg/storage/postgres"
	"github.com/edpsych-connect/connect/pkg/tenants"
)

// Version is set at build time
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "connect-server: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)
	ctx = observability.WithLogger(ctx, logger)

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	var db *sql.DB
	if cfg.Storage.PostgresURL != "" {
		pgCfg := postgres.DefaultConnectionConfig(cfg.Storage.PostgresURL)
		if cfg.Storage.PostgresMaxConns > 0 {
			pgCfg.MaxConns = cfg.Storage.PostgresMaxConns
		}
		if cfg.Storage.PostgresMinConns > 0 {
			pgCfg.MinConns = cfg.Storage.PostgresMinConns
		}
		if cfg.Storage.PostgresTimeout > 0 {
			pgCfg.Timeout = cfg.Storage.PostgresTimeout
		}
		db, err = postgres.Open(ctx, pgCfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := billing.Migrate(ctx, db, logger); err != nil {
			return err
		}
		if err := tenants.Migrate(ctx, db, logger); err != nil {
			return err
		}
		logger.Info("Connected to PostgreSQL")
	} else {
		logger.Warn("No PostgreSQL URL configured, users and subscriptions are kept in memory")
	}

	var rdb *redis.Client
	if cfg.Storage.RedisURL != "" {
		rdb, err = storage.NewRedisClient(ctx, storage.RedisConfig{
			URL:        cfg.Storage.RedisURL,
			Password:   cfg.Storage.RedisPassword,
			DB:         cfg.Storage.RedisDB,
			MaxRetries: cfg.Storage.RedisMaxRetries,
			PoolSize:   cfg.Storage.RedisPoolSize,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		logger.Info("Connected to Redis")
	}

	billingMgr, simulated := newBilling(cfg, db, rdb, metrics, logger)
	tenantMgr := newTenants(cfg, db, metrics, logger)

	var sessionStore sessions.Store
	if rdb != nil {
		sessionStore = sessions.NewRedisStore(rdb, "connect:session:", metrics)
	} else {
		sessionStore = sessions.NewMemoryStore(sessions.WithMetrics(metrics))
	}

	var limiter middleware.Limiter
	if cfg.RateLimit.Enabled {
		rlCfg := middleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.RequestsPerWindow,
			WindowDuration:    cfg.RateLimit.Window,
			BurstSize:         cfg.RateLimit.Burst,
		}
		if rdb != nil {
			limiter = middleware.NewDistributedRateLimiter(rdb, rlCfg, "connect:ratelimit:")
		} else {
			local := middleware.NewRateLimiter(rlCfg)
			local.StartCleanup(ctx)
			limiter = local
		}
	}

	sweeper, err := newSweeper(cfg, tenantMgr, billingMgr, simulated, sessionStore, logger)
	if err != nil {
		return err
	}

	deps := api.Deps{
		Billing:       billingMgr,
		Tenants:       tenantMgr,
		Sessions:      sessionStore,
		Limiter:       limiter,
		Health:        observability.NewHealthChecker(db, rdb, Version),
		Logger:        logger,
		CORSOrigins:   cfg.Server.CORSOrigins,
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
		SessionTTL:    cfg.Sessions.TTL,
		SecureCookies: cfg.Sessions.SecureCookies,
		DevLogin:      cfg.Sessions.DevLogin,
		Tracing:       cfg.Observability.OTelEnabled,
	}
	if cfg.Observability.MetricsEnabled {
		deps.Registry = registry
		deps.Metrics = metrics
	}
	server, err := api.NewServer(deps)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(sweeper.Stop)
	if otelProviders != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, otelProviders, logger)
		})
	}

	sweeper.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithFields(map[string]interface{}{
			"addr":     httpServer.Addr,
			"provider": cfg.Billing.Provider,
			"version":  Version,
		}).Info("Starting Connect API server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return shutdown.WaitForShutdown(gctx)
	})
	return g.Wait()
}

// newBilling returns the billing manager and, in simulated mode, the
// provider whose clock the sweeper advances
func newBilling(cfg *config.Config, db *sql.DB, rdb *redis.Client, metrics *observability.Metrics, logger *observability.Logger) (*billing.Manager, *billing.SimulatedProvider) {
	var store billing.Store
	if db != nil {
		store = billing.NewPostgresStore(db, metrics)
	} else {
		store = billing.NewMemoryStore()
	}

	plans := billing.DefaultPlans()
	var provider billing.Provider
	var simulated *billing.SimulatedProvider
	switch cfg.Billing.Provider {
	case config.ProviderStripe:
		plans = billing.ApplyPriceIDs(plans, cfg.Billing.PriceIDs)
		provider = billing.NewStripeProvider(cfg.Billing.StripeSecretKey, cfg.Billing.StripeWebhookSecret)
	default:
		opts := []billing.SimulatedOption{billing.WithSimulatedWebhookSecret(cfg.Billing.SimulatedWebhookSecret)}
		if cfg.Billing.TrialPeriod > 0 {
			opts = append(opts, billing.WithTrialPeriod(cfg.Billing.TrialPeriod))
		}
		simulated = billing.NewSimulatedProvider(opts...)
		provider = simulated
	}

	catalogOpts := []billing.CatalogOption{
		billing.WithCatalogMetrics(metrics),
		billing.WithCatalogLogger(logger),
	}
	if rdb != nil {
		catalogOpts = append(catalogOpts, billing.WithCatalogRedis(rdb))
	}
	if cfg.Billing.CatalogTTL > 0 {
		catalogOpts = append(catalogOpts, billing.WithCatalogTTL(cfg.Billing.CatalogTTL))
	}
	catalog := billing.NewCatalog(billing.StaticPlans(plans), catalogOpts...)

	mgr := billing.NewManager(store, provider, catalog,
		billing.WithMetrics(metrics),
		billing.WithLogger(logger),
		billing.WithPortalReturnURL(cfg.Billing.PortalReturnURL))
	return mgr, simulated
}

func newTenants(cfg *config.Config, db *sql.DB, metrics *observability.Metrics, logger *observability.Logger) *tenants.Manager {
	var store tenants.Store
	if db != nil {
		store = tenants.NewPostgresStore(db, metrics)
	} else {
		store = tenants.NewMemoryStore()
	}
	return tenants.NewManager(store,
		tenants.WithNotifier(tenants.NewLogNotifier(logger, cfg.Tenants.AcceptURL)),
		tenants.WithMetrics(metrics),
		tenants.WithLogger(logger),
		tenants.WithInvitationTTL(cfg.Tenants.InvitationTTL),
		tenants.WithBulkWorkers(cfg.Tenants.BulkWorkers))
}

// newSweeper schedules the invitation sweep plus session cleanup and, for
// the simulated provider, the billing clock
func newSweeper(cfg *config.Config, tenantMgr *tenants.Manager, billingMgr *billing.Manager,
	simulated *billing.SimulatedProvider, sessionStore sessions.Store, logger *observability.Logger) (*tenants.Sweeper, error) {

	sweeper, err := tenants.NewSweeper(tenantMgr, cfg.Tenants.SweepSchedule, logger)
	if err != nil {
		return nil, err
	}

	err = sweeper.AddFunc(cfg.Tenants.SweepSchedule, func() {
		defer observability.RecoverPanic(logger, "session cleanup")
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := sessionStore.Cleanup(ctx)
		if err != nil {
			logger.WithError(err).Warn("Session cleanup failed")
			return
		}
		if n > 0 {
			logger.WithField("count", n).Info("Removed expired sessions")
		}
	})
	if err != nil {
		return nil, err
	}

	if simulated == nil {
		return sweeper, nil
	}

	// the simulated clock follows wall time; a zero advance only emits the
	// renewals, trial ends and cancellations that have become due
	err = sweeper.AddFunc(cfg.Billing.SimulatedTickSchedule, func() {
		defer observability.RecoverPanic(logger, "simulated billing tick")
		events := simulated.AdvanceClock(0)
		if len(events) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := billingMgr.ApplyEvents(ctx, events); err != nil {
			logger.WithError(err).Warn("Failed to apply simulated billing events")
		}
	})
	if err != nil {
		return nil, err
	}
	return sweeper, nil
}
