// Command accessd serves the access control API: permission checks
// and grants, impersonation sessions, and magic link authentication.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/audit"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/authz"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/config"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/identity"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/impersonation"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/magiclink"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/middleware"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/observability"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/storage/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("starting accessd")

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	db, err := postgres.Connect(postgres.ConnectionConfig{
		URL:         cfg.Database.URL,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		logger.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	// identity first: the other schemas reference actors.
	ctx := context.Background()
	for _, m := range []struct {
		component  string
		migrations []postgres.Migration
	}{
		{"identity", identity.Migrations()},
		{"audit", audit.Migrations()},
		{"authz", authz.Migrations()},
		{"impersonation", impersonation.Migrations()},
		{"magiclink", magiclink.Migrations()},
	} {
		if err := postgres.RunMigrations(ctx, db, m.component, m.migrations); err != nil {
			logger.WithError(err).WithField("component", m.component).Error("migration failed")
			os.Exit(1)
		}
	}

	identityStore := identity.NewStore(db)
	permissionStore := authz.NewStore(db)

	auditSink, err := audit.NewDBSink(db)
	if err != nil {
		logger.WithError(err).Error("failed to create audit sink")
		os.Exit(1)
	}
	recorder := audit.NewRecorder(auditSink, logger, metrics.AuditWriteFailures)

	var redisClient *redis.Client
	var snapshotCache authz.SnapshotCache
	switch cfg.Cache.Backend {
	case "redis":
		opts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			logger.WithError(err).Error("invalid redis URL")
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		snapshotCache = authz.NewRedisCache(redisClient, cfg.Cache.ActorTTL, logger)
	default:
		snapshotCache = authz.NewMemoryCache(cfg.Cache.MaxEntries, cfg.Cache.ActorTTL)
	}
	logger.WithField("backend", cfg.Cache.Backend).Info("actor snapshot cache configured")

	resolver := authz.NewResolver(authz.ResolverConfig{
		Identities: identityStore,
		Store:      permissionStore,
		Cache:      snapshotCache,
		Recorder:   recorder,
		Logger:     logger,
		Metrics:    metrics,
	})

	impersonationService := impersonation.NewService(impersonation.ServiceConfig{
		Store:      impersonation.NewStore(db),
		Identities: identityStore,
		Logger:     logger,
		Metrics:    metrics,
		Timeout:    cfg.Access.ImpersonationTimeout,
	})

	magicLinkService := magiclink.NewService(magiclink.ServiceConfig{
		Store:      magiclink.NewStore(db),
		Identities: identityStore,
		Logger:     logger,
		Metrics:    metrics,
		Expiration: cfg.Access.MagicLinkExpiration,
		MaxPerHour: cfg.Access.MagicLinkMaxPerHour,
		BaseURL:    cfg.Access.MagicLinkBaseURL,
	})

	go metrics.CollectDBStats(ctx, db, 15*time.Second)

	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestLogging(logger))
	router.Use(middleware.RequestMetrics(metrics))

	// Magic link endpoints are anonymous; everything else needs a
	// forwarded actor identity.
	magicLinkRouter := router.PathPrefix("/auth").Subrouter()
	magiclink.NewHandlers(magicLinkService, middleware.NewPerIPRateLimiter(nil), logger).
		RegisterRoutes(magicLinkRouter)

	actorMiddleware := middleware.NewActorMiddleware(identityStore, false)
	protected := router.PathPrefix("/").Subrouter()
	protected.Use(actorMiddleware.Handler)
	protected.Use(middleware.Tenant)
	authz.NewHandlers(permissionStore, resolver, logger).RegisterRoutes(protected)
	impersonation.NewHandlers(impersonationService, logger).RegisterRoutes(protected)

	// Reading the audit log is itself an authorized operation.
	auditRouter := protected.NewRoute().Subrouter()
	auditRouter.Use(authz.RequirePermission(resolver, "audit_logs", authz.ActionRead))
	audit.NewHandlers(auditSink, logger).RegisterRoutes(auditRouter)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", observability.Handler(registry))
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}
	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return db.Close()
	})

	go func() {
		logger.WithField("addr", server.Addr).Info("accessd listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("server failed")
			os.Exit(1)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown finished with errors")
		os.Exit(1)
	}
	logger.Info("accessd stopped")
}
