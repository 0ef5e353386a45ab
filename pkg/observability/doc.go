// Package observability provides structured logging, Prometheus metrics,
// health checks, and graceful shutdown for the access-control services.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("actor_id", id).Info("permission granted")
//
// Per-component loggers keep the audit-pipeline diagnostic channel
// separable from request logs:
//
//	auditLog := logger.WithComponent("audit")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.AuthzDecisionsTotal.WithLabelValues("true", "platform_admin").Inc()
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	observability.RegisterHealthRoutes(mux, checker)
package observability
