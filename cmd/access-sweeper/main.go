// Command access-sweeper runs the periodic maintenance jobs: closing
// timed-out impersonation sessions and removing stale magic link
// tokens. Both jobs are idempotent, so running more than one sweeper
// is safe, just redundant.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/config"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/impersonation"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/magiclink"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/observability"
	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/storage/postgres"
)

func main() {
	sessionSchedule := flag.String("session-sweep", "@every 1m", "Schedule for the impersonation timeout sweep")
	tokenSchedule := flag.String("token-sweep", "@every 1h", "Schedule for the magic link token sweep")
	metricsPort := flag.String("metrics-port", "9091", "Port for the metrics endpoint")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger = logger.WithComponent("access-sweeper")
	logger.Info("starting access-sweeper")

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

	go metrics.CollectDBStats(context.Background(), db, 15*time.Second)

	sessionStore := impersonation.NewStore(db)
	impersonationService := impersonation.NewService(impersonation.ServiceConfig{
		Store:   sessionStore,
		Logger:  logger,
		Metrics: metrics,
		Timeout: cfg.Access.ImpersonationTimeout,
	})
	magicLinkService := magiclink.NewService(magiclink.ServiceConfig{
		Store:      magiclink.NewStore(db),
		Logger:     logger,
		Metrics:    metrics,
		Expiration: cfg.Access.MagicLinkExpiration,
	})

	scheduler := cron.New()

	_, err = scheduler.AddFunc(*sessionSchedule, func() {
		defer observability.RecoverPanic(logger, "session sweep")
		ctx := context.Background()

		count, err := impersonationService.CleanupTimedOutSessions(ctx)
		if err != nil {
			logger.WithError(err).Error("session sweep failed")
			return
		}
		if count > 0 {
			logger.WithField("count", count).Info("session sweep closed sessions")
		}

		open, err := sessionStore.CountOpenSessions(ctx)
		if err != nil {
			logger.WithError(err).Error("failed to count open sessions")
			return
		}
		metrics.ImpersonationSessionsActive.Set(float64(open))
	})
	if err != nil {
		logger.WithError(err).Error("invalid session sweep schedule")
		os.Exit(1)
	}

	_, err = scheduler.AddFunc(*tokenSchedule, func() {
		defer observability.RecoverPanic(logger, "token sweep")

		count, err := magicLinkService.CleanupExpiredTokens(context.Background())
		if err != nil {
			logger.WithError(err).Error("token sweep failed")
			return
		}
		if count > 0 {
			logger.WithField("count", count).Info("token sweep removed tokens")
		}
	})
	if err != nil {
		logger.WithError(err).Error("invalid token sweep schedule")
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:    ":" + *metricsPort,
		Handler: observability.Handler(registry),
	}
	go func() {
		logger.WithField("addr", metricsServer.Addr).Info("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("metrics server failed")
		}
	}()

	scheduler.Start()
	logger.
		WithField("session_sweep", *sessionSchedule).
		WithField("token_sweep", *tokenSchedule).
		Info("sweeps scheduled")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	metricsServer.Shutdown(context.Background())
	logger.Info("access-sweeper stopped")
}
