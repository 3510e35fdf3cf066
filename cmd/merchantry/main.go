package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	redis "github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/merchantry/merchantry/pkg/api"
	"github.com/merchantry/merchantry/pkg/audit"
	"github.com/merchantry/merchantry/pkg/auth"
	"github.com/merchantry/merchantry/pkg/authz"
	"github.com/merchantry/merchantry/pkg/config"
	"github.com/merchantry/merchantry/pkg/middleware"
	"github.com/merchantry/merchantry/pkg/observability"
	"github.com/merchantry/merchantry/pkg/storage"
	"github.com/merchantry/merchantry/pkg/tenants"
	"github.com/merchantry/merchantry/pkg/webhooks"
)

func main() {
	if err := run(); err != nil {
		logrus.Fatalf("merchantry: %v", err)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.LogLevel, os.Stdout)

	if ok := cfg.ValidateRequiredSecrets(logger); !ok {
		if cfg.Environment.IsProduction() {
			logger.Critical("refusing to start with missing secrets in production")
			os.Exit(1)
		}
		logger.Warn("starting with missing secrets outside production")
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.PingContext(ctx); err != nil {
		return err
	}

	if err := authz.RunMigrations(ctx, db); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	tenantSvc := tenants.NewPostgresService(db)

	evalOpts := []authz.Option{authz.WithObserver(metrics)}
	if cfg.Authz.CacheSize > 0 {
		evalOpts = append(evalOpts, authz.WithCache(cfg.Authz.CacheSize, cfg.Authz.CacheTTL))
	}
	evaluator, err := authz.NewEvaluator(tenantSvc, authz.NewSQLStore(db), evalOpts...)
	if err != nil {
		return err
	}
	// Membership writes invalidate cached decisions synchronously.
	tenantSvc.SetInvalidator(evaluator)

	store := storage.NewPostgresStore(db)
	tokens := auth.NewTokenManager(db)

	dbAudit, err := audit.NewDBLogger(db)
	if err != nil {
		return err
	}

	// The audit trail always lands in Postgres; a file sink joins the
	// fan-out when a directory is configured.
	var auditLogger audit.Logger = dbAudit
	if cfg.Audit.LogDir != "" {
		fileAudit, err := audit.NewFileLogger(audit.FileLoggerConfig{
			BasePath: cfg.Audit.LogDir,
			Rotate:   true,
		})
		if err != nil {
			return err
		}
		auditLogger = audit.NewMultiLogger(dbAudit, fileAudit)
	}
	defer auditLogger.Close()

	requestLogger := logrus.New()
	if cfg.Environment.IsProduction() {
		requestLogger.SetFormatter(&logrus.JSONFormatter{})
	}

	verifier := webhooks.NewVerifier(cfg.Webhook.Secret, cfg.Environment.IsProduction(), requestLogger)
	gate := webhooks.NewGate(verifier, cfg.Webhook.SignatureHeader, requestLogger)
	gate.SetObserver(metrics)

	var redisClient *redis.Client
	var webhookRateLimit *middleware.DistributedRateLimitMiddleware
	if cfg.Redis.URL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		webhookRateLimit = middleware.NewDistributedRateLimitMiddleware(redisClient)
	}

	server := api.NewServer(api.Dependencies{
		Evaluator:        evaluator,
		Tenants:          tenantSvc,
		Store:            store,
		Tokens:           tokens,
		Gate:             gate,
		RateLimit:        middleware.NewRateLimitMiddleware(),
		WebhookRateLimit: webhookRateLimit,
		Metrics:          metrics,
		Audit:            auditLogger,
		AuditSearch:      dbAudit,
		Logger:           requestLogger,
	})

	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@hourly", func() {
		defer observability.RecoverPanic(logger, "invitation sweep")
		if n, err := tenantSvc.CleanupExpiredInvitations(context.Background()); err != nil {
			logger.WithError(err).Error("invitation sweep failed")
		} else if n > 0 {
			logger.WithField("count", n).Info("expired invitations removed")
		}
	}); err != nil {
		return err
	}
	if _, err := sweeper.AddFunc("@daily", func() {
		defer observability.RecoverPanic(logger, "token sweep")
		if n, err := tokens.CleanupExpiredTokens(context.Background()); err != nil {
			logger.WithError(err).Error("token sweep failed")
		} else if n > 0 {
			logger.WithField("count", n).Info("expired tokens removed")
		}
	}); err != nil {
		return err
	}
	sweeper.Start()
	defer func() { <-sweeper.Stop().Done() }()

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	health := observability.NewHealthChecker(db, redisClient)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	healthMux.Handle("/metrics", observability.MetricsHandler(registry))
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("api server listening")
		if err := apiServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("api server shutdown failed")
		}
		return healthServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
