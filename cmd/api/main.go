package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/churnguard-backend/api/routes"
	"github.com/angelmondragon/churnguard-backend/internal/accounts"
	"github.com/angelmondragon/churnguard-backend/internal/customers"
	"github.com/angelmondragon/churnguard-backend/internal/imports"
	"github.com/angelmondragon/churnguard-backend/internal/plans"
	"github.com/angelmondragon/churnguard-backend/internal/reconciler"
	stripewebhook "github.com/angelmondragon/churnguard-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/churnguard-backend/pkg/config"
	"github.com/angelmondragon/churnguard-backend/pkg/db"
	"github.com/angelmondragon/churnguard-backend/pkg/instance"
	"github.com/angelmondragon/churnguard-backend/pkg/logger"
	"github.com/angelmondragon/churnguard-backend/pkg/metrics"
	"github.com/angelmondragon/churnguard-backend/pkg/migrate"
	"github.com/angelmondragon/churnguard-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/churnguard-backend/pkg/stripe"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	planResolver, err := plans.NewResolver(cfg.Plans, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to load plan catalog", err)
		os.Exit(1)
	}

	accountsRepo := accounts.NewRepository(dbClient.DB())
	gateway, err := accounts.NewGateway(dbClient, accountsRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create account gateway", err)
		os.Exit(1)
	}

	rec, err := reconciler.New(reconciler.Config{
		Plans:      planResolver,
		Accounts:   accountsRepo,
		Gateway:    gateway,
		Metrics:    metrics.NewWebhookMetrics(registry),
		Logger:     logg,
		MaxRetries: cfg.Webhooks.MaxApplyRetries,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciler", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Reconciler:    rec,
		Subscriptions: stripeClient,
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewEventClaims(redisClient, cfg.Webhooks.IdempotencyTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook guard", err)
		os.Exit(1)
	}
	webhookGuard.WithInFlightTTL(cfg.Webhooks.InFlightTTL)

	customersRepo := customers.NewRepository(dbClient.DB())
	importService, err := imports.NewService(imports.ServiceParams{
		TxRunner:  dbClient,
		Batches:   imports.NewRepository(dbClient.DB()),
		Customers: customersRepo,
		Metrics:   metrics.NewImportMetrics(registry),
		Logger:    logg,
		BatchSize: cfg.Imports.BatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create import service", err)
		os.Exit(1)
	}

	importRunner, err := imports.NewRunner(importService, cfg.Imports.Timeout, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create import runner", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"instance":   instance.ID(),
		"stripe_env": stripeClient.Environment(),
		"plan_keys":  planResolver.Keys(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			DB:             dbClient,
			Redis:          redisClient,
			Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
			Accounts:       gateway,
			ImportStarter:  importRunner,
			ImportReader:   importService,
			OpenProvider:   openStripeSource,
			Subscriptions:  customersRepo,
			StripeClient:   stripeClient,
			StripeWebhooks: webhookService,
			WebhookGuard:   webhookGuard,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
	}

	logg.Info(ctx, "api server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "http shutdown failed", err)
	}
	// In-flight imports are failed by the sweeper if they do not finish here.
	if err := importRunner.Wait(shutdownCtx); err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "imports still running at shutdown")
	}
}

func openStripeSource(apiKey string) (imports.ProviderSource, error) {
	lister, err := pkgstripe.NewLister(apiKey)
	if err != nil {
		return nil, err
	}
	return lister, nil
}
