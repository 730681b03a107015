package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/churnguard-backend/internal/accounts"
	"github.com/angelmondragon/churnguard-backend/internal/cron"
	"github.com/angelmondragon/churnguard-backend/internal/imports"
	"github.com/angelmondragon/churnguard-backend/pkg/config"
	"github.com/angelmondragon/churnguard-backend/pkg/db"
	"github.com/angelmondragon/churnguard-backend/pkg/instance"
	"github.com/angelmondragon/churnguard-backend/pkg/logger"
	"github.com/angelmondragon/churnguard-backend/pkg/metrics"
	"github.com/angelmondragon/churnguard-backend/pkg/migrate"
	"github.com/angelmondragon/churnguard-backend/pkg/redis"
)

type options struct {
	once bool
	job  string
}

func main() {
	var opts options
	flag.BoolVar(&opts.once, "once", false, "run every job a single time and exit")
	flag.StringVar(&opts.job, "job", "", "run only the named job once and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootLog := logger.New(logger.Options{ServiceName: "cron-worker"})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(ctx, ".env file not found, relying on environment")
	}
	if err := run(ctx, opts); err != nil && !errors.Is(err, context.Canceled) {
		bootLog.Error(ctx, "cron worker exited", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeQuietly(ctx, logg, "database", dbClient.Close)
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeQuietly(ctx, logg, "redis", redisClient.Close)

	service, err := buildService(cfg, logg, dbClient, redisClient)
	if err != nil {
		return err
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.ID(),
		"interval": cfg.Cron.Interval.String(),
	})
	switch {
	case opts.job != "":
		logg.Info(logg.WithField(ctx, "job", opts.job), "running single cron job")
		return service.RunJob(ctx, opts.job)
	case opts.once:
		logg.Info(ctx, "running one cron cycle")
		return service.RunOnce(ctx)
	default:
		logg.Info(ctx, "starting cron worker")
		err := service.Run(ctx)
		logg.Info(ctx, "cron worker shutting down")
		return err
	}
}

func buildService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*cron.Service, error) {
	sweeper, err := cron.NewImportSweeperJob(cron.ImportSweeperJobParams{
		Logger:     logg,
		Repository: imports.NewRepository(dbClient.DB()),
		StaleAfter: cfg.Imports.StaleAfter,
	})
	if err != nil {
		return nil, fmt.Errorf("import sweeper: %w", err)
	}
	retention, err := cron.NewWebhookRetentionJob(cron.WebhookRetentionJobParams{
		Logger:     logg,
		Repository: accounts.NewRepository(dbClient.DB()),
		Retention:  cfg.Webhooks.RetentionDays,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook retention: %w", err)
	}

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+env), cfg.Cron.LockTTL, instance.ID())
	if err != nil {
		return nil, fmt.Errorf("cron lock: %w", err)
	}
	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(sweeper, retention),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
}

func closeQuietly(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", what), "close failed", err)
	}
}
