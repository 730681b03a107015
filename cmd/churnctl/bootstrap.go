package main

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/angelmondragon/churnguard-backend/internal/accounts"
	"github.com/angelmondragon/churnguard-backend/internal/customers"
	"github.com/angelmondragon/churnguard-backend/internal/imports"
	"github.com/angelmondragon/churnguard-backend/pkg/config"
	"github.com/angelmondragon/churnguard-backend/pkg/db"
	"github.com/angelmondragon/churnguard-backend/pkg/db/models"
	"github.com/angelmondragon/churnguard-backend/pkg/logger"
	pkgstripe "github.com/angelmondragon/churnguard-backend/pkg/stripe"
)

type importService interface {
	ImportCSV(ctx context.Context, userID uuid.UUID, r io.Reader) (*models.ImportBatch, error)
	SyncProvider(ctx context.Context, userID uuid.UUID, src imports.ProviderSource) (*models.ImportBatch, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*models.ImportBatch, error)
}

type accountReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// environment is what a command needs once config and storage are up.
type environment struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           *db.Client
	Imports      importService
	Accounts     accountReader
	OpenProvider func(apiKey string) (imports.ProviderSource, error)
	Close        func()
}

type bootstrapFunc func(ctx context.Context) (*environment, error)

func loadConfig() (*config.Config, *logger.Logger, error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "churnctl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      "console",
		WarnStack:   cfg.App.LogWarnStack,
	})
	return cfg, logg, nil
}

func bootstrap(ctx context.Context) (*environment, error) {
	cfg, logg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	importService, err := imports.NewService(imports.ServiceParams{
		TxRunner:  dbClient,
		Batches:   imports.NewRepository(dbClient.DB()),
		Customers: customers.NewRepository(dbClient.DB()),
		Logger:    logg,
		BatchSize: cfg.Imports.BatchSize,
	})
	if err != nil {
		_ = dbClient.Close()
		return nil, err
	}

	gateway, err := accounts.NewGateway(dbClient, accounts.NewRepository(dbClient.DB()), logg)
	if err != nil {
		_ = dbClient.Close()
		return nil, err
	}

	return &environment{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Imports:  importService,
		Accounts: gateway,
		OpenProvider: func(apiKey string) (imports.ProviderSource, error) {
			lister, err := pkgstripe.NewLister(apiKey)
			if err != nil {
				return nil, err
			}
			return lister, nil
		},
		Close: func() {
			if err := dbClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing database", err)
			}
		},
	}, nil
}
