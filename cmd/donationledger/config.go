package main

import (
	"context"
	"fmt"

	"donationledger/internal/db"
	"donationledger/internal/ledger"
	"donationledger/internal/server"
	"donationledger/internal/store"
	"donationledger/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// loadConfig reads PREFIX_NAME variables, falling back to NAME when the
// prefixed one is unset.
func loadConfig(prefix string) (*types.Config, error) {
	c := new(types.Config)
	if err := envconfig.Process(prefix, c); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}

	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("set DATABASE_URL")
	}

	if c.ServerPort == 0 {
		c.ServerPort = 8080
	}

	if c.IdempotencyBucketSec == 0 {
		return nil, fmt.Errorf("IDEMPOTENCY_BUCKET_SEC must be positive")
	}

	if c.IdempotencyWindowSec < c.IdempotencyBucketSec {
		return nil, fmt.Errorf("IDEMPOTENCY_WINDOW_SEC must be at least IDEMPOTENCY_BUCKET_SEC")
	}

	return c, nil
}

func loadAWSConfig(ctx context.Context) (aws.Config, error) {
	config, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}

	return config, nil
}

func newLogger(config *types.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		logger.WithError(err).Warn("unknown LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

// bootstrap loads config and opens the pool every database command starts
// from. The caller closes the pool.
func bootstrap(cCtx *cli.Context) (*types.Config, *logrus.Logger, *pgxpool.Pool, error) {
	cfg, err := loadConfig(cCtx.String("env-prefix"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg)

	pool, err := db.Connect(cCtx.Context, cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return cfg, logger, pool, nil
}

func buildLedger(logger *logrus.Logger, cfg *types.Config, pool *pgxpool.Pool) server.Ledger {
	stores := store.NewStores(pool)
	tx := store.NewTransactor(db.NewUnitOfWork(pool))

	return server.Ledger{
		Catalog:    ledger.NewCatalog(logger, stores, tx),
		Recorder:   ledger.NewRecorder(logger, stores, tx, ledger.RecorderConfigFrom(cfg)),
		Projector:  ledger.NewProjector(stores),
		Reconciler: ledger.NewReconciler(logger, stores),
	}
}
