package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"donationledger/internal/auth"
	"donationledger/internal/db"
	"donationledger/internal/server"
	"donationledger/internal/storage"

	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "Start the HTTP server",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "migrate",
			Usage: "Apply pending migrations before serving",
		},
	},
	Action: serve,
}

func serve(cCtx *cli.Context) error {
	ctx, stop := signal.NotifyContext(cCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config, err := loadConfig(cCtx.String("env-prefix"))
	if err != nil {
		return err
	}

	logger := newLogger(config)

	awsConfig, err := loadAWSConfig(ctx)
	if err != nil {
		return err
	}

	pool, err := db.Connect(ctx, config)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cCtx.Bool("migrate") {
		if err := db.MigrateUp(ctx, pool); err != nil {
			return err
		}
	}

	verifier, err := auth.NewJWKSVerifier(ctx, config)
	if err != nil {
		return err
	}

	core := buildLedger(logger, config, pool)

	srv, err := server.New(
		config,
		logger,
		core,
		auth.NewAuthenticator(cognitoidentityprovider.NewFromConfig(awsConfig), config.CognitoClientID),
		verifier,
		storage.NewImageStore(s3.NewFromConfig(awsConfig), config.ImageBucket, config.ImagePublicBaseURL),
	)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if config.ReconcileSchedule != "" {
		scheduler := cron.New()
		_, err := scheduler.AddFunc(config.ReconcileSchedule, func() {
			if _, err := core.Reconciler.Reconcile(gctx); err != nil {
				logger.WithError(err).Error("scheduled reconciliation failed")
			}
		})
		if err != nil {
			return fmt.Errorf("invalid RECONCILE_SCHEDULE %q: %w", config.ReconcileSchedule, err)
		}

		scheduler.Start()
		logger.WithField("schedule", config.ReconcileSchedule).Info("reconciliation scheduled")

		g.Go(func() error {
			<-gctx.Done()
			<-scheduler.Stop().Done()
			return nil
		})
	}

	g.Go(func() error {
		logger.WithField("port", config.ServerPort).Infof("server starting http://localhost:%d", config.ServerPort)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return srv.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server stopped with error")
		return err
	}

	logger.Info("server stopped")
	return nil
}
