package main

import (
	"fmt"

	"donationledger/internal/seed"

	"github.com/urfave/cli/v2"
)

var seedCommand = &cli.Command{
	Name:  "seed",
	Usage: "Seed the database with categories and optional fake projects",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "projects",
			Usage: "Number of fake projects to create",
			Value: 0,
		},
		&cli.BoolFlag{
			Name:  "reset",
			Usage: "Delete previously seeded fake projects first",
		},
	},
	Action: func(cCtx *cli.Context) error {
		cfg, logger, pool, err := bootstrap(cCtx)
		if err != nil {
			return err
		}
		defer pool.Close()

		logger.Info("Connected to database")

		core := buildLedger(logger, cfg, pool)

		logger.Info("Seeding categories...")
		if err := seed.SeedCategories(cCtx.Context, core.Catalog); err != nil {
			return fmt.Errorf("failed to seed categories: %w", err)
		}

		if err := seed.SeedFakeProjects(cCtx.Context, core.Catalog, core.Recorder, cCtx.Int("projects"), cCtx.Bool("reset")); err != nil {
			return fmt.Errorf("failed to seed fake projects: %w", err)
		}

		logger.Info("Seed complete")
		return nil
	},
}
