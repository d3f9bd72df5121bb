package main

import (
	"donationledger/internal/db"

	"github.com/urfave/cli/v2"
)

var migrateCommand = &cli.Command{
	Name:  "migrate",
	Usage: "Apply or roll back database migrations",
	Subcommands: []*cli.Command{
		{
			Name:  "up",
			Usage: "Apply all pending migrations",
			Action: func(cCtx *cli.Context) error {
				_, logger, pool, err := bootstrap(cCtx)
				if err != nil {
					return err
				}
				defer pool.Close()

				if err := db.MigrateUp(cCtx.Context, pool); err != nil {
					return err
				}

				logger.Info("migrations applied")
				return nil
			},
		},
		{
			Name:  "down",
			Usage: "Roll back migrations",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "steps",
					Usage: "Number of migrations to roll back",
					Value: 1,
				},
			},
			Action: func(cCtx *cli.Context) error {
				_, logger, pool, err := bootstrap(cCtx)
				if err != nil {
					return err
				}
				defer pool.Close()

				steps := cCtx.Int("steps")
				if err := db.MigrateDown(cCtx.Context, pool, steps); err != nil {
					return err
				}

				logger.WithField("steps", steps).Info("migrations rolled back")
				return nil
			},
		},
	},
}
