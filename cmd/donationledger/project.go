package main

import (
	"fmt"

	"donationledger/internal/ledger"

	"github.com/k0kubun/pp/v3"
	"github.com/urfave/cli/v2"
)

var projectCommand = &cli.Command{
	Name:  "project",
	Usage: "Inspect projects",
	Subcommands: []*cli.Command{
		{
			Name:      "show",
			Usage:     "Print a project with its needs and progress",
			ArgsUsage: "<project-id>",
			Action: func(cCtx *cli.Context) error {
				id := cCtx.Args().First()
				if id == "" {
					return cli.Exit("project id is required", 1)
				}

				cfg, logger, pool, err := bootstrap(cCtx)
				if err != nil {
					return err
				}
				defer pool.Close()

				core := buildLedger(logger, cfg, pool)

				project, err := core.Catalog.GetProject(cCtx.Context, id)
				if err != nil {
					return err
				}

				pp.Println(project)
				fmt.Println("progress:", ledger.ComputeProgress(project.ItemsFulfilled, project.ItemsNeeded))
				for _, need := range project.Needs {
					fmt.Printf("  %-30s %4d/%-4d %s\n", need.Name, need.QuantityFulfilled, need.QuantityNeeded, ledger.NeedStatusBucket(need))
				}

				return nil
			},
		},
	},
}
