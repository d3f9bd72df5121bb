package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var reconcileCommand = &cli.Command{
	Name:  "reconcile",
	Usage: "Report needs whose fulfilled counter disagrees with recorded donations",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "fail",
			Usage: "Exit non-zero when discrepancies are found",
		},
	},
	Action: func(cCtx *cli.Context) error {
		cfg, logger, pool, err := bootstrap(cCtx)
		if err != nil {
			return err
		}
		defer pool.Close()

		discrepancies, err := buildLedger(logger, cfg, pool).Reconciler.Reconcile(cCtx.Context)
		if err != nil {
			return err
		}

		for _, d := range discrepancies {
			fmt.Printf("need %s (project %s): counter %d, donations %d, drift %+d\n",
				d.NeedID, d.ProjectID, d.QuantityFulfilled, d.DonatedQuantity, d.Drift())
		}
		fmt.Printf("%d discrepancies\n", len(discrepancies))

		if len(discrepancies) > 0 && cCtx.Bool("fail") {
			return cli.Exit("ledger is out of balance", 2)
		}
		return nil
	},
}
