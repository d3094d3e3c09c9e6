package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/substrack/svc/billing"
	"github.com/dmitrymomot/substrack/svc/billing/pgstore"
)

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute plan subscriber counters from subscriber rows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadDBConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg.Env, cfg.LogLevel)
			ctx := cmd.Context()

			pool, err := connectDB(ctx, cfg.PG, log)
			if err != nil {
				return err
			}
			defer pool.Close()

			drifts, err := billing.NewReconciler(pgstore.New(pool), nil, log).Run(ctx)
			if err != nil {
				return err
			}
			for _, d := range drifts {
				fmt.Fprintf(cmd.OutOrStdout(), "plan %s: %d -> %d\n", d.PlanID, d.Stored, d.Actual)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d counters corrected\n", len(drifts))
			return nil
		},
	}
}
