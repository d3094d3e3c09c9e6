package main

import (
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/substrack/pkg/pg"
	"github.com/dmitrymomot/substrack/svc/billing/pgstore"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
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

			if err := pg.Migrate(ctx, pool, cfg.PG, pgstore.Migrations, pgstore.MigrationsDir, log); err != nil {
				return err
			}
			log.InfoContext(ctx, "migrations applied")
			return nil
		},
	}
}
