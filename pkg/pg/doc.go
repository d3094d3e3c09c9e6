// Package pg bootstraps PostgreSQL access over pgx/v5: a retrying pool
// constructor, goose migrations read from an fs.FS, a transaction helper,
// a readiness probe and classifiers for common driver errors.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, pgstore.Migrations, "migrations", log); err != nil {
//		return err
//	}
package pg
