// Package pg connects dialbill to PostgreSQL with pgx/v5 and owns the schema.
//
// It is the relational alternative to the mongo package. Connect opens a
// pgxpool.Pool with linear retry, Migrate applies the embedded goose
// migrations, and Healthcheck is a readiness probe for httpserver.Check.
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	if err := pg.Migrate(ctx, pool, cfg, log); err != nil {
//		return err
//	}
//	tenants := tenant.NewPostgresStore(pool)
//
// Money columns are NUMERIC and every balance or counter change is a single
// UPDATE ... SET x = x + $n, the same contract the Mongo stores keep with $inc.
package pg
