// Package mongo connects dialbill to MongoDB.
//
// MongoDB is the coordination point between stateless workers: tenant
// balances move through $inc, and scheduled-action claims are single
// conditional updates. This package only owns the connection: retries with a
// ping per attempt, pool settings from the environment, and a readiness probe.
//
//	var cfg mongo.Config
//	config.MustLoad(&cfg)
//
//	db, err := mongo.NewWithDatabase(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	tenants := tenant.NewMongoStore(db, "")
//
// Healthcheck returns the probe for an httpserver.Check.
package mongo
