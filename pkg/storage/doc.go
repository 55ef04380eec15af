// Package storage holds the connection plumbing shared by the persistent
// backends.
//
// NewRedisClient builds the go-redis client used by the plan catalog cache,
// the Redis session store and the readiness check. The postgres subpackage
// opens pooled database/sql connections (lib/pq driver) and applies the
// versioned SQL migrations that the billing and tenants stores embed.
//
//	db, err := postgres.Open(ctx, postgres.DefaultConnectionConfig(url))
//	if err != nil {
//		return err
//	}
//	migrations, _ := postgres.LoadMigrations(billing.MigrationFS, "migrations")
//	err = postgres.RunMigrations(ctx, db, "billing_migrations", migrations, logger)
package storage
