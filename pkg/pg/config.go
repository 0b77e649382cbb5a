package pg

import "time"

// Config is the pool configuration, parsed from PG_* variables.
type Config struct {
	ConnectionURL     string        `env:"PG_URL,required"`                        // ConnectionURL is the postgres:// connection string.
	MaxConns          int32         `env:"PG_MAX_CONNS" envDefault:"10"`           // MaxConns caps the pool size.
	MinConns          int32         `env:"PG_MIN_CONNS" envDefault:"2"`            // MinConns is the number of connections kept open.
	HealthCheckPeriod time.Duration `env:"PG_HEALTHCHECK_PERIOD" envDefault:"1m"`  // HealthCheckPeriod is the pool's idle connection check interval.
	MaxConnIdleTime   time.Duration `env:"PG_MAX_CONN_IDLE_TIME" envDefault:"10m"` // MaxConnIdleTime closes connections idle for longer.
	MaxConnLifetime   time.Duration `env:"PG_MAX_CONN_LIFETIME" envDefault:"30m"`  // MaxConnLifetime recycles connections older than this.

	RetryAttempts int           `env:"PG_RETRY_ATTEMPTS" envDefault:"3"`  // RetryAttempts is the number of connection attempts.
	RetryInterval time.Duration `env:"PG_RETRY_INTERVAL" envDefault:"5s"` // RetryInterval grows linearly with each attempt.

	MigrationsTable string `env:"PG_MIGRATIONS_TABLE" envDefault:"schema_migrations"` // MigrationsTable stores the applied schema version.
}
