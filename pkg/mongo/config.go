package mongo

import "time"

// Config is parsed from MONGODB_* variables. Database holds the tenants and
// scheduled_actions collections.
type Config struct {
	ConnectionURL string `env:"MONGODB_URL,required"`
	Database      string `env:"MONGODB_DATABASE" envDefault:"dialbill"`

	ConnectTimeout  time.Duration `env:"MONGODB_CONNECT_TIMEOUT" envDefault:"10s"`
	MaxPoolSize     uint64        `env:"MONGODB_MAX_POOL_SIZE" envDefault:"100"`
	MinPoolSize     uint64        `env:"MONGODB_MIN_POOL_SIZE" envDefault:"1"`
	MaxConnIdleTime time.Duration `env:"MONGODB_MAX_CONN_IDLE_TIME" envDefault:"300s"`

	// Balance and claim updates are single-document operations, safe to retry.
	RetryWrites bool `env:"MONGODB_RETRY_WRITES" envDefault:"true"`
	RetryReads  bool `env:"MONGODB_RETRY_READS" envDefault:"true"`

	// RetryAttempts and RetryInterval govern the initial connect only.
	RetryAttempts int           `env:"MONGODB_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"MONGODB_RETRY_INTERVAL" envDefault:"5s"`
}
