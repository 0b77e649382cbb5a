package opensearch

// Config holds the cluster connection parameters. An empty Addresses list
// means OpenSearch is not configured.
type Config struct {
	Addresses    []string `env:"OPENSEARCH_ADDRESSES" envSeparator:","`
	Username     string   `env:"OPENSEARCH_USERNAME"`
	Password     string   `env:"OPENSEARCH_PASSWORD"`
	MaxRetries   int      `env:"OPENSEARCH_MAX_RETRIES" envDefault:"3"`
	DisableRetry bool     `env:"OPENSEARCH_DISABLE_RETRY" envDefault:"false"`
}

// Enabled reports whether any address is configured.
func (c Config) Enabled() bool { return len(c.Addresses) > 0 }
