package ledger

// Config selects the ledger index and batching behavior.
type Config struct {
	IndexPrefix string `env:"LEDGER_INDEX_PREFIX" envDefault:"dialbill-ledger"`
	AsyncOptions
}
