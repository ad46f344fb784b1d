package opensearch

// Config holds connection settings. Search is optional: with no addresses the
// catalog falls back to SQL matching.
type Config struct {
	Addresses    []string `env:"OPENSEARCH_ADDRESSES"`
	Username     string   `env:"OPENSEARCH_USERNAME"`
	Password     string   `env:"OPENSEARCH_PASSWORD"`
	Index        string   `env:"OPENSEARCH_BOOKS_INDEX" envDefault:"storify-books"`
	MaxRetries   int      `env:"OPENSEARCH_MAX_RETRIES" envDefault:"3"`
	DisableRetry bool     `env:"OPENSEARCH_DISABLE_RETRY" envDefault:"false"`
}

func (c Config) Enabled() bool {
	return len(c.Addresses) > 0
}
