package accentab

const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
)

type Config struct {
	// StorePath is the CSV directory or the SQLite database file.
	StorePath string
	Backend   string
	Logger    Logger
	Store     Store
}

type Option func(*Config)

func WithStorePath(path string) Option {
	return func(c *Config) {
		c.StorePath = path
	}
}

func WithBackend(backend string) Option {
	return func(c *Config) {
		c.Backend = backend
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

// WithStore bypasses backend selection entirely.
func WithStore(store Store) Option {
	return func(c *Config) {
		c.Store = store
	}
}

func defaultConfig() *Config {
	return &Config{
		StorePath: ".",
		Backend:   BackendCSV,
	}
}
