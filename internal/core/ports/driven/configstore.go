package driven

// ConfigStore provides access to engine configuration.
// Implementations handle persistence (TOML file) and type conversion;
// nested tables are addressed with dot-notation keys such as
// "retrieval.k_lex" or "watcher.directory".
type ConfigStore interface {
	// Get retrieves a raw value and whether the key exists.
	Get(key string) (any, bool)

	// GetString retrieves a string value, or "" when absent.
	GetString(key string) string

	// GetInt retrieves an integer value, or 0 when absent.
	GetInt(key string) int

	// GetBool retrieves a boolean value, or false when absent.
	GetBool(key string) bool

	// GetFloat retrieves a float value, or 0 when absent.
	GetFloat(key string) float64

	// Set stores a value and persists it immediately.
	Set(key string, value any) error

	// Save persists the current configuration.
	Save() error

	// Load re-reads configuration from storage.
	Load() error

	// Path returns the backing file path.
	Path() string
}
