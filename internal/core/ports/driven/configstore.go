package driven

import "time"

// ConfigStore holds lectern's persisted settings as flat dotted keys such as
// "pipeline.chunk_size" or "graph.backend". Typed getters return the zero
// value for missing keys and for values of another type; use Get to tell
// the two apart.
type ConfigStore interface {
	Get(key string) (any, bool)
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool

	// GetDuration accepts Go duration strings ("10m") and whole seconds.
	GetDuration(key string) time.Duration

	// Set stores value under key and persists it before returning.
	Set(key string, value any) error

	// Delete removes key. Removing a missing key is not an error.
	Delete(key string) error

	// Keys returns every stored key in sorted order.
	Keys() []string
}
