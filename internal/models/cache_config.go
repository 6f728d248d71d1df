package models

// CacheConfig holds configuration for response caching (optional)
type CacheConfig struct {
	Enabled    bool `json:"enabled,omitzero" yaml:"enabled"`
	TTLSeconds int  `json:"ttl_seconds,omitzero" yaml:"ttl_seconds"`
	MaxEntries int  `json:"max_entries,omitzero" yaml:"max_entries"` // LRU capacity
}

// DefaultCacheConfig returns the cache settings used when the section is
// present but empty.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:    true,
		TTLSeconds: 300,
		MaxEntries: 1024,
	}
}
