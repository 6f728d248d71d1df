package models

// RateLimitBackendType represents the type of rate limit backend to use
type RateLimitBackendType string

const (
	RateLimitBackendRedis  RateLimitBackendType = "redis"
	RateLimitBackendMemory RateLimitBackendType = "memory"
)

// RateLimitConfig holds configuration for request admission control.
// Both windows apply; a request is rejected when either is exhausted.
type RateLimitConfig struct {
	Enabled   bool                 `json:"enabled,omitzero" yaml:"enabled"`
	PerMinute int                  `json:"per_minute,omitzero" yaml:"per_minute"`
	PerHour   int                  `json:"per_hour,omitzero" yaml:"per_hour"`
	Backend   RateLimitBackendType `json:"backend,omitzero" yaml:"backend"`     // "redis" or "memory"
	RedisURL  string               `json:"redis_url,omitzero" yaml:"redis_url"` // Required if backend is "redis"

	// Seconds between sweeps of idle client entries in the memory backend.
	SweepIntervalSec int `json:"sweep_interval_sec,omitzero" yaml:"sweep_interval_sec"`
}

// DefaultRateLimitConfig matches the limits applied when the section is
// present but mostly empty.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:          true,
		PerMinute:        60,
		PerHour:          1000,
		Backend:          RateLimitBackendMemory,
		SweepIntervalSec: 60,
	}
}
