// internal/workers/analysis/run-calculation/config.go
package runcalculation

import "time"

type Config struct {
	Timeout time.Duration
	// CacheTTL is how long a computed result stays reusable. Zero disables
	// the cache entirely.
	CacheTTL time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout:  30 * time.Second,
		CacheTTL: 5 * time.Minute,
	}
}
