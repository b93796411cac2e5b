// internal/workers/data/build-unified-table/config.go
package buildunifiedtable

import "time"

type Config struct {
	Timeout time.Duration
	// MaxDatasets bounds how many sheets one build accepts.
	MaxDatasets int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:     30 * time.Second,
		MaxDatasets: 10,
	}
}
