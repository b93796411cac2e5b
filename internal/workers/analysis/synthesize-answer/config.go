// internal/workers/analysis/synthesize-answer/config.go
package synthesizeanswer

import "time"

type Config struct {
	Timeout time.Duration
	// BaseURL points at the synthesis service; the endpoint path is fixed.
	BaseURL string
	APIKey  string
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 60 * time.Second,
	}
}
